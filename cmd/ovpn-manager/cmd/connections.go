package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rizaleow/ovpn-manager/internal/monitor"
)

type connectionView struct {
	ClientName     string `json:"client_name" yaml:"client_name"`
	RealAddress    string `json:"real_address" yaml:"real_address"`
	VirtualAddress string `json:"virtual_address,omitempty" yaml:"virtual_address,omitempty"`
	BytesReceived  int64  `json:"bytes_received" yaml:"bytes_received"`
	BytesSent      int64  `json:"bytes_sent" yaml:"bytes_sent"`
	ConnectedSince string `json:"connected_since,omitempty" yaml:"connected_since,omitempty"`
}

func toConnectionView(c monitor.Connection) connectionView {
	v := connectionView{
		ClientName:     c.ClientName,
		RealAddress:    c.RealAddress,
		VirtualAddress: c.VirtualAddress,
		BytesReceived:  c.BytesReceived,
		BytesSent:      c.BytesSent,
	}
	if c.ConnectedSince != nil {
		v.ConnectedSince = c.ConnectedSince.Format(time.RFC3339)
	}
	return v
}

var connectionsCmd = &cobra.Command{
	Use:   "connections INSTANCE",
	Short: "Show live client connections of an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		conns, err := a.mon.ActiveConnections(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if structured() {
			views := make([]connectionView, 0, len(conns))
			for _, c := range conns {
				views = append(views, toConnectionView(c))
			}
			return printStructured(views)
		}

		if len(conns) == 0 {
			fmt.Println("No active connections")
			return nil
		}
		w := newTable()
		fmt.Fprintln(w, "CLIENT\tREAL ADDRESS\tVPN ADDRESS\tRECEIVED\tSENT\tCONNECTED SINCE")
		for _, c := range conns {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				c.ClientName, c.RealAddress, c.VirtualAddress,
				formatBytes(c.BytesReceived), formatBytes(c.BytesSent),
				formatTimePtr(c.ConnectedSince))
		}
		return w.Flush()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history INSTANCE",
	Short: "Show recorded connection snapshots of an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")

		history, err := a.mon.History(cmd.Context(), args[0], page, limit)
		if err != nil {
			return err
		}

		if structured() {
			return printStructured(history)
		}

		if len(history.Records) == 0 {
			fmt.Println("No connection history")
			return nil
		}
		w := newTable()
		fmt.Fprintln(w, "CLIENT\tREAL ADDRESS\tRECEIVED\tSENT\tRECORDED")
		for _, rec := range history.Records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				rec.ClientName, rec.RealAddress,
				formatBytes(rec.BytesReceived), formatBytes(rec.BytesSent),
				formatTime(rec.RecordedAt))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\nPage %d of %d records (limit %d)\n", history.Page, history.Total, history.Limit)
		return nil
	},
}

var bandwidthCmd = &cobra.Command{
	Use:   "bandwidth INSTANCE",
	Short: "Show per-client bandwidth totals of an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.mon.Bandwidth(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if structured() {
			return printStructured(stats)
		}

		if len(stats) == 0 {
			fmt.Println("No bandwidth recorded")
			return nil
		}
		w := newTable()
		fmt.Fprintln(w, "CLIENT\tRECEIVED\tSENT\tSNAPSHOTS\tLAST SEEN")
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				s.ClientName, formatBytes(s.BytesReceived), formatBytes(s.BytesSent),
				s.Connections, formatTimePtr(s.LastSeen))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(connectionsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(bandwidthCmd)

	historyCmd.Flags().Int("page", 1, "page number")
	historyCmd.Flags().Int("limit", 20, "records per page")
}
