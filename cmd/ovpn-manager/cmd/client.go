package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rizaleow/ovpn-manager/internal/db"
	"github.com/rizaleow/ovpn-manager/internal/orchestrator"
)

type clientView struct {
	Name          string `json:"name" yaml:"name"`
	Status        string `json:"status" yaml:"status"`
	StaticAddress string `json:"static_address,omitempty" yaml:"static_address,omitempty"`
	Notes         string `json:"notes,omitempty" yaml:"notes,omitempty"`
	CreatedAt     string `json:"created_at" yaml:"created_at"`
	RevokedAt     string `json:"revoked_at,omitempty" yaml:"revoked_at,omitempty"`
}

func toClientView(cred *db.ClientCredential) clientView {
	v := clientView{
		Name:          cred.Name,
		Status:        string(cred.Status),
		StaticAddress: cred.StaticAddress,
		Notes:         cred.Notes,
		CreatedAt:     cred.CreatedAt.Format(time.RFC3339),
	}
	if cred.RevokedAt != nil {
		v.RevokedAt = cred.RevokedAt.Format(time.RFC3339)
	}
	return v
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Manage client credentials of an instance",
}

var clientIssueCmd = &cobra.Command{
	Use:   "issue INSTANCE NAME",
	Short: "Issue a certificate for a new client",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		staticAddr, _ := cmd.Flags().GetString("static-address")
		notes, _ := cmd.Flags().GetString("notes")

		cred, err := a.orch.IssueClient(cmd.Context(), args[0], orchestrator.IssueClientParams{
			Name:          args[1],
			StaticAddress: staticAddr,
			Notes:         notes,
		})
		if err != nil {
			return err
		}

		if structured() {
			return printStructured(toClientView(cred))
		}
		fmt.Printf("Client %q issued on instance %q\n", cred.Name, args[0])
		fmt.Printf("Export the profile with \"ovpn-manager client profile %s %s\"\n", args[0], cred.Name)
		return nil
	},
}

var clientListCmd = &cobra.Command{
	Use:   "list INSTANCE",
	Short: "List client credentials of an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		clients, err := a.orch.ListClients(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if structured() {
			views := make([]clientView, 0, len(clients))
			for i := range clients {
				views = append(views, toClientView(&clients[i]))
			}
			return printStructured(views)
		}

		if len(clients) == 0 {
			fmt.Println("No clients issued")
			return nil
		}
		w := newTable()
		fmt.Fprintln(w, "NAME\tSTATUS\tSTATIC ADDRESS\tCREATED\tREVOKED")
		for _, c := range clients {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				c.Name, c.Status, c.StaticAddress, formatTime(c.CreatedAt), formatTimePtr(c.RevokedAt))
		}
		return w.Flush()
	},
}

var clientRevokeCmd = &cobra.Command{
	Use:   "revoke INSTANCE NAME",
	Short: "Revoke a client certificate",
	Long: `Revoke a client certificate and regenerate the revocation list.
Revocation is terminal; a revoked name cannot be reissued, only renewed.

If the revocation list regeneration fails after the certificate itself
was revoked, the command reports the failure; run
"ovpn-manager client regen-crl INSTANCE" to retry the regeneration.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.orch.RevokeClient(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		if structured() {
			return printStructured(result)
		}
		fmt.Println(result.Message)
		return nil
	},
}

var clientRenewCmd = &cobra.Command{
	Use:   "renew INSTANCE NAME",
	Short: "Reissue certificate material for an existing client",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		cred, err := a.orch.RenewClient(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		if structured() {
			return printStructured(toClientView(cred))
		}
		fmt.Printf("Client %q renewed\n", cred.Name)
		return nil
	},
}

var clientProfileCmd = &cobra.Command{
	Use:   "profile INSTANCE NAME",
	Short: "Export the connection profile for a client",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		profile, err := a.orch.ClientProfile(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		outPath, _ := cmd.Flags().GetString("out")
		if outPath == "" {
			fmt.Print(profile)
			return nil
		}
		if err := os.WriteFile(outPath, []byte(profile), 0o600); err != nil {
			return fmt.Errorf("failed to write profile: %w", err)
		}
		fmt.Printf("Profile written to %s\n", outPath)
		return nil
	},
}

var clientRegenCRLCmd = &cobra.Command{
	Use:   "regen-crl INSTANCE",
	Short: "Regenerate the certificate revocation list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.orch.RegenerateCRL(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("Revocation list regenerated")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.AddCommand(clientIssueCmd)
	clientCmd.AddCommand(clientListCmd)
	clientCmd.AddCommand(clientRevokeCmd)
	clientCmd.AddCommand(clientRenewCmd)
	clientCmd.AddCommand(clientProfileCmd)
	clientCmd.AddCommand(clientRegenCRLCmd)

	clientIssueCmd.Flags().String("static-address", "", "fixed VPN address assigned to the client")
	clientIssueCmd.Flags().String("notes", "", "free-form notes stored with the credential")
	clientProfileCmd.Flags().String("out", "", "write the profile to this file instead of stdout")
}
