package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rizaleow/ovpn-manager/internal/db"
	"github.com/rizaleow/ovpn-manager/internal/orchestrator"
)

// instanceView is the structured-output shape for one instance.
type instanceView struct {
	Name        string `json:"name" yaml:"name"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Status      string `json:"status" yaml:"status"`
	CreatedAt   string `json:"created_at" yaml:"created_at"`
}

type stateView struct {
	Instance     instanceView     `json:"instance" yaml:"instance"`
	Config       configView       `json:"config" yaml:"config"`
	Provisioning provisioningView `json:"provisioning" yaml:"provisioning"`
}

type configView struct {
	Hostname       string   `json:"hostname" yaml:"hostname"`
	Protocol       string   `json:"protocol" yaml:"protocol"`
	Port           int      `json:"port" yaml:"port"`
	Device         string   `json:"device" yaml:"device"`
	Subnet         string   `json:"subnet" yaml:"subnet"`
	Mask           string   `json:"mask" yaml:"mask"`
	DNSServers     []string `json:"dns_servers,omitempty" yaml:"dns_servers,omitempty"`
	Cipher         string   `json:"cipher" yaml:"cipher"`
	AuthDigest     string   `json:"auth_digest" yaml:"auth_digest"`
	TLSAuth        bool     `json:"tls_auth" yaml:"tls_auth"`
	Compression    string   `json:"compression,omitempty" yaml:"compression,omitempty"`
	ClientToClient bool     `json:"client_to_client" yaml:"client_to_client"`
	MaxClients     int      `json:"max_clients" yaml:"max_clients"`
	Keepalive      string   `json:"keepalive" yaml:"keepalive"`
	PKIInitialized bool     `json:"pki_initialized" yaml:"pki_initialized"`
}

type provisioningView struct {
	Step        string `json:"step" yaml:"step"`
	Completed   bool   `json:"completed" yaml:"completed"`
	StartedAt   string `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	LastError   string `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

func toInstanceView(inst *db.Instance) instanceView {
	return instanceView{
		Name:        inst.Name,
		DisplayName: inst.DisplayName,
		Status:      string(inst.Status),
		CreatedAt:   inst.CreatedAt.Format(time.RFC3339),
	}
}

func toStateView(inst *db.Instance, cfg *db.ServerConfig, state *db.ProvisioningState) stateView {
	v := stateView{
		Instance: toInstanceView(inst),
		Config: configView{
			Hostname:       cfg.Hostname,
			Protocol:       cfg.Protocol,
			Port:           cfg.Port,
			Device:         cfg.Device,
			Subnet:         cfg.Subnet,
			Mask:           cfg.Mask,
			DNSServers:     cfg.DNSServers,
			Cipher:         cfg.Cipher,
			AuthDigest:     cfg.AuthDigest,
			TLSAuth:        cfg.TLSAuth,
			Compression:    cfg.Compression,
			ClientToClient: cfg.ClientToClient,
			MaxClients:     cfg.MaxClients,
			Keepalive:      cfg.Keepalive,
			PKIInitialized: cfg.PKIInitialized,
		},
		Provisioning: provisioningView{
			Step:      string(state.Step),
			Completed: state.Completed,
			LastError: state.LastError,
		},
	}
	if state.StartedAt != nil {
		v.Provisioning.StartedAt = state.StartedAt.Format(time.RFC3339)
	}
	if state.CompletedAt != nil {
		v.Provisioning.CompletedAt = state.CompletedAt.Format(time.RFC3339)
	}
	return v
}

var instanceCmd = &cobra.Command{
	Use:   "instance",
	Short: "Manage OpenVPN server instances",
}

var instanceCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Register a new instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		displayName, _ := cmd.Flags().GetString("display-name")
		inst, err := a.reg.Create(cmd.Context(), args[0], displayName)
		if err != nil {
			return err
		}

		if structured() {
			return printStructured(toInstanceView(inst))
		}
		fmt.Printf("Instance %q created\n", inst.Name)
		fmt.Printf("Run \"ovpn-manager instance setup %s --hostname <public-hostname>\" to provision it\n", inst.Name)
		return nil
	},
}

var instanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered instances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		instances, err := a.reg.List(cmd.Context())
		if err != nil {
			return err
		}

		if structured() {
			views := make([]instanceView, 0, len(instances))
			for i := range instances {
				views = append(views, toInstanceView(&instances[i]))
			}
			return printStructured(views)
		}

		if len(instances) == 0 {
			fmt.Println("No instances registered")
			return nil
		}
		w := newTable()
		fmt.Fprintln(w, "NAME\tSTATUS\tDISPLAY NAME\tCREATED")
		for _, inst := range instances {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				inst.Name, inst.Status, inst.DisplayName, formatTime(inst.CreatedAt))
		}
		return w.Flush()
	},
}

var instanceDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete an instance and its on-disk material",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		warnings, err := a.reg.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Instance %q deleted\n", args[0])
		for _, warning := range warnings {
			fmt.Printf("Warning: %s\n", warning)
		}
		return nil
	},
}

var instanceSetupCmd = &cobra.Command{
	Use:   "setup NAME",
	Short: "Provision an instance end to end",
	Long: `Provision an instance: install packages, bootstrap the PKI, render
the server configuration, configure forwarding and NAT, and start the
systemd unit.

Setup is resumable. If a step fails, fix the cause and run setup again;
completed steps are not repeated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		params := orchestrator.SetupParams{}
		flags := cmd.Flags()
		params.Hostname, _ = flags.GetString("hostname")
		params.Protocol, _ = flags.GetString("protocol")
		params.Port, _ = flags.GetInt("port")
		params.Device, _ = flags.GetString("device")
		params.Subnet, _ = flags.GetString("subnet")
		params.Mask, _ = flags.GetString("mask")
		params.DNSServers, _ = flags.GetStringSlice("dns")
		params.Cipher, _ = flags.GetString("cipher")
		params.AuthDigest, _ = flags.GetString("auth-digest")
		params.MaxClients, _ = flags.GetInt("max-clients")
		params.Keepalive, _ = flags.GetString("keepalive")

		// Tristate flags only override the stored config when given.
		if flags.Changed("tls-auth") {
			v, _ := flags.GetBool("tls-auth")
			params.TLSAuth = &v
		}
		if flags.Changed("compression") {
			v, _ := flags.GetString("compression")
			params.Compression = &v
		}
		if flags.Changed("client-to-client") {
			v, _ := flags.GetBool("client-to-client")
			params.ClientToClient = &v
		}

		if err := a.orch.Setup(cmd.Context(), args[0], params); err != nil {
			return err
		}

		fmt.Printf("Instance %q provisioned and running\n", args[0])
		return nil
	},
}

var instanceStatusCmd = &cobra.Command{
	Use:   "status NAME",
	Short: "Show instance state, configuration and provisioning progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		inst, cfg, state, err := a.orch.State(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if structured() {
			return printStructured(toStateView(inst, cfg, state))
		}

		fmt.Printf("Instance: %s\n", inst.Name)
		if inst.DisplayName != "" {
			fmt.Printf("  Display Name: %s\n", inst.DisplayName)
		}
		fmt.Printf("  Status: %s\n", inst.Status)
		fmt.Printf("  Created: %s\n", formatTime(inst.CreatedAt))

		fmt.Printf("\nConfiguration:\n")
		fmt.Printf("  Hostname: %s\n", cfg.Hostname)
		fmt.Printf("  Listen: %s/%d (%s)\n", cfg.Protocol, cfg.Port, cfg.Device)
		fmt.Printf("  Subnet: %s %s\n", cfg.Subnet, cfg.Mask)
		if len(cfg.DNSServers) > 0 {
			fmt.Printf("  DNS: %s\n", strings.Join(cfg.DNSServers, ", "))
		}
		fmt.Printf("  Cipher: %s / %s\n", cfg.Cipher, cfg.AuthDigest)
		fmt.Printf("  TLS Auth: %t\n", cfg.TLSAuth)
		fmt.Printf("  PKI Initialized: %t\n", cfg.PKIInitialized)

		fmt.Printf("\nProvisioning:\n")
		fmt.Printf("  Step: %s\n", state.Step)
		fmt.Printf("  Completed: %t\n", state.Completed)
		if state.CompletedAt != nil {
			fmt.Printf("  Completed At: %s\n", formatTimePtr(state.CompletedAt))
		}
		if state.LastError != "" {
			fmt.Printf("  Last Error: %s\n", state.LastError)
		}
		return nil
	},
}

func newServiceControlCmd(verb string, op func(a *app, ctx context.Context, name string) error) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " NAME",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " the OpenVPN daemon of an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := op(a, cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Instance %q: %s requested\n", args[0], verb)
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(instanceCmd)
	instanceCmd.AddCommand(instanceCreateCmd)
	instanceCmd.AddCommand(instanceListCmd)
	instanceCmd.AddCommand(instanceDeleteCmd)
	instanceCmd.AddCommand(instanceSetupCmd)
	instanceCmd.AddCommand(instanceStatusCmd)
	instanceCmd.AddCommand(newServiceControlCmd("start", func(a *app, ctx context.Context, name string) error {
		return a.orch.Start(ctx, name)
	}))
	instanceCmd.AddCommand(newServiceControlCmd("stop", func(a *app, ctx context.Context, name string) error {
		return a.orch.Stop(ctx, name)
	}))
	instanceCmd.AddCommand(newServiceControlCmd("restart", func(a *app, ctx context.Context, name string) error {
		return a.orch.Restart(ctx, name)
	}))

	instanceCreateCmd.Flags().String("display-name", "", "human-readable instance name")

	instanceSetupCmd.Flags().String("hostname", "", "public hostname or address clients connect to (required)")
	instanceSetupCmd.Flags().String("protocol", "", "transport protocol: udp or tcp")
	instanceSetupCmd.Flags().Int("port", 0, "listen port")
	instanceSetupCmd.Flags().String("device", "", "virtual device type: tun or tap")
	instanceSetupCmd.Flags().String("subnet", "", "VPN subnet address, e.g. 10.8.0.0")
	instanceSetupCmd.Flags().String("mask", "", "VPN subnet mask, e.g. 255.255.255.0")
	instanceSetupCmd.Flags().StringSlice("dns", nil, "DNS servers pushed to clients")
	instanceSetupCmd.Flags().String("cipher", "", "data channel cipher")
	instanceSetupCmd.Flags().String("auth-digest", "", "HMAC digest")
	instanceSetupCmd.Flags().Bool("tls-auth", false, "enable the shared-secret TLS auth key")
	instanceSetupCmd.Flags().String("compression", "", "compression directive, empty disables")
	instanceSetupCmd.Flags().Bool("client-to-client", false, "allow traffic between clients")
	instanceSetupCmd.Flags().Int("max-clients", 0, "maximum concurrent clients")
	instanceSetupCmd.Flags().String("keepalive", "", "keepalive directive value, e.g. \"10 120\"")
	_ = instanceSetupCmd.MarkFlagRequired("hostname")
}
