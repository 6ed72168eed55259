// Package cmd implements the ovpn-manager command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rizaleow/ovpn-manager/internal/config"
	"github.com/rizaleow/ovpn-manager/internal/db"
	"github.com/rizaleow/ovpn-manager/internal/events"
	"github.com/rizaleow/ovpn-manager/internal/execx"
	"github.com/rizaleow/ovpn-manager/internal/monitor"
	"github.com/rizaleow/ovpn-manager/internal/network"
	"github.com/rizaleow/ovpn-manager/internal/orchestrator"
	"github.com/rizaleow/ovpn-manager/internal/registry"
	"github.com/rizaleow/ovpn-manager/internal/service"
	"github.com/rizaleow/ovpn-manager/pkg/logger"
)

const version = "1.0.0"

var (
	configPath   string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "ovpn-manager",
	Short: "Provision and supervise OpenVPN server instances on this host",
	Long: `ovpn-manager provisions isolated OpenVPN server instances on a single
host: it installs packages, bootstraps a per-instance PKI, renders the
server configuration, wires NAT and forwarding, and supervises the
systemd units.

Run "ovpn-manager serve" to start the management daemon with its HTTP
API, or use the instance/client subcommands to administer instances
directly on the host.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to the configuration file (default: search /etc/ovpn-manager, ~/.ovpn-manager, .)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table",
		"output format: table, json or yaml")
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadWithPath(configPath)
	}
	return config.NewLoader().Load()
}

// app bundles the assembled service stack for one-shot subcommands that
// administer instances directly on the host.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	store db.Store
	reg   *registry.Registry
	orch  *orchestrator.Orchestrator
	mon   *monitor.Monitor
	bus   *events.Bus
}

// newApp loads configuration and assembles the stack. One-shot commands
// run with a quiet logger so command output stays readable.
func newApp(quiet bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logCfg := logger.Config{
		Level:     logger.Level(cfg.Log.Level),
		Format:    logger.Format(cfg.Log.Format),
		Component: "ovpn-manager",
		Version:   version,
	}
	if quiet {
		logCfg.Level = logger.LevelError
		logCfg.Format = logger.FormatText
	}
	log := logger.New(logCfg)

	store, err := db.NewStore(&db.Config{
		Path:            cfg.DB.Path,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	runner := execx.NewRunner(log)
	svc := service.NewController(runner, cfg.OpenVPN.ServiceTemplate)
	reg := registry.New(store, cfg.OpenVPN.BaseDir, svc, log)
	net := network.New(runner, cfg.Network.RulesFile, cfg.Network.SysctlFile, log)
	bus := events.NewBus(log)
	orch := orchestrator.New(store, reg, runner, svc, net, bus, cfg.OpenVPN, log)
	mon := monitor.New(store, reg, nil, cfg.Monitor.PollInterval, log)

	return &app{
		cfg:   cfg,
		log:   log,
		store: store,
		reg:   reg,
		orch:  orch,
		mon:   mon,
		bus:   bus,
	}, nil
}

func (a *app) Close() {
	a.bus.Close()
	if err := a.store.Close(); err != nil {
		a.log.Error("failed to close database", "error", err)
	}
}
