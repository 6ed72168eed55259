package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	httpapi "github.com/rizaleow/ovpn-manager/internal/api"
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

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the management daemon",
	Long: `Run the ovpn-manager daemon: the HTTP API for instance and client
administration plus the connection monitor that snapshots live sessions
into the bandwidth history.

The daemon shuts down gracefully on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:     logger.Level(cfg.Log.Level),
		Format:    logger.Format(cfg.Log.Format),
		Component: "ovpn-manager",
		Version:   version,
	})
	log.InfoContext(ctx, "starting ovpn-manager", "version", version)

	store, err := db.NewStore(&db.Config{
		Path:            cfg.DB.Path,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	runner := execx.NewRunner(log)
	svc := service.NewController(runner, cfg.OpenVPN.ServiceTemplate)
	reg := registry.New(store, cfg.OpenVPN.BaseDir, svc, log)
	net := network.New(runner, cfg.Network.RulesFile, cfg.Network.SysctlFile, log)
	bus := events.NewBus(log)
	defer bus.Close()
	orch := orchestrator.New(store, reg, runner, svc, net, bus, cfg.OpenVPN, log)

	promReg := prometheus.NewRegistry()
	mon := monitor.New(store, reg, monitor.NewMetrics(promReg), cfg.Monitor.PollInterval, log)

	server := httpapi.NewServer(httpapi.ServerConfig{
		Address: cfg.API.ListenAddr,
		Version: version,
	}, reg, orch, mon, promReg, log)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	log.InfoContext(ctx, "API server listening", "address", cfg.API.ListenAddr)

	monDone := make(chan struct{})
	if cfg.Monitor.Enabled {
		go func() {
			defer close(monDone)
			if err := mon.Start(ctx); err != nil {
				log.ErrorCtx(ctx, "connection monitor stopped", err)
			}
		}()
	} else {
		close(monDone)
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.ErrorCtx(shutdownCtx, "failed to stop API server", err)
	}
	<-monDone

	log.Info("shutdown complete")
	return nil
}
