// Package orchestrator drives the provisioning state machine that
// turns a registered instance into a running OpenVPN server, and owns
// the client credential lifecycle built on top of it.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rizaleow/ovpn-manager/internal/config"
	"github.com/rizaleow/ovpn-manager/internal/db"
	"github.com/rizaleow/ovpn-manager/internal/events"
	"github.com/rizaleow/ovpn-manager/internal/execx"
	"github.com/rizaleow/ovpn-manager/internal/network"
	"github.com/rizaleow/ovpn-manager/internal/pki"
	"github.com/rizaleow/ovpn-manager/internal/registry"
	"github.com/rizaleow/ovpn-manager/internal/render"
	"github.com/rizaleow/ovpn-manager/internal/service"
	apperrors "github.com/rizaleow/ovpn-manager/pkg/errors"
	"github.com/rizaleow/ovpn-manager/pkg/logger"
)

// Orchestrator sequences the per-instance provisioning steps and the
// credential operations that depend on a provisioned authority.
type Orchestrator struct {
	store    db.Store
	registry *registry.Registry
	runner   execx.Runner
	svc      *service.Controller
	network  *network.Configurator
	bus      *events.Bus
	ovpn     config.OpenVPNConfig
	logger   *logger.Logger

	// Mutating operations against one instance are serialized; distinct
	// instances touch disjoint subtrees and may proceed concurrently.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Orchestrator.
func New(store db.Store, reg *registry.Registry, runner execx.Runner,
	svc *service.Controller, net *network.Configurator, bus *events.Bus,
	ovpn config.OpenVPNConfig, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		registry: reg,
		runner:   runner,
		svc:      svc,
		network:  net,
		bus:      bus,
		ovpn:     ovpn,
		logger:   log.WithComponent("orchestrator"),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (o *Orchestrator) lock(name string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[name]
	if !ok {
		l = &sync.Mutex{}
		o.locks[name] = l
	}
	return l
}

// authority returns the credential authority scoped to one instance.
func (o *Orchestrator) authority(name string) *pki.Authority {
	paths := o.registry.Paths(name)
	return pki.New(o.runner, pki.Options{
		Instance:   name,
		PKIDir:     paths.PKIDir,
		EasyRSABin: o.ovpn.EasyRSABin,
		OpenVPNBin: o.ovpn.OpenVPNBin,
	}, o.logger)
}

// SetupParams are the caller-supplied server parameters applied during
// setup. Zero values leave the stored defaults untouched.
type SetupParams struct {
	Hostname       string
	Protocol       string
	Port           int
	Device         string
	Subnet         string
	Mask           string
	DNSServers     []string
	Cipher         string
	AuthDigest     string
	TLSAuth        *bool
	Compression    *string
	ClientToClient *bool
	MaxClients     int
	Keepalive      string
}

func (p SetupParams) apply(cfg db.ServerConfig) db.ServerConfig {
	if p.Hostname != "" {
		cfg.Hostname = p.Hostname
	}
	if p.Protocol != "" {
		cfg.Protocol = p.Protocol
	}
	if p.Port != 0 {
		cfg.Port = p.Port
	}
	if p.Device != "" {
		cfg.Device = p.Device
	}
	if p.Subnet != "" {
		cfg.Subnet = p.Subnet
	}
	if p.Mask != "" {
		cfg.Mask = p.Mask
	}
	if p.DNSServers != nil {
		cfg.DNSServers = p.DNSServers
	}
	if p.Cipher != "" {
		cfg.Cipher = p.Cipher
	}
	if p.AuthDigest != "" {
		cfg.AuthDigest = p.AuthDigest
	}
	if p.TLSAuth != nil {
		cfg.TLSAuth = *p.TLSAuth
	}
	if p.Compression != nil {
		cfg.Compression = *p.Compression
	}
	if p.ClientToClient != nil {
		cfg.ClientToClient = *p.ClientToClient
	}
	if p.MaxClients != 0 {
		cfg.MaxClients = p.MaxClients
	}
	if p.Keepalive != "" {
		cfg.Keepalive = p.Keepalive
	}
	return cfg
}

func (p SetupParams) validate() error {
	if p.Hostname == "" {
		return apperrors.NewValidationError("hostname", "hostname is required")
	}
	if p.Protocol != "" && p.Protocol != "udp" && p.Protocol != "tcp" {
		return apperrors.NewValidationError("protocol", "must be udp or tcp")
	}
	if p.Port < 0 || p.Port > 65535 {
		return apperrors.NewValidationError("port", "must be between 1 and 65535")
	}
	if p.Device != "" && p.Device != "tun" && p.Device != "tap" {
		return apperrors.NewValidationError("device", "must be tun or tap")
	}
	if p.Mask != "" {
		if _, err := network.PrefixLength(p.Mask); err != nil {
			return err
		}
	}
	return nil
}

type setupStep struct {
	step db.ProvisioningStep
	run  func(ctx context.Context) error
}

// Setup runs the provisioning state machine for the named instance.
// Each step persists its completion before the next step starts, so a
// crash leaves the last finished step durably recorded. Steps are not
// rolled back on failure; a retry is a fresh Setup call.
func (o *Orchestrator) Setup(ctx context.Context, name string, params SetupParams) error {
	l := o.lock(name)
	l.Lock()
	defer l.Unlock()

	if err := params.validate(); err != nil {
		return err
	}

	inst, err := o.registry.Get(ctx, name)
	if err != nil {
		return err
	}
	if inst == nil {
		return apperrors.NewNotFoundError("instance", name)
	}

	state, err := o.store.GetProvisioningState(ctx, inst.ID)
	if err != nil {
		return fmt.Errorf("failed to load provisioning state: %w", err)
	}
	if state.Completed {
		return apperrors.NewConflictError("instance", name, "provisioning already completed")
	}

	ctx = logger.WithInstance(ctx, name)
	start := time.Now()

	if err := o.store.ResetProvisioning(ctx, inst.ID); err != nil {
		return fmt.Errorf("failed to reset provisioning state: %w", err)
	}
	if err := o.registry.UpdateStatus(ctx, name, db.InstanceProvisioning); err != nil {
		return fmt.Errorf("failed to update instance status: %w", err)
	}

	paths := o.registry.Paths(name)
	auth := o.authority(name)

	steps := []setupStep{
		{db.StepPackagesInstalled, o.installPackages},
		{db.StepPKIInitialized, auth.Bootstrap},
		{db.StepServerConfigured, func(ctx context.Context) error {
			return o.configureServer(ctx, inst.ID, name, params, auth, paths)
		}},
		{db.StepNetworkConfigured, func(ctx context.Context) error {
			return o.configureNetwork(ctx, inst.ID, name)
		}},
		{db.StepRunning, func(ctx context.Context) error {
			if err := o.svc.Enable(ctx, name); err != nil {
				return err
			}
			return o.svc.Start(ctx, name)
		}},
	}

	for _, s := range steps {
		o.logger.InfoContext(ctx, "provisioning step starting", "step", string(s.step))
		if err := s.run(ctx); err != nil {
			return o.failSetup(ctx, inst, s.step, err)
		}
		if err := o.store.SetProvisioningStep(ctx, inst.ID, s.step); err != nil {
			return o.failSetup(ctx, inst, s.step, err)
		}
		_ = o.bus.PublishProvisionStep(inst.ID, name, string(s.step))
	}

	if err := o.store.CompleteProvisioning(ctx, inst.ID); err != nil {
		return o.failSetup(ctx, inst, db.StepRunning, err)
	}
	if err := o.registry.UpdateStatus(ctx, name, db.InstanceActive); err != nil {
		return fmt.Errorf("failed to activate instance: %w", err)
	}

	_ = o.bus.PublishProvisionCompleted(inst.ID, name, time.Since(start))
	o.logger.InfoContext(ctx, "provisioning completed", "duration", time.Since(start))
	return nil
}

// failSetup persists the failure, marks the instance errored and wraps
// the cause. Completed earlier steps stay recorded for diagnosis.
func (o *Orchestrator) failSetup(ctx context.Context, inst *db.Instance, step db.ProvisioningStep, cause error) error {
	o.logger.ErrorCtx(ctx, "provisioning step failed", cause, "step", string(step))

	if err := o.store.SetProvisioningError(ctx, inst.ID, cause.Error()); err != nil {
		o.logger.ErrorCtx(ctx, "failed to persist provisioning error", err)
	}
	if err := o.registry.UpdateStatus(ctx, inst.Name, db.InstanceError); err != nil {
		o.logger.ErrorCtx(ctx, "failed to mark instance errored", err)
	}
	_ = o.bus.PublishProvisionFailed(inst.ID, inst.Name, string(step), cause.Error())

	return apperrors.NewServiceError(string(step), "provisioning failed", cause)
}

func (o *Orchestrator) installPackages(ctx context.Context) error {
	if len(o.ovpn.Packages) == 0 {
		return nil
	}
	args := append([]string{"install", "-y"}, o.ovpn.Packages...)
	_, err := o.runner.Run(ctx, "apt-get", args...)
	return err
}

func (o *Orchestrator) configureServer(ctx context.Context, instanceID, name string,
	params SetupParams, auth *pki.Authority, paths registry.Paths) error {
	cfg, err := o.store.GetServerConfig(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("failed to load server config: %w", err)
	}

	cfg = params.apply(cfg)
	if err := o.store.UpdateServerConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to persist server config: %w", err)
	}
	if err := o.store.SetPKIInitialized(ctx, instanceID, true); err != nil {
		return fmt.Errorf("failed to mark authority initialized: %w", err)
	}

	text := render.ServerConfig(cfg, auth.Paths(), paths, registry.DeviceName(name))
	if err := os.WriteFile(paths.ConfigPath, []byte(text), 0o640); err != nil {
		return fmt.Errorf("failed to write daemon configuration: %w", err)
	}
	return nil
}

func (o *Orchestrator) configureNetwork(ctx context.Context, instanceID, name string) error {
	cfg, err := o.store.GetServerConfig(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("failed to load server config: %w", err)
	}
	if err := o.network.EnableForwarding(ctx); err != nil {
		return err
	}
	if err := o.network.SetupNAT(ctx, cfg.Subnet, cfg.Mask, registry.DeviceName(name)); err != nil {
		return err
	}
	return o.network.Persist(ctx)
}

// State returns the instance, its server config and provisioning state.
func (o *Orchestrator) State(ctx context.Context, name string) (*db.Instance, *db.ServerConfig, *db.ProvisioningState, error) {
	inst, err := o.registry.Get(ctx, name)
	if err != nil {
		return nil, nil, nil, err
	}
	if inst == nil {
		return nil, nil, nil, apperrors.NewNotFoundError("instance", name)
	}
	cfg, err := o.store.GetServerConfig(ctx, inst.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load server config: %w", err)
	}
	state, err := o.store.GetProvisioningState(ctx, inst.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load provisioning state: %w", err)
	}
	return inst, &cfg, &state, nil
}

// Start starts the instance service and marks the instance active.
func (o *Orchestrator) Start(ctx context.Context, name string) error {
	return o.control(ctx, name, o.svc.Start, db.InstanceActive)
}

// Stop stops the instance service and marks the instance inactive.
func (o *Orchestrator) Stop(ctx context.Context, name string) error {
	return o.control(ctx, name, o.svc.Stop, db.InstanceInactive)
}

// Restart restarts the instance service.
func (o *Orchestrator) Restart(ctx context.Context, name string) error {
	return o.control(ctx, name, o.svc.Restart, db.InstanceActive)
}

func (o *Orchestrator) control(ctx context.Context, name string,
	op func(context.Context, string) error, status db.InstanceStatus) error {
	inst, err := o.registry.Get(ctx, name)
	if err != nil {
		return err
	}
	if inst == nil {
		return apperrors.NewNotFoundError("instance", name)
	}
	if err := op(ctx, name); err != nil {
		return err
	}
	return o.registry.UpdateStatus(ctx, name, status)
}
