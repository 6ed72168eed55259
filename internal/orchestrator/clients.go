package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rizaleow/ovpn-manager/internal/db"
	"github.com/rizaleow/ovpn-manager/internal/render"
	apperrors "github.com/rizaleow/ovpn-manager/pkg/errors"
	"github.com/rizaleow/ovpn-manager/pkg/logger"
)

// IssueClientParams are the inputs for issuing a client credential.
type IssueClientParams struct {
	Name          string
	StaticAddress string
	Notes         string
}

// RevokeResult reports the outcome of a revocation.
type RevokeResult struct {
	Client         string `json:"client"`
	AlreadyRevoked bool   `json:"already_revoked"`
	Message        string `json:"message"`
}

// IssueClient issues a certificate for a new client of the instance,
// records the credential and writes the per-client override when a
// static address is requested.
func (o *Orchestrator) IssueClient(ctx context.Context, instance string, params IssueClientParams) (*db.ClientCredential, error) {
	l := o.lock(instance)
	l.Lock()
	defer l.Unlock()

	if params.Name == "" {
		return nil, apperrors.NewValidationError("name", "client name is required")
	}

	inst, err := o.registry.Get(ctx, instance)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, apperrors.NewNotFoundError("instance", instance)
	}

	if _, err := o.store.GetClientCredential(ctx, inst.ID, params.Name); err == nil {
		return nil, apperrors.NewConflictError("client", params.Name, "a client with this name already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check client uniqueness: %w", err)
	}

	ctx = logger.WithClient(logger.WithInstance(ctx, instance), params.Name)

	auth := o.authority(instance)
	if err := auth.IssueClient(ctx, params.Name); err != nil {
		return nil, fmt.Errorf("failed to issue client certificate: %w", err)
	}

	cred, err := o.store.CreateClientCredential(ctx, db.CreateClientParams{
		InstanceID:    inst.ID,
		Name:          params.Name,
		CommonName:    params.Name,
		StaticAddress: params.StaticAddress,
		Notes:         params.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record client credential: %w", err)
	}

	if params.StaticAddress != "" {
		cfg, err := o.store.GetServerConfig(ctx, inst.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load server config: %w", err)
		}
		ccd := o.registry.Paths(instance).CCDDir
		if err := auth.WriteClientOverride(ccd, params.Name, params.StaticAddress, cfg.Mask); err != nil {
			return nil, fmt.Errorf("failed to write client override: %w", err)
		}
	}

	_ = o.bus.PublishClientIssued(inst.ID, params.Name, false)
	o.logger.InfoContext(ctx, "client issued", "static_address", params.StaticAddress)
	return &cred, nil
}

// RevokeClient revokes a client certificate and regenerates the
// revocation list. Revoking an already revoked client is a no-op with
// an informational result. When the certificate is revoked but the
// list regeneration fails, the credential is still marked revoked and
// the distinct fence error is surfaced so the caller can retry the
// regeneration alone.
func (o *Orchestrator) RevokeClient(ctx context.Context, instance, client string) (*RevokeResult, error) {
	l := o.lock(instance)
	l.Lock()
	defer l.Unlock()

	inst, err := o.registry.Get(ctx, instance)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, apperrors.NewNotFoundError("instance", instance)
	}

	cred, err := o.store.GetClientCredential(ctx, inst.ID, client)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("client", client)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load client credential: %w", err)
	}
	if cred.Status == db.ClientRevoked {
		return &RevokeResult{
			Client:         client,
			AlreadyRevoked: true,
			Message:        "client is already revoked",
		}, nil
	}

	ctx = logger.WithClient(logger.WithInstance(ctx, instance), client)

	auth := o.authority(instance)
	revokeErr := auth.Revoke(ctx, client)
	if revokeErr != nil && !apperrors.IsRevocationFence(revokeErr) {
		return nil, revokeErr
	}

	// The certificate is revoked at this point even when the fence
	// regeneration failed.
	if err := o.store.RevokeClientCredential(ctx, inst.ID, client); err != nil {
		return nil, fmt.Errorf("failed to record revocation: %w", err)
	}
	if err := auth.RemoveClientOverride(o.registry.Paths(instance).CCDDir, client); err != nil {
		o.logger.WithContext(ctx).Warn("failed to remove client override", "error", err)
	}

	_ = o.bus.PublishClientRevoked(inst.ID, client, revokeErr == nil)

	if revokeErr != nil {
		return nil, revokeErr
	}
	o.logger.InfoContext(ctx, "client revoked")
	return &RevokeResult{Client: client, Message: "client revoked"}, nil
}

// RegenerateCRL rebuilds the revocation list for an instance. It is
// the retry path after a fenced revocation failure.
func (o *Orchestrator) RegenerateCRL(ctx context.Context, instance string) error {
	inst, err := o.registry.Get(ctx, instance)
	if err != nil {
		return err
	}
	if inst == nil {
		return apperrors.NewNotFoundError("instance", instance)
	}
	return o.authority(instance).GenCRL(ctx)
}

// RenewClient issues fresh certificate material for an existing client
// and resets the credential to active.
func (o *Orchestrator) RenewClient(ctx context.Context, instance, client string) (*db.ClientCredential, error) {
	l := o.lock(instance)
	l.Lock()
	defer l.Unlock()

	inst, err := o.registry.Get(ctx, instance)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, apperrors.NewNotFoundError("instance", instance)
	}

	if _, err := o.store.GetClientCredential(ctx, inst.ID, client); errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("client", client)
	} else if err != nil {
		return nil, fmt.Errorf("failed to load client credential: %w", err)
	}

	ctx = logger.WithClient(logger.WithInstance(ctx, instance), client)

	if err := o.authority(instance).IssueClient(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to reissue client certificate: %w", err)
	}
	if err := o.store.RenewClientCredential(ctx, inst.ID, client); err != nil {
		return nil, fmt.Errorf("failed to record renewal: %w", err)
	}

	cred, err := o.store.GetClientCredential(ctx, inst.ID, client)
	if err != nil {
		return nil, fmt.Errorf("failed to reload client credential: %w", err)
	}

	_ = o.bus.PublishClientIssued(inst.ID, client, true)
	o.logger.InfoContext(ctx, "client renewed")
	return &cred, nil
}

// ListClients returns all credentials of an instance.
func (o *Orchestrator) ListClients(ctx context.Context, instance string) ([]db.ClientCredential, error) {
	inst, err := o.registry.Get(ctx, instance)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, apperrors.NewNotFoundError("instance", instance)
	}
	return o.store.ListClientCredentials(ctx, inst.ID)
}

// ClientProfile assembles the connection profile for a client, with
// the credential material inlined.
func (o *Orchestrator) ClientProfile(ctx context.Context, instance, client string) (string, error) {
	inst, err := o.registry.Get(ctx, instance)
	if err != nil {
		return "", err
	}
	if inst == nil {
		return "", apperrors.NewNotFoundError("instance", instance)
	}

	cred, err := o.store.GetClientCredential(ctx, inst.ID, client)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NewNotFoundError("client", client)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load client credential: %w", err)
	}
	if cred.Status != db.ClientActive {
		return "", apperrors.NewConflictError("client", client, "cannot export a profile for a revoked client")
	}

	cfg, err := o.store.GetServerConfig(ctx, inst.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load server config: %w", err)
	}

	auth := o.authority(instance)
	caCert, err := auth.CACertificate()
	if err != nil {
		return "", fmt.Errorf("failed to read CA certificate: %w", err)
	}
	clientCert, err := auth.ClientCertificate(client)
	if err != nil {
		return "", fmt.Errorf("failed to read client certificate: %w", err)
	}
	clientKey, err := auth.ClientKey(client)
	if err != nil {
		return "", fmt.Errorf("failed to read client key: %w", err)
	}

	var tlsAuthKey string
	if cfg.TLSAuth {
		tlsAuthKey, err = auth.TLSAuthKey()
		if err != nil {
			return "", fmt.Errorf("failed to read shared-secret key: %w", err)
		}
	}

	return render.ClientProfile(cfg, caCert, clientCert, clientKey, tlsAuthKey), nil
}
