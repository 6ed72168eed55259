package db

import (
	"context"
	"database/sql"
	"time"
)

const createServerConfig = `
INSERT INTO server_configs (
	instance_id, hostname, protocol, port, device, subnet, mask,
	dns_servers, cipher, auth_digest, tls_auth, compression,
	client_to_client, max_clients, keepalive, pki_initialized,
	created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// CreateServerConfig inserts the server config row for an instance.
func (q *Queries) CreateServerConfig(ctx context.Context, cfg ServerConfig) error {
	now := time.Now().UTC()
	_, err := q.db.ExecContext(ctx, createServerConfig,
		cfg.InstanceID, cfg.Hostname, cfg.Protocol, cfg.Port, cfg.Device,
		cfg.Subnet, cfg.Mask, joinDNS(cfg.DNSServers), cfg.Cipher,
		cfg.AuthDigest, cfg.TLSAuth, cfg.Compression, cfg.ClientToClient,
		cfg.MaxClients, cfg.Keepalive, cfg.PKIInitialized, now, now)
	return err
}

const getServerConfig = `
SELECT instance_id, hostname, protocol, port, device, subnet, mask,
	dns_servers, cipher, auth_digest, tls_auth, compression,
	client_to_client, max_clients, keepalive, pki_initialized,
	created_at, updated_at
FROM server_configs WHERE instance_id = ?
`

// GetServerConfig fetches the server config for an instance.
func (q *Queries) GetServerConfig(ctx context.Context, instanceID string) (ServerConfig, error) {
	var cfg ServerConfig
	var dns string
	err := q.db.QueryRowContext(ctx, getServerConfig, instanceID).Scan(
		&cfg.InstanceID, &cfg.Hostname, &cfg.Protocol, &cfg.Port, &cfg.Device,
		&cfg.Subnet, &cfg.Mask, &dns, &cfg.Cipher, &cfg.AuthDigest,
		&cfg.TLSAuth, &cfg.Compression, &cfg.ClientToClient, &cfg.MaxClients,
		&cfg.Keepalive, &cfg.PKIInitialized, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return ServerConfig{}, err
	}
	cfg.DNSServers = splitDNS(dns)
	return cfg, nil
}

const updateServerConfig = `
UPDATE server_configs SET
	hostname = ?, protocol = ?, port = ?, device = ?, subnet = ?, mask = ?,
	dns_servers = ?, cipher = ?, auth_digest = ?, tls_auth = ?,
	compression = ?, client_to_client = ?, max_clients = ?, keepalive = ?,
	updated_at = ?
WHERE instance_id = ?
`

// UpdateServerConfig persists new server parameters for an instance.
func (q *Queries) UpdateServerConfig(ctx context.Context, cfg ServerConfig) error {
	_, err := q.db.ExecContext(ctx, updateServerConfig,
		cfg.Hostname, cfg.Protocol, cfg.Port, cfg.Device, cfg.Subnet,
		cfg.Mask, joinDNS(cfg.DNSServers), cfg.Cipher, cfg.AuthDigest,
		cfg.TLSAuth, cfg.Compression, cfg.ClientToClient, cfg.MaxClients,
		cfg.Keepalive, time.Now().UTC(), cfg.InstanceID)
	return err
}

const setPKIInitialized = `
UPDATE server_configs SET pki_initialized = ?, updated_at = ? WHERE instance_id = ?
`

// SetPKIInitialized flips the authority-initialized flag.
func (q *Queries) SetPKIInitialized(ctx context.Context, instanceID string, initialized bool) error {
	_, err := q.db.ExecContext(ctx, setPKIInitialized, initialized, time.Now().UTC(), instanceID)
	return err
}

const createProvisioningState = `
INSERT INTO provisioning_states (instance_id, step, completed, last_error)
VALUES (?, 'none', 0, '')
`

// CreateProvisioningState inserts the initial state row for an instance.
func (q *Queries) CreateProvisioningState(ctx context.Context, instanceID string) error {
	_, err := q.db.ExecContext(ctx, createProvisioningState, instanceID)
	return err
}

const getProvisioningState = `
SELECT instance_id, step, completed, started_at, completed_at, last_error
FROM provisioning_states WHERE instance_id = ?
`

// GetProvisioningState fetches the provisioning state for an instance.
func (q *Queries) GetProvisioningState(ctx context.Context, instanceID string) (ProvisioningState, error) {
	var st ProvisioningState
	var started, completed sql.NullTime
	err := q.db.QueryRowContext(ctx, getProvisioningState, instanceID).Scan(
		&st.InstanceID, &st.Step, &st.Completed, &started, &completed, &st.LastError)
	if err != nil {
		return ProvisioningState{}, err
	}
	if started.Valid {
		st.StartedAt = &started.Time
	}
	if completed.Valid {
		st.CompletedAt = &completed.Time
	}
	return st, nil
}

const setProvisioningStep = `
UPDATE provisioning_states SET step = ? WHERE instance_id = ?
`

// SetProvisioningStep durably records the last completed step.
func (q *Queries) SetProvisioningStep(ctx context.Context, instanceID string, step ProvisioningStep) error {
	_, err := q.db.ExecContext(ctx, setProvisioningStep, step, instanceID)
	return err
}

const resetProvisioning = `
UPDATE provisioning_states
SET step = 'none', completed = 0, started_at = ?, completed_at = NULL, last_error = ''
WHERE instance_id = ?
`

// ResetProvisioning rewinds the state machine for a fresh setup run.
func (q *Queries) ResetProvisioning(ctx context.Context, instanceID string) error {
	_, err := q.db.ExecContext(ctx, resetProvisioning, time.Now().UTC(), instanceID)
	return err
}

const completeProvisioning = `
UPDATE provisioning_states SET completed = 1, completed_at = ? WHERE instance_id = ?
`

// CompleteProvisioning marks the run finished.
func (q *Queries) CompleteProvisioning(ctx context.Context, instanceID string) error {
	_, err := q.db.ExecContext(ctx, completeProvisioning, time.Now().UTC(), instanceID)
	return err
}

const setProvisioningError = `
UPDATE provisioning_states SET last_error = ? WHERE instance_id = ?
`

// SetProvisioningError persists the failure message of the current run.
func (q *Queries) SetProvisioningError(ctx context.Context, instanceID string, message string) error {
	_, err := q.db.ExecContext(ctx, setProvisioningError, message, instanceID)
	return err
}
