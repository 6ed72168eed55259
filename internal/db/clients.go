package db

import (
	"context"
	"database/sql"
	"time"
)

// CreateClientParams are the inputs for CreateClientCredential.
type CreateClientParams struct {
	InstanceID    string
	Name          string
	CommonName    string
	StaticAddress string
	Notes         string
	ExpiresAt     *time.Time
}

const createClientCredential = `
INSERT INTO client_credentials (
	instance_id, name, status, common_name, static_address, notes,
	created_at, expires_at
) VALUES (?, ?, 'active', ?, ?, ?, ?, ?)
RETURNING id, instance_id, name, status, common_name, static_address,
	notes, created_at, revoked_at, expires_at
`

// CreateClientCredential inserts a new active client credential.
func (q *Queries) CreateClientCredential(ctx context.Context, params CreateClientParams) (ClientCredential, error) {
	row := q.db.QueryRowContext(ctx, createClientCredential,
		params.InstanceID, params.Name, params.CommonName,
		params.StaticAddress, params.Notes, time.Now().UTC(), nullTime(params.ExpiresAt))
	return scanClient(row)
}

const getClientCredential = `
SELECT id, instance_id, name, status, common_name, static_address,
	notes, created_at, revoked_at, expires_at
FROM client_credentials WHERE instance_id = ? AND name = ?
`

// GetClientCredential fetches one credential by instance and name.
func (q *Queries) GetClientCredential(ctx context.Context, instanceID, name string) (ClientCredential, error) {
	return scanClient(q.db.QueryRowContext(ctx, getClientCredential, instanceID, name))
}

const listClientCredentials = `
SELECT id, instance_id, name, status, common_name, static_address,
	notes, created_at, revoked_at, expires_at
FROM client_credentials WHERE instance_id = ? ORDER BY created_at ASC, name ASC
`

// ListClientCredentials returns all credentials of an instance.
func (q *Queries) ListClientCredentials(ctx context.Context, instanceID string) ([]ClientCredential, error) {
	rows, err := q.db.QueryContext(ctx, listClientCredentials, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClientCredential
	for rows.Next() {
		cred, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cred)
	}
	return out, rows.Err()
}

const revokeClientCredential = `
UPDATE client_credentials SET status = 'revoked', revoked_at = ?
WHERE instance_id = ? AND name = ?
`

// RevokeClientCredential marks a credential revoked with a timestamp.
func (q *Queries) RevokeClientCredential(ctx context.Context, instanceID, name string) error {
	_, err := q.db.ExecContext(ctx, revokeClientCredential, time.Now().UTC(), instanceID, name)
	return err
}

const renewClientCredential = `
UPDATE client_credentials
SET status = 'active', revoked_at = NULL, created_at = ?, expires_at = NULL
WHERE instance_id = ? AND name = ?
`

// RenewClientCredential resets a credential to active with fresh
// timestamps, after new certificate material has been issued.
func (q *Queries) RenewClientCredential(ctx context.Context, instanceID, name string) error {
	_, err := q.db.ExecContext(ctx, renewClientCredential, time.Now().UTC(), instanceID, name)
	return err
}

func scanClient(row rowScanner) (ClientCredential, error) {
	var cred ClientCredential
	var revoked, expires sql.NullTime
	err := row.Scan(&cred.ID, &cred.InstanceID, &cred.Name, &cred.Status,
		&cred.CommonName, &cred.StaticAddress, &cred.Notes,
		&cred.CreatedAt, &revoked, &expires)
	if err != nil {
		return ClientCredential{}, err
	}
	if revoked.Valid {
		cred.RevokedAt = &revoked.Time
	}
	if expires.Valid {
		cred.ExpiresAt = &expires.Time
	}
	return cred, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
