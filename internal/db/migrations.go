package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Migration is one versioned schema change. Either Up (SQL) or UpFunc
// (Go, for data rewrites) runs inside its own transaction.
type Migration struct {
	Version     int
	Description string
	Up          string
	UpFunc      func(*sql.Tx) error
}

// GetMigrations returns all available migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Initial multi-instance schema",
			Up:          ddl,
		},
		{
			Version:     2,
			Description: "Rewrite legacy single-instance schema under a synthetic default instance",
			UpFunc:      migrateLegacySchema,
		},
	}
}

func ensureMigrationsTable(db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`
	_, err := db.Exec(query)
	return err
}

func getCurrentVersion(db *sql.DB) (int, error) {
	if err := ensureMigrationsTable(db); err != nil {
		return 0, fmt.Errorf("failed to ensure migrations table: %w", err)
	}

	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}

	return version, nil
}

func applyMigration(db *sql.DB, migration Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if migration.Up != "" {
		if _, err := tx.Exec(migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}
	if migration.UpFunc != nil {
		if err := migration.UpFunc(tx); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	_, err = tx.Exec(
		"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
		migration.Version,
		migration.Description,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}

	return nil
}

// runMigrations applies all pending migrations, each in its own
// transaction.
func runMigrations(db *sql.DB) error {
	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return err
	}

	for _, migration := range GetMigrations() {
		if migration.Version <= currentVersion {
			continue
		}

		if err := applyMigration(db, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
	}

	return nil
}

// migrateLegacySchema detects the pre-multi-instance layout (one global
// server_config table plus provisioning_state, clients and connections
// tables without instance scoping) and rewrites it: a synthetic
// "default" instance is created and every existing row is re-parented
// to it. The legacy tables are dropped afterwards. Running inside one
// transaction, any failure rolls the whole rewrite back and leaves the
// original schema untouched.
func migrateLegacySchema(tx *sql.Tx) error {
	var name string
	err := tx.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'server_config'").Scan(&name)
	if err == sql.ErrNoRows {
		return nil // nothing to migrate
	}
	if err != nil {
		return fmt.Errorf("failed to detect legacy schema: %w", err)
	}

	instanceID := uuid.New().String()
	now := time.Now().UTC()

	if _, err := tx.Exec(
		`INSERT INTO instances (id, name, display_name, status, created_at, updated_at)
		 VALUES (?, 'default', 'Default', 'inactive', ?, ?)`,
		instanceID, now, now); err != nil {
		return fmt.Errorf("failed to create default instance: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO server_configs (
			instance_id, hostname, protocol, port, device, subnet, mask,
			dns_servers, cipher, auth_digest, tls_auth, compression,
			client_to_client, max_clients, keepalive, pki_initialized,
			created_at, updated_at)
		 SELECT ?, hostname, protocol, port, device, subnet, mask,
			dns_servers, cipher, auth_digest, tls_auth, compression,
			client_to_client, max_clients, keepalive, pki_initialized,
			created_at, updated_at
		 FROM server_config LIMIT 1`, instanceID); err != nil {
		return fmt.Errorf("failed to re-parent server config: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO provisioning_states (instance_id, step, completed, started_at, completed_at, last_error)
		 SELECT ?, step, completed, started_at, completed_at, COALESCE(last_error, '')
		 FROM provisioning_state LIMIT 1`, instanceID); err != nil {
		return fmt.Errorf("failed to re-parent provisioning state: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO client_credentials (
			instance_id, name, status, common_name, static_address, notes,
			created_at, revoked_at, expires_at)
		 SELECT ?, name, status, common_name, COALESCE(static_address, ''),
			COALESCE(notes, ''), created_at, revoked_at, expires_at
		 FROM clients`, instanceID); err != nil {
		return fmt.Errorf("failed to re-parent clients: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO connection_records (
			instance_id, client_name, real_address, virtual_address,
			bytes_received, bytes_sent, connected_since, recorded_at)
		 SELECT ?, client_name, real_address, virtual_address,
			bytes_received, bytes_sent, connected_since, recorded_at
		 FROM connections`, instanceID); err != nil {
		return fmt.Errorf("failed to re-parent connection records: %w", err)
	}

	for _, legacy := range []string{"server_config", "provisioning_state", "clients", "connections"} {
		if _, err := tx.Exec("DROP TABLE IF EXISTS " + legacy); err != nil {
			return fmt.Errorf("failed to drop legacy table %s: %w", legacy, err)
		}
	}

	return nil
}
