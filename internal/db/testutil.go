package db

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// NewTestDB creates a new in-memory SQLite database for testing.
func NewTestDB(t *testing.T) (*sql.DB, Store) {
	t.Helper()

	db, err := sql.Open("sqlite3", "file::memory:?mode=memory&_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// A single connection keeps every statement on the same in-memory
	// database.
	db.SetMaxOpenConns(1)

	store := NewStoreFromDB(db)
	if err := store.Setup(context.Background()); err != nil {
		db.Close()
		t.Fatalf("failed to setup test database schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db, store
}

// SeedTestInstance creates an instance with its dependent rows the way
// the registry does, without touching the filesystem.
func SeedTestInstance(t *testing.T, store Store, id, name string) Instance {
	t.Helper()

	ctx := context.Background()
	var inst Instance
	err := store.ExecTx(ctx, func(q *Queries) error {
		var err error
		inst, err = q.CreateInstance(ctx, CreateInstanceParams{
			ID:     id,
			Name:   name,
			Status: InstanceProvisioning,
		})
		if err != nil {
			return err
		}
		if err := q.CreateServerConfig(ctx, ServerConfig{InstanceID: id,
			Protocol: "udp", Port: 1194, Device: "tun",
			Subnet: "10.8.0.0", Mask: "255.255.255.0",
			Cipher: "AES-256-GCM", AuthDigest: "SHA256",
			MaxClients: 100, Keepalive: "10 120", TLSAuth: true}); err != nil {
			return err
		}
		return q.CreateProvisioningState(ctx, id)
	})
	if err != nil {
		t.Fatalf("failed to seed test instance: %v", err)
	}

	return inst
}
