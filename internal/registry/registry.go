// Package registry maintains the persisted directory of managed
// instances and their derived filesystem paths.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/google/uuid"

	"github.com/rizaleow/ovpn-manager/internal/db"
	apperrors "github.com/rizaleow/ovpn-manager/pkg/errors"
	"github.com/rizaleow/ovpn-manager/pkg/logger"
)

// nameRe constrains instance names to slugs usable as directory names,
// interface suffixes and systemd unit instances.
var nameRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,30}[a-z0-9])?$`)

// ServiceStopper is the subset of service control the registry needs
// during delete.
type ServiceStopper interface {
	Stop(ctx context.Context, instance string) error
	Disable(ctx context.Context, instance string) error
}

// Registry is the persisted instance directory.
type Registry struct {
	store   db.Store
	baseDir string
	svc     ServiceStopper
	logger  *logger.Logger
}

// New creates a Registry rooted at baseDir.
func New(store db.Store, baseDir string, svc ServiceStopper, log *logger.Logger) *Registry {
	return &Registry{
		store:   store,
		baseDir: baseDir,
		svc:     svc,
		logger:  log.WithComponent("registry"),
	}
}

// Paths returns the canonical paths for an instance name.
func (r *Registry) Paths(name string) Paths {
	return DerivePaths(r.baseDir, name)
}

// Create validates the name, creates the per-instance directories and
// inserts the instance with its default server config and provisioning
// state as one atomic unit. On any failure the directories created here
// are removed and no partial record set is retained.
func (r *Registry) Create(ctx context.Context, name, displayName string) (*db.Instance, error) {
	if !nameRe.MatchString(name) {
		return nil, apperrors.NewValidationError("name",
			"must be a lowercase slug (letters, digits, hyphens, max 32 chars)")
	}

	if _, err := r.store.GetInstanceByName(ctx, name); err == nil {
		return nil, apperrors.NewConflictError("instance", name, "an instance with this name already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check name uniqueness: %w", err)
	}

	paths := r.Paths(name)
	created, err := createDirs(paths)
	if err != nil {
		removeDirs(created)
		return nil, fmt.Errorf("failed to create instance directories: %w", err)
	}

	id := uuid.New().String()
	var inst db.Instance
	err = r.store.ExecTx(ctx, func(q *db.Queries) error {
		var txErr error
		inst, txErr = q.CreateInstance(ctx, db.CreateInstanceParams{
			ID:          id,
			Name:        name,
			DisplayName: displayName,
			Status:      db.InstanceProvisioning,
		})
		if txErr != nil {
			return txErr
		}
		if txErr = q.CreateServerConfig(ctx, defaultServerConfig(id)); txErr != nil {
			return txErr
		}
		return q.CreateProvisioningState(ctx, id)
	})
	if err != nil {
		removeDirs(created)
		return nil, fmt.Errorf("failed to create instance records: %w", err)
	}

	r.logger.InfoContext(ctx, "instance created", "instance", name, "id", id)
	return &inst, nil
}

// List returns all instances ordered by creation time.
func (r *Registry) List(ctx context.Context) ([]db.Instance, error) {
	return r.store.ListInstances(ctx)
}

// Get returns the instance with the given name, or nil when absent.
func (r *Registry) Get(ctx context.Context, name string) (*db.Instance, error) {
	inst, err := r.store.GetInstanceByName(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// GetByID returns the instance with the given ID, or nil when absent.
func (r *Registry) GetByID(ctx context.Context, id string) (*db.Instance, error) {
	inst, err := r.store.GetInstanceByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// Delete stops and disables the associated service and removes the
// filesystem artifacts, both best-effort, then deletes the instance row
// (dependents cascade). Best-effort failures are returned as warnings,
// never as errors. Deleting a nonexistent instance is a no-op.
func (r *Registry) Delete(ctx context.Context, name string) ([]string, error) {
	var warnings []string

	if r.svc != nil {
		if err := r.svc.Stop(ctx, name); err != nil {
			warnings = append(warnings, fmt.Sprintf("service stop failed: %v", err))
			r.logger.WithContext(ctx).Warn("best-effort service stop failed", "instance", name, "error", err)
		}
		if err := r.svc.Disable(ctx, name); err != nil {
			warnings = append(warnings, fmt.Sprintf("service disable failed: %v", err))
			r.logger.WithContext(ctx).Warn("best-effort service disable failed", "instance", name, "error", err)
		}
	}

	paths := r.Paths(name)
	if err := os.RemoveAll(paths.Root); err != nil {
		warnings = append(warnings, fmt.Sprintf("artifact removal failed: %v", err))
		r.logger.WithContext(ctx).Warn("best-effort artifact removal failed", "instance", name, "error", err)
	}

	if err := r.store.DeleteInstance(ctx, name); err != nil {
		return warnings, fmt.Errorf("failed to delete instance record: %w", err)
	}

	r.logger.InfoContext(ctx, "instance deleted", "instance", name, "warnings", len(warnings))
	return warnings, nil
}

// UpdateStatus updates the instance status and touch timestamp.
func (r *Registry) UpdateStatus(ctx context.Context, name string, status db.InstanceStatus) error {
	return r.store.UpdateInstanceStatus(ctx, name, status)
}

func defaultServerConfig(instanceID string) db.ServerConfig {
	return db.ServerConfig{
		InstanceID: instanceID,
		Protocol:   "udp",
		Port:       1194,
		Device:     "tun",
		Subnet:     "10.8.0.0",
		Mask:       "255.255.255.0",
		Cipher:     "AES-256-GCM",
		AuthDigest: "SHA256",
		TLSAuth:    true,
		MaxClients: 100,
		Keepalive:  "10 120",
	}
}

// createDirs creates the per-instance directories, returning the ones
// actually created so a failure can be unwound precisely.
func createDirs(paths Paths) ([]string, error) {
	var created []string
	for _, dir := range []string{paths.Root, paths.PKIDir, paths.CCDDir} {
		if _, err := os.Stat(dir); err == nil {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return created, err
		}
		created = append(created, dir)
	}
	return created, nil
}

func removeDirs(dirs []string) {
	// Reverse order so children go before parents.
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.RemoveAll(dirs[i])
	}
}
