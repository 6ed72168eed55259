package db

import (
	"context"
	"time"
)

// CreateInstanceParams are the inputs for CreateInstance.
type CreateInstanceParams struct {
	ID          string
	Name        string
	DisplayName string
	Status      InstanceStatus
}

const createInstance = `
INSERT INTO instances (id, name, display_name, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id, name, display_name, status, created_at, updated_at
`

// CreateInstance inserts a new instance row.
func (q *Queries) CreateInstance(ctx context.Context, params CreateInstanceParams) (Instance, error) {
	now := time.Now().UTC()
	row := q.db.QueryRowContext(ctx, createInstance,
		params.ID, params.Name, params.DisplayName, params.Status, now, now)
	return scanInstance(row)
}

const getInstanceByName = `
SELECT id, name, display_name, status, created_at, updated_at
FROM instances WHERE name = ?
`

// GetInstanceByName fetches an instance by its unique name.
func (q *Queries) GetInstanceByName(ctx context.Context, name string) (Instance, error) {
	return scanInstance(q.db.QueryRowContext(ctx, getInstanceByName, name))
}

const getInstanceByID = `
SELECT id, name, display_name, status, created_at, updated_at
FROM instances WHERE id = ?
`

// GetInstanceByID fetches an instance by its ID.
func (q *Queries) GetInstanceByID(ctx context.Context, id string) (Instance, error) {
	return scanInstance(q.db.QueryRowContext(ctx, getInstanceByID, id))
}

const listInstances = `
SELECT id, name, display_name, status, created_at, updated_at
FROM instances ORDER BY created_at ASC, name ASC
`

// ListInstances returns all instances ordered by creation time.
func (q *Queries) ListInstances(ctx context.Context) ([]Instance, error) {
	rows, err := q.db.QueryContext(ctx, listInstances)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Instance
	for rows.Next() {
		var inst Instance
		if err := rows.Scan(&inst.ID, &inst.Name, &inst.DisplayName, &inst.Status,
			&inst.CreatedAt, &inst.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

const updateInstanceStatus = `
UPDATE instances SET status = ?, updated_at = ? WHERE name = ?
`

// UpdateInstanceStatus updates an instance's status and touch timestamp.
func (q *Queries) UpdateInstanceStatus(ctx context.Context, name string, status InstanceStatus) error {
	_, err := q.db.ExecContext(ctx, updateInstanceStatus, status, time.Now().UTC(), name)
	return err
}

const deleteInstance = `DELETE FROM instances WHERE name = ?`

// DeleteInstance removes an instance row; dependent rows cascade.
func (q *Queries) DeleteInstance(ctx context.Context, name string) error {
	_, err := q.db.ExecContext(ctx, deleteInstance, name)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (Instance, error) {
	var inst Instance
	err := row.Scan(&inst.ID, &inst.Name, &inst.DisplayName, &inst.Status,
		&inst.CreatedAt, &inst.UpdatedAt)
	return inst, err
}
