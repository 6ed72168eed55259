// Package monitor reads the per-instance OpenVPN status feed, records
// connection history and aggregates bandwidth telemetry.
package monitor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rizaleow/ovpn-manager/internal/db"
	"github.com/rizaleow/ovpn-manager/internal/registry"
	apperrors "github.com/rizaleow/ovpn-manager/pkg/errors"
	"github.com/rizaleow/ovpn-manager/pkg/logger"
)

// Monitor polls status feeds and persists connection snapshots.
type Monitor struct {
	store    db.Store
	registry *registry.Registry
	metrics  *Metrics
	interval time.Duration
	logger   *logger.Logger
}

// New creates a Monitor. Metrics may be nil when telemetry export is
// not wanted.
func New(store db.Store, reg *registry.Registry, metrics *Metrics,
	interval time.Duration, log *logger.Logger) *Monitor {
	return &Monitor{
		store:    store,
		registry: reg,
		metrics:  metrics,
		interval: interval,
		logger:   log.WithComponent("monitor"),
	}
}

// ActiveConnections reads and parses the instance status feed. A
// missing or empty feed yields an empty list, never an error.
func (m *Monitor) ActiveConnections(ctx context.Context, instance string) ([]Connection, error) {
	inst, err := m.registry.Get(ctx, instance)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, apperrors.NewNotFoundError("instance", instance)
	}

	data, err := os.ReadFile(m.registry.Paths(instance).StatusPath)
	if os.IsNotExist(err) {
		return []Connection{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status feed: %w", err)
	}

	conns := ParseStatus(string(data))
	if conns == nil {
		conns = []Connection{}
	}
	return conns, nil
}

// RecordSnapshot persists the current sessions as history rows, one
// per client. When the feed repeats a client name within one snapshot
// the last occurrence wins.
func (m *Monitor) RecordSnapshot(ctx context.Context, instance string) (int, error) {
	inst, err := m.registry.Get(ctx, instance)
	if err != nil {
		return 0, err
	}
	if inst == nil {
		return 0, apperrors.NewNotFoundError("instance", instance)
	}

	conns, err := m.ActiveConnections(ctx, instance)
	if err != nil {
		return 0, err
	}

	latest := make(map[string]Connection, len(conns))
	order := make([]string, 0, len(conns))
	for _, conn := range conns {
		if _, seen := latest[conn.ClientName]; !seen {
			order = append(order, conn.ClientName)
		}
		latest[conn.ClientName] = conn
	}

	for _, name := range order {
		conn := latest[name]
		err := m.store.InsertConnectionRecord(ctx, db.ConnectionRecord{
			InstanceID:     inst.ID,
			ClientName:     conn.ClientName,
			RealAddress:    conn.RealAddress,
			VirtualAddress: conn.VirtualAddress,
			BytesReceived:  conn.BytesReceived,
			BytesSent:      conn.BytesSent,
			ConnectedSince: conn.ConnectedSince,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to record connection snapshot: %w", err)
		}
	}

	deduped := make([]Connection, 0, len(order))
	for _, name := range order {
		deduped = append(deduped, latest[name])
	}
	if m.metrics != nil {
		m.metrics.observe(instance, deduped)
	}

	m.logger.DebugContext(ctx, "snapshot recorded",
		"instance", instance, "connections", len(order))
	return len(order), nil
}

// HistoryPage is one page of connection history.
type HistoryPage struct {
	Records []db.ConnectionRecord `json:"records"`
	Total   int64                 `json:"total"`
	Page    int                   `json:"page"`
	Limit   int                   `json:"limit"`
}

// History returns connection history most recent first.
func (m *Monitor) History(ctx context.Context, instance string, page, limit int) (*HistoryPage, error) {
	inst, err := m.registry.Get(ctx, instance)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, apperrors.NewNotFoundError("instance", instance)
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	records, err := m.store.ListConnectionHistory(ctx, inst.ID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list connection history: %w", err)
	}
	total, err := m.store.CountConnectionRecords(ctx, inst.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count connection records: %w", err)
	}

	return &HistoryPage{Records: records, Total: total, Page: page, Limit: limit}, nil
}

// Bandwidth returns per-client cumulative byte aggregates ordered by
// bytes received descending.
func (m *Monitor) Bandwidth(ctx context.Context, instance string) ([]db.BandwidthStat, error) {
	inst, err := m.registry.Get(ctx, instance)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, apperrors.NewNotFoundError("instance", instance)
	}
	return m.store.BandwidthStats(ctx, inst.ID)
}

// Start polls every interval, snapshotting each active instance, until
// the context is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info("starting connection monitor", "interval", m.interval.String())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("connection monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.pollOnce(ctx)
		}
	}
}

func (m *Monitor) pollOnce(ctx context.Context) {
	instances, err := m.store.ListInstances(ctx)
	if err != nil {
		m.logger.ErrorCtx(ctx, "failed to list instances during poll", err)
		return
	}
	for _, inst := range instances {
		if inst.Status != db.InstanceActive {
			continue
		}
		if _, err := m.RecordSnapshot(ctx, inst.Name); err != nil {
			if m.metrics != nil {
				m.metrics.snapshotErrors.WithLabelValues(inst.Name).Inc()
			}
			m.logger.ErrorCtx(ctx, "snapshot failed", err, "instance", inst.Name)
		}
	}
}
