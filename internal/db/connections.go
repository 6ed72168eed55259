package db

import (
	"context"
	"database/sql"
	"time"
)

const insertConnectionRecord = `
INSERT INTO connection_records (
	instance_id, client_name, real_address, virtual_address,
	bytes_received, bytes_sent, connected_since, recorded_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

// InsertConnectionRecord appends one session snapshot row.
func (q *Queries) InsertConnectionRecord(ctx context.Context, rec ConnectionRecord) error {
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	_, err := q.db.ExecContext(ctx, insertConnectionRecord,
		rec.InstanceID, rec.ClientName, rec.RealAddress, rec.VirtualAddress,
		rec.BytesReceived, rec.BytesSent, nullTime(rec.ConnectedSince), recordedAt)
	return err
}

const listConnectionHistory = `
SELECT id, instance_id, client_name, real_address, virtual_address,
	bytes_received, bytes_sent, connected_since, recorded_at
FROM connection_records WHERE instance_id = ?
ORDER BY recorded_at DESC, id DESC
LIMIT ? OFFSET ?
`

// ListConnectionHistory returns a most-recent-first page of records.
func (q *Queries) ListConnectionHistory(ctx context.Context, instanceID string, limit, offset int) ([]ConnectionRecord, error) {
	rows, err := q.db.QueryContext(ctx, listConnectionHistory, instanceID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConnectionRecord
	for rows.Next() {
		var rec ConnectionRecord
		var since sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.InstanceID, &rec.ClientName,
			&rec.RealAddress, &rec.VirtualAddress, &rec.BytesReceived,
			&rec.BytesSent, &since, &rec.RecordedAt); err != nil {
			return nil, err
		}
		if since.Valid {
			rec.ConnectedSince = &since.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const countConnectionRecords = `
SELECT COUNT(*) FROM connection_records WHERE instance_id = ?
`

// CountConnectionRecords returns the total history row count.
func (q *Queries) CountConnectionRecords(ctx context.Context, instanceID string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countConnectionRecords, instanceID).Scan(&count)
	return count, err
}

const bandwidthStats = `
SELECT client_name,
	SUM(bytes_received) AS bytes_received,
	SUM(bytes_sent) AS bytes_sent,
	COUNT(*) AS connections,
	MAX(recorded_at) AS last_seen
FROM connection_records WHERE instance_id = ?
GROUP BY client_name
ORDER BY bytes_received DESC
`

// BandwidthStats aggregates per-client transfer totals, ordered by
// bytes received descending.
func (q *Queries) BandwidthStats(ctx context.Context, instanceID string) ([]BandwidthStat, error) {
	rows, err := q.db.QueryContext(ctx, bandwidthStats, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BandwidthStat
	for rows.Next() {
		var stat BandwidthStat
		var lastSeen sql.NullTime
		if err := rows.Scan(&stat.ClientName, &stat.BytesReceived,
			&stat.BytesSent, &stat.Connections, &lastSeen); err != nil {
			return nil, err
		}
		if lastSeen.Valid {
			stat.LastSeen = &lastSeen.Time
		}
		out = append(out, stat)
	}
	return out, rows.Err()
}
