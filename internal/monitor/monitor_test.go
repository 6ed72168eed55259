package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizaleow/ovpn-manager/internal/db"
	"github.com/rizaleow/ovpn-manager/internal/registry"
	apperrors "github.com/rizaleow/ovpn-manager/pkg/errors"
	"github.com/rizaleow/ovpn-manager/pkg/logger"
)

const markedFeed = `OpenVPN CLIENT LIST
Updated,Thu Jun 18 04:23:14 2015
Common Name,Real Address,Bytes Received,Bytes Sent,Connected Since
alice,198.51.100.10:52301,1500,2500,Thu Jun 18 04:20:00 2015
bob,203.0.113.7:41194,9000,12000,Thu Jun 18 03:58:31 2015
ROUTING TABLE
Virtual Address,Common Name,Real Address,Last Ref
10.8.0.5,alice,198.51.100.10:52301,Thu Jun 18 04:23:10 2015
10.8.0.6,bob,203.0.113.7:41194,Thu Jun 18 04:23:12 2015
GLOBAL STATS
Max bcast/mcast queue length,0
END
`

func newTestMonitor(t *testing.T) (*Monitor, *registry.Registry, db.Store, string) {
	t.Helper()
	_, store := db.NewTestDB(t)
	log := logger.NewDevelopment("test")
	baseDir := filepath.Join(t.TempDir(), "instances")
	reg := registry.New(store, baseDir, nil, log)
	metrics := NewMetrics(prometheus.NewRegistry())
	mon := New(store, reg, metrics, time.Second, log)
	return mon, reg, store, baseDir
}

func writeFeed(t *testing.T, baseDir, instance, content string) {
	t.Helper()
	path := filepath.Join(baseDir, instance, "openvpn-status.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
}

func TestParseStatusMarkedFormat(t *testing.T) {
	conns := ParseStatus(markedFeed)
	require.Len(t, conns, 2)

	assert.Equal(t, "alice", conns[0].ClientName)
	assert.Equal(t, "198.51.100.10:52301", conns[0].RealAddress)
	assert.Equal(t, "10.8.0.5", conns[0].VirtualAddress)
	assert.Equal(t, int64(1500), conns[0].BytesReceived)
	assert.Equal(t, int64(2500), conns[0].BytesSent)
	require.NotNil(t, conns[0].ConnectedSince)
	assert.Equal(t, 2015, conns[0].ConnectedSince.Year())

	assert.Equal(t, "bob", conns[1].ClientName)
	assert.Equal(t, "10.8.0.6", conns[1].VirtualAddress)
}

func TestParseStatusUnmarkedFormat(t *testing.T) {
	feed := "alice,198.51.100.10:52301,1500,2500,Thu Jun 18 04:20:00 2015\n" +
		"bob,203.0.113.7:41194,9000,12000,Thu Jun 18 03:58:31 2015\n"

	conns := ParseStatus(feed)
	require.Len(t, conns, 2)
	assert.Equal(t, "alice", conns[0].ClientName)
	assert.Equal(t, int64(9000), conns[1].BytesReceived)
	assert.Empty(t, conns[0].VirtualAddress)
}

func TestParseStatusSkipsTruncatedRecords(t *testing.T) {
	feed := `OpenVPN CLIENT LIST
Updated,Thu Jun 18 04:23:14 2015
Common Name,Real Address,Bytes Received,Bytes Sent,Connected Since
alice,198.51.100.10:52301,1500,2500,Thu Jun 18 04:20:00 2015
bob,203.0.113.7
ROUTING TABLE
END
`
	conns := ParseStatus(feed)
	require.Len(t, conns, 1)
	assert.Equal(t, "alice", conns[0].ClientName)
}

func TestParseStatusSkipsNonNumericCounters(t *testing.T) {
	feed := "alice,198.51.100.10:52301,notanumber,2500,Thu Jun 18 04:20:00 2015\n" +
		"bob,203.0.113.7:41194,9000,12000,Thu Jun 18 03:58:31 2015\n"

	conns := ParseStatus(feed)
	require.Len(t, conns, 1)
	assert.Equal(t, "bob", conns[0].ClientName)
}

func TestParseStatusEmpty(t *testing.T) {
	assert.Empty(t, ParseStatus(""))
	assert.Empty(t, ParseStatus("OpenVPN CLIENT LIST\nEND\n"))
}

func TestActiveConnectionsMissingFeed(t *testing.T) {
	mon, reg, _, _ := newTestMonitor(t)
	ctx := context.Background()
	_, err := reg.Create(ctx, "office", "")
	require.NoError(t, err)

	conns, err := mon.ActiveConnections(ctx, "office")
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestActiveConnectionsUnknownInstance(t *testing.T) {
	mon, _, _, _ := newTestMonitor(t)

	_, err := mon.ActiveConnections(context.Background(), "ghost")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRecordSnapshotPersistsRows(t *testing.T) {
	mon, reg, store, baseDir := newTestMonitor(t)
	ctx := context.Background()
	inst, err := reg.Create(ctx, "office", "")
	require.NoError(t, err)
	writeFeed(t, baseDir, "office", markedFeed)

	count, err := mon.RecordSnapshot(ctx, "office")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	total, err := store.CountConnectionRecords(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestRecordSnapshotDedupesByClientName(t *testing.T) {
	mon, reg, store, baseDir := newTestMonitor(t)
	ctx := context.Background()
	inst, err := reg.Create(ctx, "office", "")
	require.NoError(t, err)

	// The same client appears twice; the later record wins.
	feed := "alice,198.51.100.10:52301,100,200,Thu Jun 18 04:20:00 2015\n" +
		"alice,198.51.100.10:52301,1100,2200,Thu Jun 18 04:20:00 2015\n"
	writeFeed(t, baseDir, "office", feed)

	count, err := mon.RecordSnapshot(ctx, "office")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	records, err := store.ListConnectionHistory(ctx, inst.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1100), records[0].BytesReceived)
}

func TestHistoryPagination(t *testing.T) {
	mon, reg, store, _ := newTestMonitor(t)
	ctx := context.Background()
	inst, err := reg.Create(ctx, "office", "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.InsertConnectionRecord(ctx, db.ConnectionRecord{
			InstanceID:    inst.ID,
			ClientName:    "alice",
			RealAddress:   "198.51.100.10:52301",
			BytesReceived: int64(i),
		}))
	}

	page, err := mon.History(ctx, "office", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Len(t, page.Records, 2)

	page, err = mon.History(ctx, "office", 3, 2)
	require.NoError(t, err)
	assert.Len(t, page.Records, 1)

	// Out-of-range defaults are normalized.
	page, err = mon.History(ctx, "office", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Limit)
}

func TestBandwidthAggregation(t *testing.T) {
	mon, reg, _, baseDir := newTestMonitor(t)
	ctx := context.Background()
	_, err := reg.Create(ctx, "office", "")
	require.NoError(t, err)

	writeFeed(t, baseDir, "office", markedFeed)
	_, err = mon.RecordSnapshot(ctx, "office")
	require.NoError(t, err)

	stats, err := mon.Bandwidth(ctx, "office")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	// Ordered by bytes received descending.
	assert.Equal(t, "bob", stats[0].ClientName)
	assert.Equal(t, int64(9000), stats[0].BytesReceived)
	assert.Equal(t, "alice", stats[1].ClientName)
}
