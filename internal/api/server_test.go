package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizaleow/ovpn-manager/internal/config"
	"github.com/rizaleow/ovpn-manager/internal/db"
	"github.com/rizaleow/ovpn-manager/internal/events"
	"github.com/rizaleow/ovpn-manager/internal/execx"
	"github.com/rizaleow/ovpn-manager/internal/monitor"
	"github.com/rizaleow/ovpn-manager/internal/network"
	"github.com/rizaleow/ovpn-manager/internal/orchestrator"
	"github.com/rizaleow/ovpn-manager/internal/registry"
	"github.com/rizaleow/ovpn-manager/internal/service"
	"github.com/rizaleow/ovpn-manager/pkg/api"
	"github.com/rizaleow/ovpn-manager/pkg/logger"
)

func newTestServer(t *testing.T) (http.Handler, *execx.FakeRunner) {
	t.Helper()

	_, store := db.NewTestDB(t)
	runner := execx.NewFakeRunner()
	log := logger.NewDevelopment("test")
	tmp := t.TempDir()
	baseDir := filepath.Join(tmp, "instances")

	svc := service.NewController(runner, "openvpn-server@%s")
	reg := registry.New(store, baseDir, svc, log)
	net := network.New(runner,
		filepath.Join(tmp, "rules.v4"),
		filepath.Join(tmp, "99-forwarding.conf"), log)
	bus := events.NewBus(log)
	t.Cleanup(func() { bus.Close() })

	orch := orchestrator.New(store, reg, runner, svc, net, bus, config.OpenVPNConfig{
		BaseDir:         baseDir,
		EasyRSABin:      "easyrsa",
		OpenVPNBin:      "openvpn",
		ServiceTemplate: "openvpn-server@%s",
		Packages:        []string{"openvpn", "easy-rsa"},
	}, log)

	promReg := prometheus.NewRegistry()
	mon := monitor.New(store, reg, monitor.NewMetrics(promReg), time.Second, log)

	runner.Stub("ip route show default",
		execx.Result{Stdout: "default via 192.0.2.1 dev eth0\n"}, nil)
	runner.Fail("iptables -t nat -C", 1, "")
	runner.Fail("iptables -C", 1, "")

	srv := NewServer(ServerConfig{Address: ":0", Version: "test"},
		reg, orch, mon, promReg, log)
	return srv.Handler(), runner
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp api.Response[T]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.True(t, resp.Success, "expected success envelope, got %v", resp.Error)
	return resp.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *api.ErrorInfo {
	t.Helper()
	var resp api.Response[any]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestHealthEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := doJSON(t, handler, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeData[api.HealthResponse](t, rec)
	assert.Equal(t, "healthy", data.Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestInstanceLifecycle(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/instances",
		api.CreateInstanceRequest{Name: "office", DisplayName: "Office VPN"})
	require.Equal(t, http.StatusCreated, rec.Code)
	inst := decodeData[api.InstanceInfo](t, rec)
	assert.Equal(t, "office", inst.Name)
	assert.Equal(t, "provisioning", inst.Status)

	// Duplicate name conflicts.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/instances",
		api.CreateInstanceRequest{Name: "office"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeError(t, rec).Code)

	// Invalid name is rejected.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/instances",
		api.CreateInstanceRequest{Name: "Not A Slug"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/instances", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeData[api.InstanceListResponse](t, rec)
	assert.Equal(t, 1, list.Total)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/instances/office", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decodeData[api.InstanceStateResponse](t, rec)
	assert.Equal(t, "none", state.Provisioning.Step)
	assert.Equal(t, 1194, state.Config.Port)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/instances/ghost", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/instances/office", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	del := decodeData[api.DeleteInstanceResponse](t, rec)
	assert.Equal(t, "office", del.Name)

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/instances/office", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetupEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/instances",
		api.CreateInstanceRequest{Name: "office"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/instances/office/setup",
		api.SetupRequest{
			Hostname: "vpn.example.com",
			Protocol: "udp",
			Port:     1194,
			Subnet:   "10.8.0.0",
			Mask:     "255.255.255.0",
		})
	require.Equal(t, http.StatusOK, rec.Code)
	state := decodeData[api.InstanceStateResponse](t, rec)
	assert.Equal(t, "running", state.Provisioning.Step)
	assert.True(t, state.Provisioning.Completed)
	assert.Equal(t, "active", state.Instance.Status)

	// A second setup conflicts with the completed run.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/instances/office/setup",
		api.SetupRequest{Hostname: "vpn.example.com"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSetupFailureReturns500(t *testing.T) {
	handler, runner := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/instances",
		api.CreateInstanceRequest{Name: "office"})
	require.Equal(t, http.StatusCreated, rec.Code)

	runner.Fail("easyrsa", 1, "pki exploded")

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/instances/office/setup",
		api.SetupRequest{Hostname: "vpn.example.com"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	errInfo := decodeError(t, rec)
	assert.Equal(t, "service_error", errInfo.Code)
	assert.Contains(t, errInfo.Message, "pki_initialized")
}

func TestClientEndpoints(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/instances",
		api.CreateInstanceRequest{Name: "office"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/instances/office/clients",
		api.IssueClientRequest{Name: "alice", StaticAddress: "10.8.0.5"})
	require.Equal(t, http.StatusCreated, rec.Code)
	client := decodeData[api.ClientInfo](t, rec)
	assert.Equal(t, "alice", client.Name)
	assert.Equal(t, "active", client.Status)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/instances/office/clients", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeData[api.ClientListResponse](t, rec)
	assert.Equal(t, 1, list.Total)

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/instances/office/clients/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	revoke := decodeData[api.RevokeResponse](t, rec)
	assert.False(t, revoke.AlreadyRevoked)

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/instances/office/clients/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	revoke = decodeData[api.RevokeResponse](t, rec)
	assert.True(t, revoke.AlreadyRevoked)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/instances/office/clients/alice/renew", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	client = decodeData[api.ClientInfo](t, rec)
	assert.Equal(t, "active", client.Status)

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/instances/office/clients/ghost", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConnectionsEndpointsEmpty(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/instances",
		api.CreateInstanceRequest{Name: "office"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/instances/office/connections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	conns := decodeData[api.ConnectionListResponse](t, rec)
	assert.Equal(t, 0, conns.Total)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/instances/office/connections/history?page=1&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeData[api.HistoryResponse](t, rec)
	assert.Equal(t, int64(0), history.Total)
	assert.Equal(t, 10, history.Limit)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/instances/office/bandwidth", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/instances/ghost/connections", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMalformedJSONRejected(t *testing.T) {
	handler, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/instances",
		bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Code)
}
