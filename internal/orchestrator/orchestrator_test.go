package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizaleow/ovpn-manager/internal/config"
	"github.com/rizaleow/ovpn-manager/internal/db"
	"github.com/rizaleow/ovpn-manager/internal/events"
	"github.com/rizaleow/ovpn-manager/internal/execx"
	"github.com/rizaleow/ovpn-manager/internal/network"
	"github.com/rizaleow/ovpn-manager/internal/registry"
	"github.com/rizaleow/ovpn-manager/internal/service"
	apperrors "github.com/rizaleow/ovpn-manager/pkg/errors"
	"github.com/rizaleow/ovpn-manager/pkg/logger"
)

type testHarness struct {
	orch    *Orchestrator
	runner  *execx.FakeRunner
	store   db.Store
	reg     *registry.Registry
	baseDir string
}

func newTestHarness(t *testing.T) *testHarness {
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

	ovpn := config.OpenVPNConfig{
		BaseDir:         baseDir,
		EasyRSABin:      "easyrsa",
		OpenVPNBin:      "openvpn",
		ServiceTemplate: "openvpn-server@%s",
		Packages:        []string{"openvpn", "easy-rsa", "iptables-persistent"},
	}

	// Routing and firewall checks behave like a fresh host.
	runner.Stub("ip route show default",
		execx.Result{Stdout: "default via 192.0.2.1 dev eth0\n"}, nil)
	runner.Fail("iptables -t nat -C", 1, "")
	runner.Fail("iptables -C", 1, "")

	return &testHarness{
		orch:    New(store, reg, runner, svc, net, bus, ovpn, log),
		runner:  runner,
		store:   store,
		reg:     reg,
		baseDir: baseDir,
	}
}

func (h *testHarness) createInstance(t *testing.T, name string) *db.Instance {
	t.Helper()
	inst, err := h.reg.Create(context.Background(), name, "")
	require.NoError(t, err)
	return inst
}

func defaultSetupParams() SetupParams {
	return SetupParams{
		Hostname: "vpn.example.com",
		Protocol: "udp",
		Port:     1194,
		Subnet:   "10.8.0.0",
		Mask:     "255.255.255.0",
	}
}

func TestSetupRunsAllSteps(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	inst := h.createInstance(t, "office")

	err := h.orch.Setup(ctx, "office", defaultSetupParams())
	require.NoError(t, err)

	state, err := h.store.GetProvisioningState(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StepRunning, state.Step)
	assert.True(t, state.Completed)
	assert.NotNil(t, state.CompletedAt)
	assert.Empty(t, state.LastError)

	got, err := h.reg.Get(ctx, "office")
	require.NoError(t, err)
	assert.Equal(t, db.InstanceActive, got.Status)

	cfg, err := h.store.GetServerConfig(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "vpn.example.com", cfg.Hostname)
	assert.True(t, cfg.PKIInitialized)

	data, err := os.ReadFile(filepath.Join(h.baseDir, "office", "server.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "server 10.8.0.0 255.255.255.0\n")
	assert.Contains(t, string(data), "port 1194\n")

	// Side effects in order: packages, authority bootstrap, firewall,
	// service enable and start.
	assert.Equal(t, 1, h.runner.CallCount("apt-get install -y openvpn easy-rsa"))
	assert.Equal(t, 1, h.runner.CallCount("easyrsa --batch --pki-dir="+filepath.Join(h.baseDir, "office", "easy-rsa", "pki")+" init-pki"))
	assert.Equal(t, 1, h.runner.CallCount("systemctl enable openvpn-server@office"))
	assert.Equal(t, 1, h.runner.CallCount("systemctl start openvpn-server@office"))
}

func TestSetupCompletedConflictHasNoSideEffects(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.createInstance(t, "office")

	require.NoError(t, h.orch.Setup(ctx, "office", defaultSetupParams()))

	h.runner.Reset()
	err := h.orch.Setup(ctx, "office", defaultSetupParams())
	assert.True(t, apperrors.IsConflict(err))
	assert.Empty(t, h.runner.Calls())
}

func TestSetupUnknownInstance(t *testing.T) {
	h := newTestHarness(t)

	err := h.orch.Setup(context.Background(), "ghost", defaultSetupParams())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSetupValidatesParams(t *testing.T) {
	h := newTestHarness(t)
	h.createInstance(t, "office")

	params := defaultSetupParams()
	params.Hostname = ""
	err := h.orch.Setup(context.Background(), "office", params)
	assert.True(t, apperrors.IsValidation(err))

	params = defaultSetupParams()
	params.Mask = "255.0.255.0"
	err = h.orch.Setup(context.Background(), "office", params)
	assert.True(t, apperrors.IsValidation(err))
}

func TestSetupFailurePersistsStepAndError(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	inst := h.createInstance(t, "office")

	// Authority bootstrap fails at its first command.
	h.runner.Fail("easyrsa", 1, "init-pki blew up")

	err := h.orch.Setup(ctx, "office", defaultSetupParams())
	require.Error(t, err)

	var svcErr *apperrors.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, string(db.StepPKIInitialized), svcErr.Step)
	assert.True(t, apperrors.IsCommand(err))

	state, err := h.store.GetProvisioningState(ctx, inst.ID)
	require.NoError(t, err)
	// Packages step finished and stayed recorded; nothing rolled back.
	assert.Equal(t, db.StepPackagesInstalled, state.Step)
	assert.False(t, state.Completed)
	assert.Contains(t, state.LastError, "init-pki blew up")

	got, err := h.reg.Get(ctx, "office")
	require.NoError(t, err)
	assert.Equal(t, db.InstanceError, got.Status)

	// A fresh invocation retries from the top.
	h.runner.Stub("easyrsa", execx.Result{}, nil)
	require.NoError(t, h.orch.Setup(ctx, "office", defaultSetupParams()))

	state, err = h.store.GetProvisioningState(ctx, inst.ID)
	require.NoError(t, err)
	assert.True(t, state.Completed)
	assert.Empty(t, state.LastError)
}

func TestIssueClientWithStaticAddress(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.createInstance(t, "office")

	cred, err := h.orch.IssueClient(ctx, "office", IssueClientParams{
		Name:          "alice",
		StaticAddress: "10.8.0.5",
	})
	require.NoError(t, err)
	assert.Equal(t, db.ClientActive, cred.Status)
	assert.Equal(t, "10.8.0.5", cred.StaticAddress)

	assert.Equal(t, 1, h.runner.CallCount("easyrsa --batch --pki-dir="+filepath.Join(h.baseDir, "office", "easy-rsa", "pki")+" build-client-full alice nopass"))

	data, err := os.ReadFile(filepath.Join(h.baseDir, "office", "ccd", "alice"))
	require.NoError(t, err)
	assert.Equal(t, "ifconfig-push 10.8.0.5 255.255.255.0\n", string(data))
}

func TestIssueClientDuplicate(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.createInstance(t, "office")

	_, err := h.orch.IssueClient(ctx, "office", IssueClientParams{Name: "alice"})
	require.NoError(t, err)

	_, err = h.orch.IssueClient(ctx, "office", IssueClientParams{Name: "alice"})
	assert.True(t, apperrors.IsConflict(err))
}

func TestRevokeClientIsTerminalAndIdempotent(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	inst := h.createInstance(t, "office")

	_, err := h.orch.IssueClient(ctx, "office", IssueClientParams{
		Name: "alice", StaticAddress: "10.8.0.5",
	})
	require.NoError(t, err)

	res, err := h.orch.RevokeClient(ctx, "office", "alice")
	require.NoError(t, err)
	assert.False(t, res.AlreadyRevoked)

	cred, err := h.store.GetClientCredential(ctx, inst.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, db.ClientRevoked, cred.Status)
	assert.NotNil(t, cred.RevokedAt)

	_, statErr := os.Stat(filepath.Join(h.baseDir, "office", "ccd", "alice"))
	assert.True(t, os.IsNotExist(statErr))

	// Second revocation is informational, no further state change.
	res, err = h.orch.RevokeClient(ctx, "office", "alice")
	require.NoError(t, err)
	assert.True(t, res.AlreadyRevoked)
	assert.Contains(t, res.Message, "already revoked")
}

func TestRevokeClientFenceFailure(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	inst := h.createInstance(t, "office")

	_, err := h.orch.IssueClient(ctx, "office", IssueClientParams{Name: "alice"})
	require.NoError(t, err)

	pkiDir := filepath.Join(h.baseDir, "office", "easy-rsa", "pki")
	h.runner.Fail("easyrsa --batch --pki-dir="+pkiDir+" gen-crl", 1, "crl broken")

	_, err = h.orch.RevokeClient(ctx, "office", "alice")
	require.Error(t, err)
	assert.True(t, apperrors.IsRevocationFence(err))

	// The client stays revoked so the retry path only regenerates the
	// revocation list.
	cred, err := h.store.GetClientCredential(ctx, inst.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, db.ClientRevoked, cred.Status)

	h.runner.Stub("easyrsa --batch --pki-dir="+pkiDir+" gen-crl", execx.Result{}, nil)
	require.NoError(t, h.orch.RegenerateCRL(ctx, "office"))
}

func TestRenewClientResetsCredential(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.createInstance(t, "office")

	_, err := h.orch.IssueClient(ctx, "office", IssueClientParams{Name: "alice"})
	require.NoError(t, err)
	_, err = h.orch.RevokeClient(ctx, "office", "alice")
	require.NoError(t, err)

	cred, err := h.orch.RenewClient(ctx, "office", "alice")
	require.NoError(t, err)
	assert.Equal(t, db.ClientActive, cred.Status)
	assert.Nil(t, cred.RevokedAt)
}

func TestClientProfileInlinesMaterial(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	inst := h.createInstance(t, "office")

	cfg, err := h.store.GetServerConfig(ctx, inst.ID)
	require.NoError(t, err)
	cfg.Hostname = "vpn.example.com"
	require.NoError(t, h.store.UpdateServerConfig(ctx, cfg))

	_, err = h.orch.IssueClient(ctx, "office", IssueClientParams{Name: "alice"})
	require.NoError(t, err)

	// The fake runner writes nothing, so place the material directly.
	pkiRoot := filepath.Join(h.baseDir, "office", "easy-rsa", "pki")
	require.NoError(t, os.MkdirAll(filepath.Join(pkiRoot, "issued"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(pkiRoot, "private"), 0o750))
	writeFile(t, filepath.Join(pkiRoot, "ca.crt"), "CA CERT")
	writeFile(t, filepath.Join(pkiRoot, "issued", "alice.crt"), "ALICE CERT")
	writeFile(t, filepath.Join(pkiRoot, "private", "alice.key"), "ALICE KEY")
	writeFile(t, filepath.Join(h.baseDir, "office", "easy-rsa", "ta.key"), "TA KEY")

	profile, err := h.orch.ClientProfile(ctx, "office", "alice")
	require.NoError(t, err)
	assert.Contains(t, profile, "remote vpn.example.com 1194")
	assert.Contains(t, profile, "<ca>\nCA CERT\n</ca>")
	assert.Contains(t, profile, "ALICE KEY")
	assert.Contains(t, profile, "<tls-auth>")
}

func TestClientProfileRevokedClient(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.createInstance(t, "office")

	_, err := h.orch.IssueClient(ctx, "office", IssueClientParams{Name: "alice"})
	require.NoError(t, err)
	_, err = h.orch.RevokeClient(ctx, "office", "alice")
	require.NoError(t, err)

	_, err = h.orch.ClientProfile(ctx, "office", "alice")
	assert.True(t, apperrors.IsConflict(err))
}

func TestServiceControlUpdatesStatus(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.createInstance(t, "office")

	require.NoError(t, h.orch.Stop(ctx, "office"))
	got, err := h.reg.Get(ctx, "office")
	require.NoError(t, err)
	assert.Equal(t, db.InstanceInactive, got.Status)

	require.NoError(t, h.orch.Start(ctx, "office"))
	got, err = h.reg.Get(ctx, "office")
	require.NoError(t, err)
	assert.Equal(t, db.InstanceActive, got.Status)

	assert.True(t, apperrors.IsNotFound(h.orch.Restart(ctx, "ghost")))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
}
