package pki

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizaleow/ovpn-manager/internal/execx"
	apperrors "github.com/rizaleow/ovpn-manager/pkg/errors"
	"github.com/rizaleow/ovpn-manager/pkg/logger"
)

func newTestAuthority(t *testing.T) (*Authority, *execx.FakeRunner, string) {
	t.Helper()
	runner := execx.NewFakeRunner()
	dir := t.TempDir()
	auth := New(runner, Options{
		Instance:   "office",
		PKIDir:     dir,
		EasyRSABin: "easyrsa",
		OpenVPNBin: "openvpn",
	}, logger.NewDevelopment("test"))
	return auth, runner, dir
}

func TestPathsAreScopedToInstanceDir(t *testing.T) {
	auth, _, dir := newTestAuthority(t)
	paths := auth.Paths()

	assert.Equal(t, filepath.Join(dir, "pki", "ca.crt"), paths.CACert)
	assert.Equal(t, filepath.Join(dir, "pki", "issued", "server.crt"), paths.ServerCert)
	assert.Equal(t, filepath.Join(dir, "pki", "private", "server.key"), paths.ServerKey)
	assert.Equal(t, filepath.Join(dir, "pki", "dh.pem"), paths.DH)
	assert.Equal(t, filepath.Join(dir, "pki", "crl.pem"), paths.CRL)
	assert.Equal(t, filepath.Join(dir, "ta.key"), paths.TLSAuthKey)
	assert.Equal(t, filepath.Join(dir, "pki", "issued", "alice.crt"), paths.ClientCertPath("alice"))
	assert.Equal(t, filepath.Join(dir, "pki", "private", "alice.key"), paths.ClientKeyPath("alice"))
}

func TestBootstrapRunsFullSequence(t *testing.T) {
	auth, runner, _ := newTestAuthority(t)

	require.NoError(t, auth.Bootstrap(context.Background()))

	calls := runner.Calls()
	require.Len(t, calls, 6)

	wantSubcommands := []string{"init-pki", "build-ca", "build-server-full", "gen-dh", "--genkey", "gen-crl"}
	for i, want := range wantSubcommands {
		joined := strings.Join(calls[i], " ")
		assert.Contains(t, joined, want, "call %d", i)
	}

	// Every easyrsa call is pinned to the instance's private PKI dir.
	for _, call := range calls {
		if call[0] != "easyrsa" {
			continue
		}
		assert.Contains(t, strings.Join(call, " "), "--pki-dir=")
	}
}

func TestBootstrapStopsOnFirstFailure(t *testing.T) {
	auth, runner, _ := newTestAuthority(t)
	runner.Fail("easyrsa --batch", 1, "cannot init")

	err := auth.Bootstrap(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init-pki")
	assert.Len(t, runner.Calls(), 1)
}

func TestIssueClient(t *testing.T) {
	auth, runner, _ := newTestAuthority(t)

	require.NoError(t, auth.IssueClient(context.Background(), "alice"))
	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, strings.Join(calls[0], " "), "build-client-full alice nopass")
}

func TestRevokeRegeneratesCRL(t *testing.T) {
	auth, runner, _ := newTestAuthority(t)

	require.NoError(t, auth.Revoke(context.Background(), "alice"))
	require.Len(t, runner.Calls(), 2)
	assert.Contains(t, strings.Join(runner.Calls()[0], " "), "revoke alice")
	assert.Contains(t, strings.Join(runner.Calls()[1], " "), "gen-crl")
}

func TestRevokeFailureIsOrdinaryError(t *testing.T) {
	auth, runner, _ := newTestAuthority(t)
	runner.Fail("easyrsa --batch --pki-dir", 1, "unknown client")

	err := auth.Revoke(context.Background(), "ghost")
	require.Error(t, err)
	assert.False(t, apperrors.IsRevocationFence(err))
	assert.True(t, apperrors.IsCommand(err))
}

func TestCRLFailureAfterRevokeIsFenceError(t *testing.T) {
	auth, runner, _ := newTestAuthority(t)
	// Revoke succeeds, gen-crl fails.
	runner.Stub("easyrsa", execx.Result{}, nil)
	runner.Fail("easyrsa --batch --pki-dir="+filepath.Join(auth.Paths().Dir, "pki")+" gen-crl", 1, "index corrupted")

	err := auth.Revoke(context.Background(), "alice")
	require.Error(t, err)
	assert.True(t, apperrors.IsRevocationFence(err), "expected fence error, got %v", err)
}

func TestFileAccessors(t *testing.T) {
	auth, _, dir := newTestAuthority(t)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pki", "issued"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pki", "private"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pki", "ca.crt"), []byte("CA PEM"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pki", "issued", "alice.crt"), []byte("CERT PEM"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pki", "private", "alice.key"), []byte("KEY PEM"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ta.key"), []byte("TA KEY"), 0o600))

	ca, err := auth.CACertificate()
	require.NoError(t, err)
	assert.Equal(t, "CA PEM", ca)

	cert, err := auth.ClientCertificate("alice")
	require.NoError(t, err)
	assert.Equal(t, "CERT PEM", cert)

	key, err := auth.ClientKey("alice")
	require.NoError(t, err)
	assert.Equal(t, "KEY PEM", key)

	ta, err := auth.TLSAuthKey()
	require.NoError(t, err)
	assert.Equal(t, "TA KEY", ta)

	_, err = auth.ClientCertificate("ghost")
	assert.Error(t, err)
}

func TestClientOverrideWriteAndRemove(t *testing.T) {
	auth, _, _ := newTestAuthority(t)
	ccd := t.TempDir()

	require.NoError(t, auth.WriteClientOverride(ccd, "alice", "10.8.0.5", "255.255.255.0"))
	data, err := os.ReadFile(filepath.Join(ccd, "alice"))
	require.NoError(t, err)
	assert.Equal(t, "ifconfig-push 10.8.0.5 255.255.255.0\n", string(data))

	require.NoError(t, auth.RemoveClientOverride(ccd, "alice"))
	_, err = os.Stat(filepath.Join(ccd, "alice"))
	assert.True(t, os.IsNotExist(err))

	// Removing a missing override is a no-op.
	assert.NoError(t, auth.RemoveClientOverride(ccd, "alice"))
}
