package network

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizaleow/ovpn-manager/internal/execx"
	apperrors "github.com/rizaleow/ovpn-manager/pkg/errors"
	"github.com/rizaleow/ovpn-manager/pkg/logger"
)

func newTestConfigurator(t *testing.T) (*Configurator, *execx.FakeRunner) {
	t.Helper()
	runner := execx.NewFakeRunner()
	dir := t.TempDir()
	cfg := New(runner,
		filepath.Join(dir, "rules.v4"),
		filepath.Join(dir, "99-forwarding.conf"),
		logger.NewDevelopment("test"))
	return cfg, runner
}

func stubDefaultRoute(runner *execx.FakeRunner) {
	runner.Stub("ip route show default",
		execx.Result{Stdout: "default via 192.0.2.1 dev eth0 proto dhcp metric 100\n"}, nil)
}

func TestPrefixLength(t *testing.T) {
	tests := []struct {
		mask   string
		prefix int
		ok     bool
	}{
		{"255.255.255.0", 24, true},
		{"255.255.0.0", 16, true},
		{"255.255.255.255", 32, true},
		{"0.0.0.0", 0, true},
		{"255.255.254.0", 23, true},
		{"255.0.255.0", 0, false},
		{"255.255.255", 0, false},
		{"255.255.256.0", 0, false},
		{"garbage", 0, false},
	}
	for _, tc := range tests {
		prefix, err := PrefixLength(tc.mask)
		if tc.ok {
			require.NoError(t, err, tc.mask)
			assert.Equal(t, tc.prefix, prefix, tc.mask)
		} else {
			assert.True(t, apperrors.IsValidation(err), tc.mask)
		}
	}
}

func TestParseDefaultRoute(t *testing.T) {
	assert.Equal(t, "eth0", parseDefaultRoute("default via 192.0.2.1 dev eth0 proto dhcp\n"))
	assert.Equal(t, "ens3", parseDefaultRoute("default dev ens3 scope link\n"))
	assert.Equal(t, "", parseDefaultRoute("192.0.2.0/24 via 192.0.2.1\n"))
	assert.Equal(t, "", parseDefaultRoute(""))
}

func TestSetupNATAppendsMissingRules(t *testing.T) {
	cfg, runner := newTestConfigurator(t)
	stubDefaultRoute(runner)
	runner.Fail("iptables -t nat -C", 1, "")
	runner.Fail("iptables -C", 1, "")

	err := cfg.SetupNAT(context.Background(), "10.8.0.0", "255.255.255.0", "tun-office")
	require.NoError(t, err)

	assert.Equal(t, 1, runner.CallCount("iptables -t nat -A POSTROUTING -s 10.8.0.0/24 -o eth0 -j MASQUERADE"))
	assert.Equal(t, 1, runner.CallCount("iptables -A FORWARD -i tun-office -o eth0 -j ACCEPT"))
	assert.Equal(t, 1, runner.CallCount("iptables -A FORWARD -i eth0 -o tun-office"))
}

func TestSetupNATIsIdempotent(t *testing.T) {
	cfg, runner := newTestConfigurator(t)
	stubDefaultRoute(runner)
	runner.Fail("iptables -t nat -C", 1, "")
	runner.Fail("iptables -C", 1, "")

	require.NoError(t, cfg.SetupNAT(context.Background(), "10.8.0.0", "255.255.255.0", "tun-office"))
	assert.Equal(t, 3, runner.CallCount("iptables -t nat -A")+runner.CallCount("iptables -A"))

	// Checks now report the rules as present.
	runner.Stub("iptables -t nat -C", execx.Result{}, nil)
	runner.Stub("iptables -C", execx.Result{}, nil)
	runner.Reset()

	require.NoError(t, cfg.SetupNAT(context.Background(), "10.8.0.0", "255.255.255.0", "tun-office"))
	assert.Equal(t, 0, runner.CallCount("iptables -t nat -A"))
	assert.Equal(t, 0, runner.CallCount("iptables -A"))
}

func TestSetupNATRejectsBadMask(t *testing.T) {
	cfg, runner := newTestConfigurator(t)

	err := cfg.SetupNAT(context.Background(), "10.8.0.0", "255.0.255.0", "tun-office")
	assert.True(t, apperrors.IsValidation(err))
	assert.Empty(t, runner.Calls())
}

func TestSetupNATNoDefaultRoute(t *testing.T) {
	cfg, runner := newTestConfigurator(t)
	runner.Stub("ip route show default", execx.Result{Stdout: ""}, nil)

	err := cfg.SetupNAT(context.Background(), "10.8.0.0", "255.255.255.0", "tun-office")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no default route")
}

func TestTeardownNATToleratesMissingRules(t *testing.T) {
	cfg, runner := newTestConfigurator(t)
	stubDefaultRoute(runner)
	runner.Fail("iptables -t nat -D", 1, "Bad rule")
	runner.Fail("iptables -D", 1, "Bad rule")

	err := cfg.TeardownNAT(context.Background(), "10.8.0.0", "255.255.255.0", "tun-office")
	assert.NoError(t, err)
}

func TestEnableForwardingPersistsFlag(t *testing.T) {
	cfg, runner := newTestConfigurator(t)

	require.NoError(t, cfg.EnableForwarding(context.Background()))
	assert.Equal(t, 1, runner.CallCount("sysctl -w net.ipv4.ip_forward=1"))

	data, err := os.ReadFile(cfg.sysctlFile)
	require.NoError(t, err)
	assert.Equal(t, "net.ipv4.ip_forward = 1\n", string(data))

	require.NoError(t, cfg.DisableForwarding(context.Background()))
	data, err = os.ReadFile(cfg.sysctlFile)
	require.NoError(t, err)
	assert.Equal(t, "net.ipv4.ip_forward = 0\n", string(data))
}

func TestListRulesSkipsHeaders(t *testing.T) {
	cfg, runner := newTestConfigurator(t)
	runner.Stub("iptables -L FORWARD", execx.Result{Stdout: `Chain FORWARD (policy DROP 0 packets, 0 bytes)
num   pkts bytes target     prot opt in     out     source               destination
1        0     0 ACCEPT     all  --  tun-office eth0    0.0.0.0/0            0.0.0.0/0
2        0     0 ACCEPT     all  --  eth0   tun-office  0.0.0.0/0            0.0.0.0/0
`}, nil)

	rules, err := cfg.ListRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Contains(t, rules[0], "tun-office")
}

func TestDeleteRule(t *testing.T) {
	cfg, runner := newTestConfigurator(t)

	require.NoError(t, cfg.DeleteRule(context.Background(), 2))
	assert.Equal(t, 1, runner.CallCount("iptables -D FORWARD 2"))

	err := cfg.DeleteRule(context.Background(), 0)
	assert.True(t, apperrors.IsValidation(err))

	runner.Fail("iptables -D FORWARD 99", 1, "index of deletion too big")
	err = cfg.DeleteRule(context.Background(), 99)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestPersistWritesRuleset(t *testing.T) {
	cfg, runner := newTestConfigurator(t)
	runner.Stub("iptables-save", execx.Result{Stdout: "*filter\n:FORWARD DROP [0:0]\nCOMMIT\n"}, nil)

	require.NoError(t, cfg.Persist(context.Background()))

	data, err := os.ReadFile(cfg.rulesFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "*filter")
}
