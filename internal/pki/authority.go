// Package pki wraps the external easy-rsa capability as a per-instance
// credential authority. Each instance owns an isolated PKI root; no
// material is shared across instances.
package pki

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rizaleow/ovpn-manager/internal/execx"
	apperrors "github.com/rizaleow/ovpn-manager/pkg/errors"
	"github.com/rizaleow/ovpn-manager/pkg/logger"
)

// Paths are the canonical authority artifact locations consumed by the
// config renderer and profile exporter.
type Paths struct {
	Dir        string // easy-rsa working directory
	CACert     string
	ServerCert string
	ServerKey  string
	DH         string
	CRL        string
	TLSAuthKey string
}

// ClientCertPath returns the issued certificate path for a client name.
func (p Paths) ClientCertPath(name string) string {
	return filepath.Join(p.Dir, "pki", "issued", name+".crt")
}

// ClientKeyPath returns the private key path for a client name.
func (p Paths) ClientKeyPath(name string) string {
	return filepath.Join(p.Dir, "pki", "private", name+".key")
}

// Authority is the credential authority scoped to one instance.
type Authority struct {
	instance   string
	runner     execx.Runner
	easyrsaBin string
	openvpnBin string
	paths      Paths
	logger     *logger.Logger
}

// Options configure a new Authority.
type Options struct {
	Instance   string
	PKIDir     string // per-instance easy-rsa directory
	EasyRSABin string
	OpenVPNBin string
}

// New creates an Authority for one instance.
func New(runner execx.Runner, opts Options, log *logger.Logger) *Authority {
	pkiRoot := filepath.Join(opts.PKIDir, "pki")
	return &Authority{
		instance:   opts.Instance,
		runner:     runner,
		easyrsaBin: opts.EasyRSABin,
		openvpnBin: opts.OpenVPNBin,
		paths: Paths{
			Dir:        opts.PKIDir,
			CACert:     filepath.Join(pkiRoot, "ca.crt"),
			ServerCert: filepath.Join(pkiRoot, "issued", "server.crt"),
			ServerKey:  filepath.Join(pkiRoot, "private", "server.key"),
			DH:         filepath.Join(pkiRoot, "dh.pem"),
			CRL:        filepath.Join(pkiRoot, "crl.pem"),
			TLSAuthKey: filepath.Join(opts.PKIDir, "ta.key"),
		},
		logger: log.WithComponent("pki").With("instance", opts.Instance),
	}
}

// Paths exposes the canonical artifact locations.
func (a *Authority) Paths() Paths {
	return a.paths
}

func (a *Authority) easyrsa(ctx context.Context, args ...string) error {
	full := append([]string{"--batch", "--pki-dir=" + filepath.Join(a.paths.Dir, "pki")}, args...)
	_, err := a.runner.Run(ctx, a.easyrsaBin, full...)
	return err
}

// Init creates the private PKI root for the instance.
func (a *Authority) Init(ctx context.Context) error {
	return a.easyrsa(ctx, "init-pki")
}

// BuildCA creates the self-signed certificate authority.
func (a *Authority) BuildCA(ctx context.Context) error {
	return a.easyrsa(ctx, "--req-cn="+a.instance+"-ca", "build-ca", "nopass")
}

// IssueServer produces the server key and certificate pair.
func (a *Authority) IssueServer(ctx context.Context) error {
	return a.easyrsa(ctx, "build-server-full", "server", "nopass")
}

// IssueClient produces a key and certificate pair for a client name.
func (a *Authority) IssueClient(ctx context.Context, name string) error {
	return a.easyrsa(ctx, "build-client-full", name, "nopass")
}

// GenDH generates the Diffie-Hellman parameters.
func (a *Authority) GenDH(ctx context.Context) error {
	return a.easyrsa(ctx, "gen-dh")
}

// GenCRL regenerates the certificate revocation list.
func (a *Authority) GenCRL(ctx context.Context) error {
	return a.easyrsa(ctx, "gen-crl")
}

// GenTLSAuthKey generates the shared-secret material used by the
// tls-auth directive.
func (a *Authority) GenTLSAuthKey(ctx context.Context) error {
	_, err := a.runner.Run(ctx, a.openvpnBin, "--genkey", "secret", a.paths.TLSAuthKey)
	return err
}

// Bootstrap runs the full authority bootstrap sequence: root, CA,
// server pair, DH parameters, shared secret, empty revocation list.
func (a *Authority) Bootstrap(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"init-pki", a.Init},
		{"build-ca", a.BuildCA},
		{"issue-server", a.IssueServer},
		{"gen-dh", a.GenDH},
		{"gen-tls-auth", a.GenTLSAuthKey},
		{"gen-crl", a.GenCRL},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("authority %s: %w", step.name, err)
		}
	}
	a.logger.InfoContext(ctx, "authority bootstrap complete")
	return nil
}

// Revoke marks a certificate revoked and regenerates the revocation
// list. Revoke-then-regenerate is a single intent: when regeneration
// fails after a successful revoke, the returned RevocationFenceError is
// distinguishable from ordinary failure so callers retry GenCRL alone
// without re-revoking.
func (a *Authority) Revoke(ctx context.Context, name string) error {
	if err := a.easyrsa(ctx, "revoke", name); err != nil {
		return fmt.Errorf("revoke %s: %w", name, err)
	}
	if err := a.GenCRL(ctx); err != nil {
		return apperrors.NewRevocationFenceError(a.instance, name, err)
	}
	return nil
}

// CACertificate returns the CA certificate contents.
func (a *Authority) CACertificate() (string, error) {
	return readFile(a.paths.CACert)
}

// ClientCertificate returns the issued certificate for a client.
func (a *Authority) ClientCertificate(name string) (string, error) {
	return readFile(a.paths.ClientCertPath(name))
}

// ClientKey returns the private key for a client.
func (a *Authority) ClientKey(name string) (string, error) {
	return readFile(a.paths.ClientKeyPath(name))
}

// TLSAuthKey returns the shared-secret material.
func (a *Authority) TLSAuthKey() (string, error) {
	return readFile(a.paths.TLSAuthKey)
}

// WriteClientOverride writes the per-client override fragment binding a
// static address, e.g. "ifconfig-push 10.8.0.5 255.255.255.0".
func (a *Authority) WriteClientOverride(ccdDir, name, address, mask string) error {
	line := fmt.Sprintf("ifconfig-push %s %s\n", address, mask)
	return os.WriteFile(filepath.Join(ccdDir, name), []byte(line), 0o640)
}

// RemoveClientOverride deletes the per-client override fragment if present.
func (a *Authority) RemoveClientOverride(ccdDir, name string) error {
	err := os.Remove(filepath.Join(ccdDir, name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}
