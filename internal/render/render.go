// Package render turns a server config record and resolved authority
// paths into canonical daemon configuration text. It is a pure
// transformation: identical inputs always produce byte-identical output.
package render

import (
	"fmt"
	"strings"

	"github.com/rizaleow/ovpn-manager/internal/db"
	"github.com/rizaleow/ovpn-manager/internal/pki"
	"github.com/rizaleow/ovpn-manager/internal/registry"
)

// ServerConfig renders the daemon configuration for one instance.
func ServerConfig(cfg db.ServerConfig, auth pki.Paths, paths registry.Paths, device string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "port %d\n", cfg.Port)
	fmt.Fprintf(&b, "proto %s\n", cfg.Protocol)
	fmt.Fprintf(&b, "dev %s\n", device)
	fmt.Fprintf(&b, "dev-type %s\n", cfg.Device)
	b.WriteString("topology subnet\n")

	fmt.Fprintf(&b, "ca %s\n", auth.CACert)
	fmt.Fprintf(&b, "cert %s\n", auth.ServerCert)
	fmt.Fprintf(&b, "key %s\n", auth.ServerKey)
	fmt.Fprintf(&b, "dh %s\n", auth.DH)
	fmt.Fprintf(&b, "crl-verify %s\n", auth.CRL)

	// Subnet mode for routed devices, bridge mode for tap.
	if cfg.Device == "tap" {
		fmt.Fprintf(&b, "server-bridge %s %s\n", cfg.Subnet, cfg.Mask)
	} else {
		fmt.Fprintf(&b, "server %s %s\n", cfg.Subnet, cfg.Mask)
	}

	for _, dns := range cfg.DNSServers {
		fmt.Fprintf(&b, "push \"dhcp-option DNS %s\"\n", dns)
	}
	b.WriteString("push \"redirect-gateway def1 bypass-dhcp\"\n")

	fmt.Fprintf(&b, "cipher %s\n", cfg.Cipher)
	fmt.Fprintf(&b, "auth %s\n", cfg.AuthDigest)

	if cfg.TLSAuth {
		fmt.Fprintf(&b, "tls-auth %s 0\n", auth.TLSAuthKey)
	}
	if cfg.Compression != "" {
		fmt.Fprintf(&b, "compress %s\n", cfg.Compression)
	}
	if cfg.ClientToClient {
		b.WriteString("client-to-client\n")
	}

	fmt.Fprintf(&b, "max-clients %d\n", cfg.MaxClients)
	fmt.Fprintf(&b, "keepalive %s\n", cfg.Keepalive)

	fmt.Fprintf(&b, "client-config-dir %s\n", paths.CCDDir)
	fmt.Fprintf(&b, "status %s\n", paths.StatusPath)
	fmt.Fprintf(&b, "log-append %s\n", paths.LogPath)

	b.WriteString("persist-key\n")
	b.WriteString("persist-tun\n")
	b.WriteString("user nobody\n")
	b.WriteString("group nogroup\n")
	b.WriteString("verb 3\n")
	b.WriteString("explicit-exit-notify 1\n")

	return b.String()
}

// ClientProfile renders a connectable client profile with inline
// credential material.
func ClientProfile(cfg db.ServerConfig, caCert, clientCert, clientKey, tlsAuthKey string) string {
	var b strings.Builder

	b.WriteString("client\n")
	fmt.Fprintf(&b, "dev %s\n", cfg.Device)
	fmt.Fprintf(&b, "proto %s\n", cfg.Protocol)
	fmt.Fprintf(&b, "remote %s %d\n", cfg.Hostname, cfg.Port)
	b.WriteString("resolv-retry infinite\n")
	b.WriteString("nobind\n")
	b.WriteString("persist-key\n")
	b.WriteString("persist-tun\n")
	b.WriteString("remote-cert-tls server\n")
	fmt.Fprintf(&b, "cipher %s\n", cfg.Cipher)
	fmt.Fprintf(&b, "auth %s\n", cfg.AuthDigest)
	if cfg.Compression != "" {
		fmt.Fprintf(&b, "compress %s\n", cfg.Compression)
	}
	b.WriteString("verb 3\n")

	writeInline(&b, "ca", caCert)
	writeInline(&b, "cert", clientCert)
	writeInline(&b, "key", clientKey)
	if cfg.TLSAuth {
		b.WriteString("key-direction 1\n")
		writeInline(&b, "tls-auth", tlsAuthKey)
	}

	return b.String()
}

func writeInline(b *strings.Builder, tag, content string) {
	fmt.Fprintf(b, "<%s>\n%s", tag, content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	fmt.Fprintf(b, "</%s>\n", tag)
}
