package db

import (
	"strings"
	"time"
)

// InstanceStatus is the lifecycle status of a managed instance.
type InstanceStatus string

const (
	InstanceProvisioning InstanceStatus = "provisioning"
	InstanceActive       InstanceStatus = "active"
	InstanceInactive     InstanceStatus = "inactive"
	InstanceError        InstanceStatus = "error"
)

// ProvisioningStep is one ordered stage of first-time instance bootstrap.
type ProvisioningStep string

const (
	StepNone              ProvisioningStep = "none"
	StepPackagesInstalled ProvisioningStep = "packages_installed"
	StepPKIInitialized    ProvisioningStep = "pki_initialized"
	StepServerConfigured  ProvisioningStep = "server_configured"
	StepNetworkConfigured ProvisioningStep = "network_configured"
	StepRunning           ProvisioningStep = "running"
)

// ClientStatus is the lifecycle status of a client credential.
type ClientStatus string

const (
	ClientActive  ClientStatus = "active"
	ClientRevoked ClientStatus = "revoked"
	ClientExpired ClientStatus = "expired"
)

// Instance is one managed OpenVPN server instance.
type Instance struct {
	ID          string
	Name        string // immutable slug, unique
	DisplayName string
	Status      InstanceStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ServerConfig holds the daemon parameters for one instance.
type ServerConfig struct {
	InstanceID     string
	Hostname       string
	Protocol       string // udp or tcp
	Port           int
	Device         string // tun or tap
	Subnet         string
	Mask           string
	DNSServers     []string
	Cipher         string
	AuthDigest     string
	TLSAuth        bool
	Compression    string // empty disables the directive
	ClientToClient bool
	MaxClients     int
	Keepalive      string
	PKIInitialized bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProvisioningState tracks the setup state machine for one instance.
type ProvisioningState struct {
	InstanceID  string
	Step        ProvisioningStep
	Completed   bool
	StartedAt   *time.Time
	CompletedAt *time.Time
	LastError   string
}

// ClientCredential is one issued client certificate within an instance.
type ClientCredential struct {
	ID            int64
	InstanceID    string
	Name          string
	Status        ClientStatus
	CommonName    string
	StaticAddress string
	Notes         string
	CreatedAt     time.Time
	RevokedAt     *time.Time
	ExpiresAt     *time.Time
}

// ConnectionRecord is one persisted session snapshot row.
type ConnectionRecord struct {
	ID             int64
	InstanceID     string
	ClientName     string
	RealAddress    string
	VirtualAddress string
	BytesReceived  int64
	BytesSent      int64
	ConnectedSince *time.Time
	RecordedAt     time.Time
}

// BandwidthStat is the per-client aggregate returned by bandwidth queries.
type BandwidthStat struct {
	ClientName    string
	BytesReceived int64
	BytesSent     int64
	Connections   int64
	LastSeen      *time.Time
}

// joinDNS and splitDNS convert between the []string model field and the
// comma-separated column representation.
func joinDNS(servers []string) string {
	return strings.Join(servers, ",")
}

func splitDNS(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
