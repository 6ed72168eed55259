package api

import "time"

// InstanceInfo is the external representation of an instance.
type InstanceInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// InstanceListResponse lists all instances.
type InstanceListResponse struct {
	Instances []InstanceInfo `json:"instances"`
	Total     int            `json:"total"`
}

// DeleteInstanceResponse reports a deletion with any best-effort
// cleanup warnings.
type DeleteInstanceResponse struct {
	Name     string   `json:"name"`
	Warnings []string `json:"warnings,omitempty"`
}

// ServerConfigInfo is the external representation of an instance's
// server parameters.
type ServerConfigInfo struct {
	Hostname       string   `json:"hostname"`
	Protocol       string   `json:"protocol"`
	Port           int      `json:"port"`
	Device         string   `json:"device"`
	Subnet         string   `json:"subnet"`
	Mask           string   `json:"mask"`
	DNSServers     []string `json:"dns_servers,omitempty"`
	Cipher         string   `json:"cipher"`
	AuthDigest     string   `json:"auth_digest"`
	TLSAuth        bool     `json:"tls_auth"`
	Compression    string   `json:"compression,omitempty"`
	ClientToClient bool     `json:"client_to_client"`
	MaxClients     int      `json:"max_clients"`
	Keepalive      string   `json:"keepalive"`
	PKIInitialized bool     `json:"pki_initialized"`
}

// ProvisioningInfo is the external representation of the provisioning
// state machine.
type ProvisioningInfo struct {
	Step        string     `json:"step"`
	Completed   bool       `json:"completed"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// InstanceStateResponse bundles an instance with its configuration and
// provisioning state.
type InstanceStateResponse struct {
	Instance     InstanceInfo     `json:"instance"`
	Config       ServerConfigInfo `json:"config"`
	Provisioning ProvisioningInfo `json:"provisioning"`
}

// ClientInfo is the external representation of a client credential.
type ClientInfo struct {
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	CommonName    string     `json:"common_name"`
	StaticAddress string     `json:"static_address,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// ClientListResponse lists the credentials of one instance.
type ClientListResponse struct {
	Clients []ClientInfo `json:"clients"`
	Total   int          `json:"total"`
}

// RevokeResponse reports the outcome of a revocation.
type RevokeResponse struct {
	Client         string `json:"client"`
	AlreadyRevoked bool   `json:"already_revoked"`
	Message        string `json:"message"`
}

// ConnectionInfo is one live session from the status feed.
type ConnectionInfo struct {
	ClientName     string     `json:"client_name"`
	RealAddress    string     `json:"real_address"`
	VirtualAddress string     `json:"virtual_address,omitempty"`
	BytesReceived  int64      `json:"bytes_received"`
	BytesSent      int64      `json:"bytes_sent"`
	ConnectedSince *time.Time `json:"connected_since,omitempty"`
}

// ConnectionListResponse lists the currently connected sessions.
type ConnectionListResponse struct {
	Connections []ConnectionInfo `json:"connections"`
	Total       int              `json:"total"`
}

// ConnectionRecordInfo is one persisted history row.
type ConnectionRecordInfo struct {
	ClientName     string     `json:"client_name"`
	RealAddress    string     `json:"real_address"`
	VirtualAddress string     `json:"virtual_address,omitempty"`
	BytesReceived  int64      `json:"bytes_received"`
	BytesSent      int64      `json:"bytes_sent"`
	ConnectedSince *time.Time `json:"connected_since,omitempty"`
	RecordedAt     time.Time  `json:"recorded_at"`
}

// HistoryResponse is one page of connection history.
type HistoryResponse struct {
	Records []ConnectionRecordInfo `json:"records"`
	Total   int64                  `json:"total"`
	Page    int                    `json:"page"`
	Limit   int                    `json:"limit"`
}

// BandwidthInfo is one per-client bandwidth aggregate.
type BandwidthInfo struct {
	ClientName    string     `json:"client_name"`
	BytesReceived int64      `json:"bytes_received"`
	BytesSent     int64      `json:"bytes_sent"`
	Connections   int64      `json:"connections"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
}

// BandwidthResponse lists bandwidth aggregates for one instance.
type BandwidthResponse struct {
	Stats []BandwidthInfo `json:"stats"`
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
