package api

// CreateInstanceRequest registers a new instance.
type CreateInstanceRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
}

// SetupRequest carries the server parameters for a provisioning run.
// Pointer fields distinguish "leave the stored value" from an explicit
// false or empty setting.
type SetupRequest struct {
	Hostname       string   `json:"hostname"`
	Protocol       string   `json:"protocol,omitempty"`
	Port           int      `json:"port,omitempty"`
	Device         string   `json:"device,omitempty"`
	Subnet         string   `json:"subnet,omitempty"`
	Mask           string   `json:"mask,omitempty"`
	DNSServers     []string `json:"dns_servers,omitempty"`
	Cipher         string   `json:"cipher,omitempty"`
	AuthDigest     string   `json:"auth_digest,omitempty"`
	TLSAuth        *bool    `json:"tls_auth,omitempty"`
	Compression    *string  `json:"compression,omitempty"`
	ClientToClient *bool    `json:"client_to_client,omitempty"`
	MaxClients     int      `json:"max_clients,omitempty"`
	Keepalive      string   `json:"keepalive,omitempty"`
}

// IssueClientRequest issues a credential for a new client.
type IssueClientRequest struct {
	Name          string `json:"name"`
	StaticAddress string `json:"static_address,omitempty"`
	Notes         string `json:"notes,omitempty"`
}
