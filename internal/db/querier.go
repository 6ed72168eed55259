package db

import "context"

// Querier is the query surface exposed by Queries and, through
// embedding, by Store. Grouped by entity.
type Querier interface {
	// Instances
	CreateInstance(ctx context.Context, params CreateInstanceParams) (Instance, error)
	GetInstanceByName(ctx context.Context, name string) (Instance, error)
	GetInstanceByID(ctx context.Context, id string) (Instance, error)
	ListInstances(ctx context.Context) ([]Instance, error)
	UpdateInstanceStatus(ctx context.Context, name string, status InstanceStatus) error
	DeleteInstance(ctx context.Context, name string) error

	// Server configs
	CreateServerConfig(ctx context.Context, cfg ServerConfig) error
	GetServerConfig(ctx context.Context, instanceID string) (ServerConfig, error)
	UpdateServerConfig(ctx context.Context, cfg ServerConfig) error
	SetPKIInitialized(ctx context.Context, instanceID string, initialized bool) error

	// Provisioning states
	CreateProvisioningState(ctx context.Context, instanceID string) error
	GetProvisioningState(ctx context.Context, instanceID string) (ProvisioningState, error)
	SetProvisioningStep(ctx context.Context, instanceID string, step ProvisioningStep) error
	ResetProvisioning(ctx context.Context, instanceID string) error
	CompleteProvisioning(ctx context.Context, instanceID string) error
	SetProvisioningError(ctx context.Context, instanceID string, message string) error

	// Client credentials
	CreateClientCredential(ctx context.Context, params CreateClientParams) (ClientCredential, error)
	GetClientCredential(ctx context.Context, instanceID, name string) (ClientCredential, error)
	ListClientCredentials(ctx context.Context, instanceID string) ([]ClientCredential, error)
	RevokeClientCredential(ctx context.Context, instanceID, name string) error
	RenewClientCredential(ctx context.Context, instanceID, name string) error

	// Connection records
	InsertConnectionRecord(ctx context.Context, rec ConnectionRecord) error
	ListConnectionHistory(ctx context.Context, instanceID string, limit, offset int) ([]ConnectionRecord, error)
	CountConnectionRecords(ctx context.Context, instanceID string) (int64, error)
	BandwidthStats(ctx context.Context, instanceID string) ([]BandwidthStat, error)
}

var _ Querier = (*Queries)(nil)
