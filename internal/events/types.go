package events

import "time"

// Event type names fired on the bus.
const (
	EventInstanceCreated    = "instance.created"
	EventInstanceDeleted    = "instance.deleted"
	EventProvisionStep      = "provision.step"
	EventProvisionCompleted = "provision.completed"
	EventProvisionFailed    = "provision.failed"
	EventClientIssued       = "client.issued"
	EventClientRevoked      = "client.revoked"
)

// InstanceCreatedEvent is fired when a new instance is registered.
type InstanceCreatedEvent struct {
	InstanceID string    `json:"instance_id"`
	Name       string    `json:"name"`
	Timestamp  time.Time `json:"timestamp"`
}

// InstanceDeletedEvent is fired after an instance and its resources
// are removed. Warnings lists cleanup failures that did not abort
// the deletion.
type InstanceDeletedEvent struct {
	InstanceID string    `json:"instance_id"`
	Name       string    `json:"name"`
	Warnings   []string  `json:"warnings,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ProvisionStepEvent is fired each time setup advances to a new step.
type ProvisionStepEvent struct {
	InstanceID string    `json:"instance_id"`
	Name       string    `json:"name"`
	Step       string    `json:"step"`
	Timestamp  time.Time `json:"timestamp"`
}

// ProvisionCompletedEvent is fired when setup finishes and the
// instance service is running.
type ProvisionCompletedEvent struct {
	InstanceID string        `json:"instance_id"`
	Name       string        `json:"name"`
	Duration   time.Duration `json:"duration"`
	Timestamp  time.Time     `json:"timestamp"`
}

// ProvisionFailedEvent is fired when setup aborts at a step.
type ProvisionFailedEvent struct {
	InstanceID string    `json:"instance_id"`
	Name       string    `json:"name"`
	Step       string    `json:"step"`
	Error      string    `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
}

// ClientIssuedEvent is fired when a client credential is created or
// renewed.
type ClientIssuedEvent struct {
	InstanceID string    `json:"instance_id"`
	Client     string    `json:"client"`
	Renewed    bool      `json:"renewed"`
	Timestamp  time.Time `json:"timestamp"`
}

// ClientRevokedEvent is fired when a client credential is revoked.
// Fenced reports whether the revocation list was regenerated.
type ClientRevokedEvent struct {
	InstanceID string    `json:"instance_id"`
	Client     string    `json:"client"`
	Fenced     bool      `json:"fenced"`
	Timestamp  time.Time `json:"timestamp"`
}
