// Package errors defines the structured error types shared by all
// ovpn-manager components. Every mutating operation either returns the
// updated resource or one of these errors, so the HTTP boundary and the
// CLI can map failures to user-facing results without string matching.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError indicates malformed or rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed [%s]: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewValidationError creates a new validation error for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError indicates an unknown instance, client or rule.
type NotFoundError struct {
	Resource string // e.g. "instance", "client", "rule"
	Name     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Name)
}

// NewNotFoundError creates a new not-found error.
func NewNotFoundError(resource, name string) *NotFoundError {
	return &NotFoundError{Resource: resource, Name: name}
}

// ConflictError indicates a duplicate name or an operation that is not
// valid in the current state, such as re-running a completed setup.
type ConflictError struct {
	Resource string
	Name     string
	Message  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s %q: %s", e.Resource, e.Name, e.Message)
}

// NewConflictError creates a new conflict error.
func NewConflictError(resource, name, message string) *ConflictError {
	return &ConflictError{Resource: resource, Name: name, Message: message}
}

// CommandError indicates a non-zero exit from an external process. It
// carries the full argument vector, the exit code and captured stderr.
type CommandError struct {
	Command  []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q exited with code %d", strings.Join(e.Command, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// NewCommandError creates a new external command error.
func NewCommandError(command []string, exitCode int, stderr string, err error) *CommandError {
	return &CommandError{Command: command, ExitCode: exitCode, Stderr: stderr, Err: err}
}

// ServiceError wraps a failed orchestration step, preserving which step
// failed and the underlying cause.
type ServiceError struct {
	Step    string // provisioning step or operation name
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("service error at %s: %s: %v", e.Step, e.Message, e.Err)
	}
	return fmt.Sprintf("service error: %s: %v", e.Message, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// NewServiceError creates a new service error for the given step.
func NewServiceError(step, message string, err error) *ServiceError {
	return &ServiceError{Step: step, Message: message, Err: err}
}

// RevocationFenceError indicates that a certificate was revoked but the
// revocation list could not be regenerated afterwards. The client is
// revoked in the database and the PKI index, but connected sessions are
// not yet fenced off. Callers must retry CRL regeneration alone; the
// revoke itself must not be repeated.
type RevocationFenceError struct {
	Instance string
	Client   string
	Err      error
}

func (e *RevocationFenceError) Error() string {
	return fmt.Sprintf("client %q on instance %q revoked but revocation list not regenerated: %v",
		e.Client, e.Instance, e.Err)
}

func (e *RevocationFenceError) Unwrap() error { return e.Err }

// NewRevocationFenceError creates a new revoked-but-not-fenced error.
func NewRevocationFenceError(instance, client string, err error) *RevocationFenceError {
	return &RevocationFenceError{Instance: instance, Client: client, Err: err}
}

// Helper predicates for boundary-layer error mapping.

// IsValidation reports whether any error in the chain is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether any error in the chain is a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsConflict reports whether any error in the chain is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsCommand reports whether any error in the chain is a CommandError.
func IsCommand(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr)
}

// IsRevocationFence reports whether any error in the chain is a
// RevocationFenceError.
func IsRevocationFence(err error) bool {
	var rfe *RevocationFenceError
	return errors.As(err, &rfe)
}
