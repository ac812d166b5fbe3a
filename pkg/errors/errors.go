// Package errors provides custom error types for the shopfloor coordination core.
// These errors enable programmatic error checking and drive the fault taxonomy
// used to decide whether a failure is logged quietly or surfaced to the operator.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Common sentinel errors for the shopfloor system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownKey indicates a state key outside the process state schema
	ErrUnknownKey = errors.New("unknown state key")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")

	// ErrServerFault indicates the dashboard server answered with a non-OK status
	ErrServerFault = errors.New("server fault")

	// ErrWorkflowActive indicates an attempt to start a workflow while another one is running
	ErrWorkflowActive = errors.New("workflow already running")

	// ErrNoActiveWorkflow indicates a workflow operation with no active instance
	ErrNoActiveWorkflow = errors.New("no active workflow")

	// ErrWorkflowPaused indicates a step advance on a paused workflow
	ErrWorkflowPaused = errors.New("workflow paused")

	// ErrNotConnected indicates a send on a socket that is not connected
	ErrNotConnected = errors.New("not connected")
)

// Category classifies a failure by how the core must react to it.
type Category int

const (
	// CategoryUnknown is anything the classifier does not recognise.
	CategoryUnknown Category = iota
	// CategoryListener is a bus subscriber fault; isolated and logged.
	CategoryListener
	// CategoryTransient is a network hiccup (timeout, refused, 404); logged only.
	CategoryTransient
	// CategoryServer is a non-404 non-OK HTTP status; critical.
	CategoryServer
	// CategoryScript is a programming defect (recovered panic); always surfaced.
	CategoryScript
	// CategoryMisuse is an engine API misuse; returned to the caller.
	CategoryMisuse
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryListener:
		return "listener"
	case CategoryTransient:
		return "transient"
	case CategoryServer:
		return "server"
	case CategoryScript:
		return "script"
	case CategoryMisuse:
		return "misuse"
	default:
		return "unknown"
	}
}

// Critical reports whether failures of this category reach the operator.
func (c Category) Critical() bool {
	return c == CategoryServer || c == CategoryScript
}

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// StateKeyError is returned when an update names a key the process state does not have.
type StateKeyError struct {
	Key string
}

// Error implements the error interface
func (e *StateKeyError) Error() string {
	return fmt.Sprintf("unknown state key %q", e.Key)
}

// Is implements errors.Is support
func (e *StateKeyError) Is(target error) bool {
	return target == ErrUnknownKey || target == ErrInvalidInput
}

// APIError represents a non-OK answer from the dashboard server
type APIError struct {
	Resource   string
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API error for %s (status %d): %s", e.Resource, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error for %s: %s", e.Resource, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *APIError) Is(target error) bool {
	if e.StatusCode == http.StatusNotFound {
		return target == ErrNotFound
	}
	return target == ErrServerFault
}

// NewAPIError creates a new APIError
func NewAPIError(resource string, statusCode int, message string) *APIError {
	return &APIError{
		Resource:   resource,
		StatusCode: statusCode,
		Message:    message,
	}
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "json", "yaml"
	File    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, file string, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		File:    file,
		Message: message,
		Err:     err,
	}
}

// WorkflowError signals misuse of the workflow engine.
type WorkflowError struct {
	Operation  string // "start", "next", "status"
	WorkflowID string
	Err        error
}

// Error implements the error interface
func (e *WorkflowError) Error() string {
	if e.WorkflowID != "" {
		return fmt.Sprintf("workflow %s %s: %v", e.Operation, e.WorkflowID, e.Err)
	}
	return fmt.Sprintf("workflow %s: %v", e.Operation, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// NewWorkflowError creates a new WorkflowError
func NewWorkflowError(operation, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Operation:  operation,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// ScriptError wraps a recovered panic from a handler, timer or listener.
type ScriptError struct {
	Source string // where the panic was recovered, e.g. "poll:production-active"
	Value  any
}

// Error implements the error interface
func (e *ScriptError) Error() string {
	return fmt.Sprintf("script fault in %s: %v", e.Source, e.Value)
}

// Unwrap returns the panic value when it was itself an error.
func (e *ScriptError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Recovered converts a recover() value into a ScriptError. It returns nil for nil.
func Recovered(source string, v any) *ScriptError {
	if v == nil {
		return nil
	}
	return &ScriptError{Source: source, Value: v}
}

// ResourceError represents an error during resource operations
type ResourceError struct {
	Operation string // "create", "fetch", "decode", "dial"
	Resource  string
	ID        string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ResourceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("failed to %s %s %s: %s", e.Operation, e.Resource, e.ID, e.Message)
	}
	return fmt.Sprintf("failed to %s %s: %s", e.Operation, e.Resource, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NewResourceError creates a new ResourceError
func NewResourceError(operation, resource, id string, err error) *ResourceError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ResourceError{
		Operation: operation,
		Resource:  resource,
		ID:        id,
		Message:   message,
		Err:       err,
	}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsCanceled checks if an error is a cancellation error
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// Classify places err in the fault taxonomy.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var script *ScriptError
	if errors.As(err, &script) {
		return CategoryScript
	}

	var wf *WorkflowError
	if errors.As(err, &wf) || errors.Is(err, ErrWorkflowActive) || errors.Is(err, ErrNoActiveWorkflow) || errors.Is(err, ErrWorkflowPaused) {
		return CategoryMisuse
	}

	if IsNotFound(err) || IsTimeout(err) || IsCanceled(err) || errors.Is(err, ErrNotConnected) {
		return CategoryTransient
	}

	if errors.Is(err, ErrServerFault) {
		return CategoryServer
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return CategoryTransient
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return CategoryServer
	}

	return CategoryUnknown
}

// IsCritical reports whether err must be surfaced to the operator.
func IsCritical(err error) bool {
	return Classify(err).Critical()
}

// Helper wrapping functions for common patterns

// WrapResource wraps an error as a ResourceError
func WrapResource(operation, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	return NewResourceError(operation, resource, id, err)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err.Error(), err)
}

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}
