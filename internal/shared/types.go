// Package shared provides shared types used across all modules in cortex-go.
package shared

import (
	"errors"
	"fmt"
	"time"
)

// ============================================================================
// Event Types
// ============================================================================

// EventType represents the type of an event.
type EventType string

const (
	EventPrimitiveRegistered   EventType = "kernel:registered"
	EventPrimitiveUnregistered EventType = "kernel:unregistered"
	EventPrimitiveCalled       EventType = "kernel:called"
	EventCallCompleted         EventType = "kernel:completed"
	EventCallFailed            EventType = "kernel:error"
	EventRouteDecided          EventType = "router:decided"
	EventRouteEscalated        EventType = "router:escalated"
	EventOutcomeRecorded       EventType = "router:outcome"

	// EventAny subscribes to every event type.
	EventAny EventType = "*"
)

// EventPayload is implemented by the concrete payload struct of each event
// type. Every event carries exactly one payload struct; there is no generic
// map payload.
type EventPayload interface {
	EventType() EventType
}

// Event is a single emitted event.
type Event struct {
	Type      EventType    `json:"type"`
	Timestamp int64        `json:"timestamp"`
	Payload   EventPayload `json:"payload"`
}

// PrimitiveRegisteredPayload is emitted when a primitive is registered.
type PrimitiveRegisteredPayload struct {
	PrimitiveID string `json:"primitiveId"`
	Layer       int    `json:"layer"`
}

func (PrimitiveRegisteredPayload) EventType() EventType { return EventPrimitiveRegistered }

// PrimitiveUnregisteredPayload is emitted when a primitive is removed.
type PrimitiveUnregisteredPayload struct {
	PrimitiveID string `json:"primitiveId"`
}

func (PrimitiveUnregisteredPayload) EventType() EventType { return EventPrimitiveUnregistered }

// PrimitiveCalledPayload is emitted when a call is dispatched.
type PrimitiveCalledPayload struct {
	PrimitiveID string `json:"primitiveId"`
	CallID      string `json:"callId"`
}

func (PrimitiveCalledPayload) EventType() EventType { return EventPrimitiveCalled }

// CallCompletedPayload is emitted when a call finishes successfully.
type CallCompletedPayload struct {
	PrimitiveID string `json:"primitiveId"`
	CallID      string `json:"callId"`
	DurationMs  int64  `json:"durationMs"`
}

func (CallCompletedPayload) EventType() EventType { return EventCallCompleted }

// CallFailedPayload is emitted when a call fails or times out.
type CallFailedPayload struct {
	PrimitiveID string `json:"primitiveId"`
	CallID      string `json:"callId"`
	DurationMs  int64  `json:"durationMs"`
	Error       string `json:"error"`
}

func (CallFailedPayload) EventType() EventType { return EventCallFailed }

// RouteDecidedPayload is emitted for every routing decision.
type RouteDecidedPayload struct {
	DecisionID string  `json:"decisionId"`
	TierID     string  `json:"tierId"`
	Confidence float64 `json:"confidence"`
	Depth      int     `json:"depth"`
}

func (RouteDecidedPayload) EventType() EventType { return EventRouteDecided }

// RouteEscalatedPayload is emitted when a decision moves up a tier.
type RouteEscalatedPayload struct {
	DecisionID    string `json:"decisionId"`
	PriorDecision string `json:"priorDecision"`
	FromTierID    string `json:"fromTierId"`
	ToTierID      string `json:"toTierId"`
}

func (RouteEscalatedPayload) EventType() EventType { return EventRouteEscalated }

// OutcomeRecordedPayload is emitted when feedback for a decision arrives.
type OutcomeRecordedPayload struct {
	DecisionID   string  `json:"decisionId"`
	TierID       string  `json:"tierId"`
	Success      bool    `json:"success"`
	NewThreshold float64 `json:"newThreshold"`
}

func (OutcomeRecordedPayload) EventType() EventType { return EventOutcomeRecorded }

// ============================================================================
// Error Types
// ============================================================================

// ErrorCode identifies a kernel error category.
type ErrorCode string

const (
	CodeAlreadyRegistered        ErrorCode = "ALREADY_REGISTERED"
	CodeNotRegistered            ErrorCode = "NOT_REGISTERED"
	CodeUnknownPrimitive         ErrorCode = "UNKNOWN_PRIMITIVE"
	CodeDisabled                 ErrorCode = "DISABLED"
	CodeConcurrencyLimitExceeded ErrorCode = "CONCURRENCY_LIMIT_EXCEEDED"
	CodeTimeout                  ErrorCode = "TIMEOUT"
	CodeDepthLimitExceeded       ErrorCode = "DEPTH_LIMIT_EXCEEDED"
	CodeNoTiersRegistered        ErrorCode = "NO_TIERS_REGISTERED"
)

// KernelError is the base error type for all cortex-go errors.
type KernelError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewKernelError creates a new KernelError.
func NewKernelError(code ErrorCode, message string, details map[string]interface{}) *KernelError {
	return &KernelError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// IsCode reports whether err is a KernelError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var ke *KernelError
	return errors.As(err, &ke) && ke.Code == code
}

// NewAlreadyRegistered creates the error returned when a primitive id is
// registered twice without an intervening unregister.
func NewAlreadyRegistered(primitiveID string) *KernelError {
	return NewKernelError(CodeAlreadyRegistered,
		fmt.Sprintf("primitive %q is already registered", primitiveID),
		map[string]interface{}{"primitiveId": primitiveID})
}

// NewNotRegistered creates the error returned for operations on an unknown
// primitive.
func NewNotRegistered(primitiveID string) *KernelError {
	return NewKernelError(CodeNotRegistered,
		fmt.Sprintf("primitive %q is not registered", primitiveID),
		map[string]interface{}{"primitiveId": primitiveID})
}

// NewUnknownPrimitive creates the error returned when an id is not part of
// the static primitive table.
func NewUnknownPrimitive(primitiveID string) *KernelError {
	return NewKernelError(CodeUnknownPrimitive,
		fmt.Sprintf("%q is not a known kernel primitive", primitiveID),
		map[string]interface{}{"primitiveId": primitiveID})
}

// NewDisabled creates the error returned when calling a disabled primitive.
func NewDisabled(primitiveID string) *KernelError {
	return NewKernelError(CodeDisabled,
		fmt.Sprintf("primitive %q is disabled", primitiveID),
		map[string]interface{}{"primitiveId": primitiveID})
}

// NewConcurrencyLimitExceeded creates the error returned when an in-flight
// limit is hit.
func NewConcurrencyLimitExceeded(limit int) *KernelError {
	return NewKernelError(CodeConcurrencyLimitExceeded,
		fmt.Sprintf("concurrency limit of %d exceeded", limit),
		map[string]interface{}{"limit": limit})
}

// NewTimeout creates the error returned when a call exceeds its deadline.
func NewTimeout(primitiveID, callID string, timeout time.Duration) *KernelError {
	return NewKernelError(CodeTimeout,
		fmt.Sprintf("call %s to primitive %q timed out after %s", callID, primitiveID, timeout),
		map[string]interface{}{"primitiveId": primitiveID, "callId": callID})
}

// NewDepthLimitExceeded creates the error returned when a cascade request is
// already at the maximum depth.
func NewDepthLimitExceeded(depth, max int) *KernelError {
	return NewKernelError(CodeDepthLimitExceeded,
		fmt.Sprintf("cascade depth %d exceeds limit %d", depth, max),
		map[string]interface{}{"depth": depth, "max": max})
}

// NewNoTiersRegistered creates the error returned when routing with an empty
// tier set.
func NewNoTiersRegistered() *KernelError {
	return NewKernelError(CodeNoTiersRegistered, "no model tiers registered", nil)
}

// ============================================================================
// Utility Functions
// ============================================================================

// Now returns the current time in milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}
