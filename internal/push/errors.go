package push

import (
	"errors"
	"fmt"
)

// Error represents a failure of a subscription operation that the caller
// must act on.
//
// Non-accepted hub responses are not errors; they are reported through
// Result and the SubscribeFailed observer hook.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Hub and Topic identify the subscription when known.
	Hub   string
	Topic string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes push errors.
type ErrorCode string

const (
	// ErrCodeConfiguration indicates no hub could be resolved or no callback
	// could be derived. The caller must supply the missing value.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"

	// ErrCodeDiscovery indicates the topic's feed metadata could not be
	// fetched or parsed. Retry later.
	ErrCodeDiscovery ErrorCode = "DISCOVERY"

	// ErrCodePrecondition indicates a token was requested for a subscription
	// without a persisted identity.
	ErrCodePrecondition ErrorCode = "PRECONDITION"

	// ErrCodeVerification indicates an inbound callback did not match the
	// stored subscription.
	ErrCodeVerification ErrorCode = "VERIFICATION"

	// ErrCodeInvalidRequest indicates malformed caller input.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Topic != "" && e.Hub != "" {
		msg = fmt.Sprintf("%s (hub=%s, topic=%s)", msg, e.Hub, e.Topic)
	} else if e.Topic != "" {
		msg = fmt.Sprintf("%s (topic=%s)", msg, e.Topic)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// IsConfigurationError returns true if err is a configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigurationError(err error) bool { return hasCode(err, ErrCodeConfiguration) }

// IsDiscoveryError returns true if err is a hub discovery error.
func IsDiscoveryError(err error) bool { return hasCode(err, ErrCodeDiscovery) }

// IsPreconditionError returns true if err is a precondition error.
func IsPreconditionError(err error) bool { return hasCode(err, ErrCodePrecondition) }

// IsVerificationError returns true if err is a callback verification error.
func IsVerificationError(err error) bool { return hasCode(err, ErrCodeVerification) }

// IsInvalidRequestError returns true if err reports malformed input.
func IsInvalidRequestError(err error) bool { return hasCode(err, ErrCodeInvalidRequest) }

// NewConfigurationError creates an Error for a missing hub or callback.
func NewConfigurationError(hub, topic, message string) *Error {
	return &Error{Code: ErrCodeConfiguration, Message: message, Hub: hub, Topic: topic}
}

// NewDiscoveryError creates an Error wrapping a hub resolution failure.
func NewDiscoveryError(topic string, err error) *Error {
	return &Error{Code: ErrCodeDiscovery, Message: "hub discovery failed", Topic: topic, Err: err}
}

// NewPreconditionError creates an Error for a contract violation.
func NewPreconditionError(message string) *Error {
	return &Error{Code: ErrCodePrecondition, Message: message}
}

// NewVerificationError creates an Error for a rejected callback.
func NewVerificationError(hub, topic, message string) *Error {
	return &Error{Code: ErrCodeVerification, Message: message, Hub: hub, Topic: topic}
}

// NewInvalidRequestError creates an Error for malformed input.
func NewInvalidRequestError(topic, message string) *Error {
	return &Error{Code: ErrCodeInvalidRequest, Message: message, Topic: topic}
}
