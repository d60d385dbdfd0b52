package world

import (
	"errors"
	"fmt"
)

// Error is a kernel failure returned to the immediate caller.
//
// Property-access and tree-shape violations are reported with the matching
// Code and never defaulted. Failures inside hooks and callbacks are
// wrapped with ErrCodeDispatchFailed and keep their cause reachable
// through errors.As / errors.Is.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Address is the simulant involved, when there is one.
	Address Address

	// Property is the property name involved, when there is one.
	Property string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes kernel errors.
type ErrorCode string

const (
	// ErrCodePropertyNotFound indicates the name is not declared for the simulant.
	ErrCodePropertyNotFound ErrorCode = "PROPERTY_NOT_FOUND"

	// ErrCodeTypeMismatch indicates a value whose type disagrees with the declaration.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodePropertyReadOnly indicates a write to a read-only property.
	ErrCodePropertyReadOnly ErrorCode = "PROPERTY_READ_ONLY"

	// ErrCodeInvalidParent indicates a tree-shape violation on create.
	ErrCodeInvalidParent ErrorCode = "INVALID_PARENT"

	// ErrCodeInvalidAddress indicates a malformed or dangling address.
	ErrCodeInvalidAddress ErrorCode = "INVALID_ADDRESS"

	// ErrCodeNameCollision indicates a sibling with the same name is live.
	// Callers must guarantee uniqueness; this is a precondition violation.
	ErrCodeNameCollision ErrorCode = "NAME_COLLISION"

	// ErrCodePublishDepthExceeded indicates runaway re-entrant publishing.
	ErrCodePublishDepthExceeded ErrorCode = "PUBLISH_DEPTH_EXCEEDED"

	// ErrCodeDispatchFailed indicates a hook or callback failed or panicked.
	ErrCodeDispatchFailed ErrorCode = "DISPATCH_FAILED"

	// ErrCodeUnknownDispatcher indicates a dispatcher name with no registration.
	ErrCodeUnknownDispatcher ErrorCode = "UNKNOWN_DISPATCHER"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Property != "" {
		msg = fmt.Sprintf("%s (address=%s, property=%s)", msg, e.Address, e.Property)
	} else if e.Address != "" {
		msg = fmt.Sprintf("%s (address=%s)", msg, e.Address)
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

// hasCode walks the chain and reports whether any *Error carries code.
func hasCode(err error, code ErrorCode) bool {
	for err != nil {
		var ke *Error
		if !errors.As(err, &ke) {
			return false
		}
		if ke.Code == code {
			return true
		}
		err = ke.Err
	}
	return false
}

// IsPropertyNotFound reports whether err is or wraps a PropertyNotFound error.
func IsPropertyNotFound(err error) bool { return hasCode(err, ErrCodePropertyNotFound) }

// IsTypeMismatch reports whether err is or wraps a TypeMismatch error.
func IsTypeMismatch(err error) bool { return hasCode(err, ErrCodeTypeMismatch) }

// IsReadOnly reports whether err is or wraps a PropertyReadOnly error.
func IsReadOnly(err error) bool { return hasCode(err, ErrCodePropertyReadOnly) }

// IsInvalidParent reports whether err is or wraps an InvalidParent error.
func IsInvalidParent(err error) bool { return hasCode(err, ErrCodeInvalidParent) }

// IsInvalidAddress reports whether err is or wraps an InvalidAddress error.
func IsInvalidAddress(err error) bool { return hasCode(err, ErrCodeInvalidAddress) }

// IsNameCollision reports whether err is or wraps a NameCollision error.
func IsNameCollision(err error) bool { return hasCode(err, ErrCodeNameCollision) }

// IsPublishDepthExceeded reports whether err is or wraps a PublishDepthExceeded error.
func IsPublishDepthExceeded(err error) bool { return hasCode(err, ErrCodePublishDepthExceeded) }

// IsDispatchFailed reports whether err is or wraps a DispatchFailed error.
func IsDispatchFailed(err error) bool { return hasCode(err, ErrCodeDispatchFailed) }

// IsUnknownDispatcher reports whether err is or wraps an UnknownDispatcher error.
func IsUnknownDispatcher(err error) bool { return hasCode(err, ErrCodeUnknownDispatcher) }

func propertyNotFound(addr Address, name string) *Error {
	return &Error{
		Code:     ErrCodePropertyNotFound,
		Message:  "property is not declared",
		Address:  addr,
		Property: name,
	}
}

func typeMismatch(addr Address, def PropertyDefinition, got string) *Error {
	return &Error{
		Code:     ErrCodeTypeMismatch,
		Message:  fmt.Sprintf("expected %s, got %s", def.Type, got),
		Address:  addr,
		Property: def.Name,
	}
}

func notLive(addr Address) *Error {
	return &Error{
		Code:    ErrCodeInvalidAddress,
		Message: "no live simulant at address",
		Address: addr,
	}
}

func dispatchFailed(what string, addr Address, cause error) *Error {
	return &Error{
		Code:    ErrCodeDispatchFailed,
		Message: what,
		Address: addr,
		Err:     cause,
	}
}
