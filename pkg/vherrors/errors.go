// Package vherrors provides the structured error type used across Vaulthalla's
// core: a fixed taxonomy of Kinds, each with a default retry/user-facing/HTTP
// status, plus a fluent builder for attaching context.
package vherrors

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Kind is one of the error taxonomy entries from the error handling design.
type Kind string

const (
	// NotFound - entry/key absent where presence was required.
	NotFound Kind = "NOT_FOUND"
	// AlreadyExists - write without overwrite against an existing entry.
	AlreadyExists Kind = "ALREADY_EXISTS"
	// Unauthorized - caller lacks permission for the operation.
	Unauthorized Kind = "UNAUTHORIZED"
	// Policy - planning cannot produce an action (e.g. Ask conflict); recorded, not fatal.
	Policy Kind = "POLICY"
	// PreflightSpace - quota or free-space bound violated.
	PreflightSpace Kind = "PREFLIGHT_SPACE"
	// Network - transport failure against an S3 endpoint (timeout, non-2xx non-retryable).
	Network Kind = "NETWORK"
	// AuthFailure - SigV4 rejected or AES-GCM tag verification failed.
	AuthFailure Kind = "AUTH_FAILURE"
	// Corruption - local content hash disagrees with expected after read/write.
	Corruption Kind = "CORRUPTION"
	// Cancelled - cooperative cancellation observed.
	Cancelled Kind = "CANCELLED"
	// Internal - invariant violation; logged at error, surfaced with an opaque id.
	Internal Kind = "INTERNAL"
)

// Error is Vaulthalla's structured error: a Kind plus context, following the
// same builder shape the daemon's teacher lineage uses for its own errors.
type Error struct {
	Kind    Kind                   `json:"kind"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Context map[string]string      `json:"context,omitempty"`
	Cause   error                  `json:"-"`

	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component,omitempty"`
	Operation string    `json:"operation,omitempty"`

	Retryable  bool `json:"retryable"`
	UserFacing bool `json:"user_facing"`
	HTTPStatus int  `json:"http_status,omitempty"`

	Stack string `json:"stack,omitempty"`
}

func (e *Error) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Kind, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	if other, ok := target.(*Error); ok {
		return e.Kind == other.Kind
	}
	return false
}

// JSON renders the error as a JSON string, omitting the unserializable cause.
func (e *Error) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// DetailedDiagnostic renders a multi-line operator-facing diagnostic.
func (e *Error) DetailedDiagnostic() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Kind: %s", e.Kind))
	parts = append(parts, fmt.Sprintf("Message: %s", e.Message))
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component: %s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation: %s", e.Operation))
	}
	if len(e.Context) > 0 {
		parts = append(parts, "Context:")
		for k, v := range e.Context {
			parts = append(parts, fmt.Sprintf("  %s: %s", k, v))
		}
	}
	if len(e.Details) > 0 {
		parts = append(parts, "Details:")
		for k, v := range e.Details {
			parts = append(parts, fmt.Sprintf("  %s: %v", k, v))
		}
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause: %s", e.Cause.Error()))
	}
	return strings.Join(parts, "\n")
}

// New constructs an Error of the given Kind with its default hints applied.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:       kind,
		Message:    message,
		Timestamp:  time.Now(),
		Details:    make(map[string]interface{}),
		Context:    make(map[string]string),
		Retryable:  retryableByDefault(kind),
		UserFacing: userFacingByDefault(kind),
		HTTPStatus: defaultHTTPStatus(kind),
	}
}

// Wrap constructs a new Error around an existing cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return New(kind, message).WithCause(cause)
}

// retryableByDefault mirrors the error-handling design's explicit retry
// exclusion list: no retry for AuthFailure, PreflightSpace, Policy,
// AlreadyExists, Unauthorized. Network is the one naturally retryable kind;
// Internal is retried by callers that choose to (e.g. transient invariant
// races), so it defaults retryable too, matching the teacher lineage's
// treatment of its own InternalError code.
func retryableByDefault(kind Kind) bool {
	switch kind {
	case Network, Internal:
		return true
	default:
		return false
	}
}

func userFacingByDefault(kind Kind) bool {
	switch kind {
	case NotFound, AlreadyExists, Unauthorized, Policy, PreflightSpace, AuthFailure:
		return true
	default:
		return false
	}
}

func defaultHTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return 404
	case AlreadyExists:
		return 409
	case Unauthorized:
		return 403
	case Policy:
		return 409
	case PreflightSpace:
		return 507
	case Network:
		return 504
	case AuthFailure:
		return 401
	case Corruption:
		return 422
	case Cancelled:
		return 499
	default:
		return 500
	}
}

// CaptureStack returns the caller's stack trace for debugging, skipping the
// given number of frames above the caller of CaptureStack itself.
func CaptureStack(skip int) string {
	const depth = 16
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var stack []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "errors.go") {
			stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return strings.Join(stack, "\n")
}

func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithStack() *Error {
	e.Stack = CaptureStack(2)
	return e
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var ve *Error
	for err != nil {
		if v, ok := err.(*Error); ok {
			ve = v
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ve != nil && ve.Kind == kind
}

// KindOf extracts the Kind from err, or Internal if err isn't a *Error.
func KindOf(err error) Kind {
	if v, ok := err.(*Error); ok {
		return v.Kind
	}
	return Internal
}
