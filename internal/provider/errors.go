package provider

import (
	"errors"
	"fmt"

	"github.com/agentoven/orchestrator/pkg/models"
)

// Error kinds. Every *Error also matches ErrProvider.
var (
	ErrProvider         = errors.New("provider error")
	ErrAuth             = errors.New("authentication failed")
	ErrAPI              = errors.New("provider api error")
	ErrTimeout          = errors.New("provider timed out")
	ErrValidation       = errors.New("invalid agent config")
	ErrProviderNotFound = errors.New("provider not found")
	ErrAgentUnavailable = errors.New("agent is not accepting messages")
)

// Error is a backend failure classified into one of the kinds above.
type Error struct {
	Op         string // e.g. "openai.handle_message"
	Kind       error
	StatusCode int // HTTP status or process exit code; 0 when unknown
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func (e *Error) Is(target error) bool {
	return target == ErrProvider
}

// NewError builds a classified error. kind defaults to ErrProvider.
func NewError(op string, kind error, err error) *Error {
	if kind == nil {
		kind = ErrProvider
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// AuthError reports missing or rejected credentials.
func AuthError(op, detail string, err error) *Error {
	return &Error{Op: op, Kind: ErrAuth, Detail: detail, Err: err}
}

// APIError reports a non-success response with its status code.
func APIError(op string, status int, detail string, err error) *Error {
	return &Error{Op: op, Kind: ErrAPI, StatusCode: status, Detail: detail, Err: err}
}

// TimeoutError reports a backend call that did not complete in time.
func TimeoutError(op string, err error) *Error {
	return &Error{Op: op, Kind: ErrTimeout, Err: err}
}

// ValidationError reports an unusable agent configuration.
func ValidationError(op, detail string) *Error {
	return &Error{Op: op, Kind: ErrValidation, Detail: detail}
}

// Unavailable reports a message sent to a failed or terminated agent.
// Such agents must be shut down and spawned again.
func Unavailable(op, agent string, state models.AgentState) *Error {
	return &Error{Op: op, Kind: ErrAgentUnavailable, Detail: fmt.Sprintf("agent %q is %s", agent, state)}
}

// StatusCode extracts the status code carried by err, if any.
func StatusCode(err error) (int, bool) {
	var pe *Error
	if errors.As(err, &pe) && pe.StatusCode != 0 {
		return pe.StatusCode, true
	}
	return 0, false
}
