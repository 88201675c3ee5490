package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Base error types
var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTimeout          = errors.New("timeout")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConnectionFailed = errors.New("connection failed")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeAPI         ErrorType = "api"
	ErrorTypeConnection  ErrorType = "connection"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeDecode      ErrorType = "decode"
	ErrorTypePersistence ErrorType = "persistence"
)

// PanelError is a structured error for panel API and persistence operations.
// Every caller treats it as "this call failed, decide locally" - it is never
// a signal to terminate a loop or the process.
type PanelError struct {
	Type       ErrorType
	Op         string // Operation that failed (e.g., "list_nodes", "acquire_token")
	Identity   string // Panel credential identity the call ran under
	Err        error  // Underlying error
	StatusCode int    // HTTP status code if applicable
	Body       string // Response body for diagnostics, truncated
	Timestamp  time.Time
}

func (e *PanelError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed for %s: status %d: %v", e.Op, e.Identity, e.StatusCode, e.Err)
	}
	if e.Identity != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Identity, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PanelError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *PanelError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.Type == ErrorTypeAuth || e.StatusCode == http.StatusUnauthorized
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrConnectionFailed:
		return e.Type == ErrorTypeConnection
	}

	return errors.Is(e.Err, target)
}

// New creates a new PanelError
func New(errorType ErrorType, op, identity string, err error) *PanelError {
	return &PanelError{
		Type:      errorType,
		Op:        op,
		Identity:  identity,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// WithStatus attaches the HTTP status code and response body
func (e *PanelError) WithStatus(code int, body string) *PanelError {
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	e.StatusCode = code
	e.Body = body
	return e
}

// Helper constructors

// WrapAuthError wraps a credential-exchange failure with context
func WrapAuthError(op, identity string, err error) error {
	return New(ErrorTypeAuth, op, identity, err)
}

// WrapAPIError wraps a non-2xx response with context
func WrapAPIError(op, identity string, err error, statusCode int, body string) error {
	return New(ErrorTypeAPI, op, identity, err).WithStatus(statusCode, body)
}

// WrapTransportError wraps a network-level failure with context
func WrapTransportError(op, identity string, err error) error {
	return New(ErrorTypeConnection, op, identity, err)
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	var pErr *PanelError
	if errors.As(err, &pErr) {
		if pErr.Type == ErrorTypeAuth {
			return true
		}
		if pErr.StatusCode == http.StatusUnauthorized || pErr.StatusCode == http.StatusForbidden {
			return true
		}
	}

	return errors.Is(err, ErrUnauthorized)
}

// IsNotFound checks if an error carries a 404 status. The expired-user bulk
// delete relies on this to treat "nothing matched" as a successful empty result.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	var pErr *PanelError
	if errors.As(err, &pErr) {
		return pErr.StatusCode == http.StatusNotFound
	}

	return errors.Is(err, ErrNotFound)
}
