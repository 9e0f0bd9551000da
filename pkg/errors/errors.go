// Package errors defines the error taxonomy shared by the credential vault,
// the async call scheduler and the connector registry.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by lookup-style operations when the requested
// secret file or connector descriptor does not exist. Callers are expected
// to treat it as an empty result, not a failure.
var ErrNotFound = errors.New("not found")

// IntegrityError reports a MAC mismatch during decryption. It deliberately
// does not distinguish a wrong password from corrupted ciphertext; the two
// cases are indistinguishable to the end user.
type IntegrityError struct {
	Attr string
}

func (e *IntegrityError) Error() string {
	if e.Attr == "" {
		return "MAC mismatch"
	}
	return fmt.Sprintf("MAC mismatch decrypting %q", e.Attr)
}

// IsIntegrity reports whether err is (or wraps) an IntegrityError.
func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// ConfigurationError reports an unrecoverable configuration problem: an
// unknown connector variant, a duplicate connector name, or a missing
// required secret field. It is always fatal for the operation that produced
// it and is never silently defaulted.
type ConfigurationError struct {
	Connector string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	if e.Connector == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error for connector %q: %s", e.Connector, e.Reason)
}

// NewConfigurationError builds a ConfigurationError scoped to a connector.
func NewConfigurationError(connector, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Connector: connector, Reason: fmt.Sprintf(format, args...)}
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// TimeoutError reports that a scheduled call exceeded its deadline. Label
// carries the diagnostic message the submitter attached to the call.
type TimeoutError struct {
	Label   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s [timed out after %s]", e.Label, e.Timeout)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Is, As and Unwrap re-exports so callers do not need to import both this
// package and the standard library one.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
)
