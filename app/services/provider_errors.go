// Package services contains the provider adapter machinery and supporting services
package services

import (
	"errors"
	"fmt"

	"github.com/amirphl/Uwabami/models"
)

// Provider call error constants
var (
	// ErrProviderUnavailable is returned without a network round trip while a
	// provider's circuit is open
	ErrProviderUnavailable = errors.New("provider circuit is open")

	// ErrNoNumbersAvailable is a business rejection: the provider has no stock
	// for the requested country/service
	ErrNoNumbersAvailable = errors.New("no numbers available")

	// ErrInvalidService is a business rejection: the provider does not know
	// the requested service code
	ErrInvalidService = errors.New("invalid service")

	// ErrOperationNotConfigured means the provider document lacks an endpoint
	// or mapping for the requested operation
	ErrOperationNotConfigured = errors.New("operation not configured for provider")
)

// ConfigurationError signals a broken provider document: a template token had
// no runtime value. It is raised before any network call so a misconfigured
// provider can never send malformed requests to a paid third-party API.
type ConfigurationError struct {
	Provider string
	Token    string
	Template string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("provider %s: unresolved template token {%s} in %q", e.Provider, e.Token, e.Template)
}

// LifecycleTerminalError signals that the provider considers the order
// permanently over (cancelled upstream, activation unknown, explicit timeout).
// The polling scheduler finalizes the number instead of retrying.
type LifecycleTerminalError struct {
	Provider   string
	ExternalID string
	Reason     string
}

func (e *LifecycleTerminalError) Error() string {
	return fmt.Sprintf("provider %s: activation %s is terminal: %s", e.Provider, e.ExternalID, e.Reason)
}

// ProviderCallError wraps transient failures (network errors, timeouts,
// unexpected responses). These are retried by the next scheduled poll and
// trigger fallback during purchase; they are never treated as order failures.
type ProviderCallError struct {
	Provider string
	Op       models.ProviderOperation
	Err      error
}

func (e *ProviderCallError) Error() string {
	return fmt.Sprintf("provider %s: %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderCallError) Unwrap() error {
	return e.Err
}

// IsLifecycleTerminal reports whether err carries a lifecycle-terminal signal
func IsLifecycleTerminal(err error) bool {
	var lte *LifecycleTerminalError
	return errors.As(err, &lte)
}

// IsConfigurationError reports whether err is a pre-flight configuration failure
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsBusinessRejection reports whether err is a provider-side rejection that
// should trigger fallback to the next ranked provider
func IsBusinessRejection(err error) bool {
	return errors.Is(err, ErrNoNumbersAvailable) || errors.Is(err, ErrInvalidService)
}
