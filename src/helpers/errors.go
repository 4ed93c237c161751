package helpers

import (
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Error taxonomy.
// FetchError: transport/HTTP failure during a remote fetch; surfaced to the
// caller, never retried internally. StoreError: local storage failure; the
// cache is best-effort, so callers log these and proceed with whatever data
// they have. ChannelError: push socket failure; triggers reconnection.
// MalformedMessageError: unparseable push frame; logged and dropped.
// -----------------------------------------------------------------------------

type KlineCacheError struct {
	Message string
	Cause   error
}

func (e *KlineCacheError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *KlineCacheError) Unwrap() error {
	return e.Cause
}

// Helper to define distinct error types for type assertions if needed
type ConfigurationError struct{ KlineCacheError }
type FetchError struct{ KlineCacheError }
type StoreError struct{ KlineCacheError }
type ChannelError struct{ KlineCacheError }
type MalformedMessageError struct{ KlineCacheError }

// -----------------------------------------------------------------------------

func NewFetchError(message string, cause error) *FetchError {
	return &FetchError{KlineCacheError{Message: message, Cause: cause}}
}

func NewStoreError(message string, cause error) *StoreError {
	return &StoreError{KlineCacheError{Message: message, Cause: cause}}
}

func NewChannelError(message string, cause error) *ChannelError {
	return &ChannelError{KlineCacheError{Message: message, Cause: cause}}
}

func NewMalformedMessageError(message string, cause error) *MalformedMessageError {
	return &MalformedMessageError{KlineCacheError{Message: message, Cause: cause}}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff attempts to execute the operation up to maxRetries times
// with exponential backoff. The fetch client itself never retries; callers
// that want retry semantics (the startup backfill) wrap calls with this.
func RetryWithBackoff(operation string, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		fmt.Printf("Warning: Attempt %d/%d failed for %s: %v. Retrying in %v\n", attempt+1, maxRetries, operation, err, delay)
		time.Sleep(delay)
	}

	return lastErr
}
