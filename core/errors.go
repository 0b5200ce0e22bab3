package core

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	RelayErrorBadInput           = "RELAY_BAD_INPUT"
	RelayErrorBackendConflict    = "RELAY_BACKEND_CONFLICT"
	RelayErrorBackendUnavailable = "RELAY_BACKEND_UNAVAILABLE"
	RelayErrorDeliveryFailed     = "RELAY_DELIVERY_FAILED"
	RelayErrorRateLimited        = "RELAY_RATE_LIMITED"
	RelayErrorConfigMissing      = "RELAY_CONFIG_MISSING"
	RelayErrorInternal           = "RELAY_INTERNAL_ERROR"
)

// BadInputError covers input rejected before any network call: an empty
// search keyword, a malformed button payload. Recovered locally with a
// guidance message to the user.
type BadInputError struct {
	Reason string
}

func (e BadInputError) Error() string {
	return "core: bad input: " + e.Reason
}

func (e BadInputError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(RelayErrorBadInput)
}

// BackendConflictError signals duplicate creation of a natural key; the
// resolver recovers by re-fetching the existing record.
type BackendConflictError struct {
	NaturalKey string
}

func (e BackendConflictError) Error() string {
	return fmt.Sprintf("core: backend conflict for natural key %q", e.NaturalKey)
}

func (e BackendConflictError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(RelayErrorBackendConflict).
		WithMetadata(map[string]any{"natural_key": e.NaturalKey})
}

// BackendUnavailableError wraps any other non-2xx or network failure from
// the backend store. Surfaced to the user as a generic try-again message;
// the upstream payload goes to the log only.
type BackendUnavailableError struct {
	Operation string
	Status    int
	Cause     error
}

func (e BackendUnavailableError) Error() string {
	msg := "core: backend unavailable"
	if op := strings.TrimSpace(e.Operation); op != "" {
		msg += " during " + op
	}
	if e.Status > 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e BackendUnavailableError) Unwrap() error {
	return e.Cause
}

func (e BackendUnavailableError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{"operation": strings.TrimSpace(e.Operation)}
	if e.Status > 0 {
		metadata["upstream_status"] = e.Status
	}
	return goerrors.New(e.Error(), goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(RelayErrorBackendUnavailable).
		WithMetadata(metadata)
}

// ThrottledError is the transport's rate-limit signal, carrying the wait
// the platform suggested before the next attempt.
type ThrottledError struct {
	ConversationID int64
	RetryAfter     time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("core: conversation %d throttled for %s", e.ConversationID, e.RetryAfter)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{"conversation_id": e.ConversationID}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(RelayErrorRateLimited).
		WithMetadata(metadata)
}

// DeliveryFailedError is a transport send that failed after the bounded
// throttle retry. Best effort: logged, never retried further.
type DeliveryFailedError struct {
	ConversationID int64
	Attempts       int
	Cause          error
}

func (e DeliveryFailedError) Error() string {
	msg := fmt.Sprintf("core: delivery to conversation %d failed after %d attempts", e.ConversationID, e.Attempts)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e DeliveryFailedError) Unwrap() error {
	return e.Cause
}

func (e DeliveryFailedError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(RelayErrorDeliveryFailed).
		WithMetadata(map[string]any{
			"conversation_id": e.ConversationID,
			"attempts":        e.Attempts,
		})
}

// ConfigMissingError is fatal at startup, before the listener binds.
type ConfigMissingError struct {
	Field string
}

func (e ConfigMissingError) Error() string {
	return fmt.Sprintf("core: required configuration %q is missing", e.Field)
}

func (e ConfigMissingError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryValidation).
		WithCode(http.StatusInternalServerError).
		WithTextCode(RelayErrorConfigMissing).
		WithMetadata(map[string]any{"field": e.Field})
}

func relayErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureRelayErrorEnvelope(richErr)
	}

	type serviceConvertible interface {
		ToServiceError() *goerrors.Error
	}
	var convertible serviceConvertible
	if goerrors.As(err, &convertible) {
		return ensureRelayErrorEnvelope(convertible.ToServiceError())
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureRelayErrorEnvelope(mapped)
}

func ensureRelayErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = relayHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultRelayTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultRelayTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return RelayErrorBadInput
	case goerrors.CategoryConflict:
		return RelayErrorBackendConflict
	case goerrors.CategoryRateLimit:
		return RelayErrorRateLimited
	case goerrors.CategoryExternal, goerrors.CategoryOperation:
		return RelayErrorBackendUnavailable
	default:
		return RelayErrorInternal
	}
}

func relayHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal, goerrors.CategoryOperation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsBackendConflict reports whether err is the duplicate-natural-key signal
// the resolver recovers from.
func IsBackendConflict(err error) bool {
	if err == nil {
		return false
	}
	var conflict BackendConflictError
	if goerrors.As(err, &conflict) {
		return true
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryConflict ||
			strings.TrimSpace(richErr.TextCode) == RelayErrorBackendConflict
	}
	return false
}

// IsThrottled extracts the transport throttle signal and its suggested wait.
func IsThrottled(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var throttled ThrottledError
	if goerrors.As(err, &throttled) {
		return throttled.RetryAfter, true
	}
	return 0, false
}
