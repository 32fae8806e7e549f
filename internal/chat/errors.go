package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type Kind string

const (
	KindMalformedRequest Kind = "malformed_request"
	KindInvalidUser      Kind = "invalid_user"
	KindQuotaExceeded    Kind = "quota_exceeded"
	KindConfiguration    Kind = "configuration_error"
	KindUsageIncrement   Kind = "usage_increment_error"
	KindHistoryMutation  Kind = "history_mutation_error"
	KindLogging          Kind = "logging_error"
	KindStreaming        Kind = "streaming_error"
	KindInternal         Kind = "internal_error"
)

// MissingInformationMessage is the exact body text for turns lacking
// messages, chatId or userId.
const MissingInformationMessage = "Error, missing information"

const internalErrorMessage = "Internal server error"

// Error is the single error variant that crosses the HTTP boundary.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Code    string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func MalformedRequest(message string) *Error {
	return &Error{Kind: KindMalformedRequest, Message: message, Status: http.StatusBadRequest}
}

func InvalidUser(message string) *Error {
	return &Error{Kind: KindInvalidUser, Message: message, Status: http.StatusUnauthorized}
}

func QuotaExceeded(message string) *Error {
	return &Error{Kind: KindQuotaExceeded, Message: message, Status: http.StatusForbidden, Code: "DAILY_LIMIT_REACHED"}
}

func ConfigurationError(message string) *Error {
	return &Error{Kind: KindConfiguration, Message: message, Status: http.StatusInternalServerError}
}

// Wrap tags err with kind. Status is left for Normalize to default.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Normalize converts any error into a tagged Error with a status and a
// human-readable message.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}

	var tagged *Error
	if errors.As(err, &tagged) {
		out := *tagged
		if out.Status == 0 {
			out.Status = http.StatusInternalServerError
		}
		if strings.TrimSpace(out.Message) == "" {
			out.Message = internalErrorMessage
		}
		return &out
	}

	// Untagged errors carry driver and upstream text; only Err keeps it.
	return &Error{Kind: KindInternal, Message: internalErrorMessage, Status: http.StatusInternalServerError, Err: err}
}

var clientMessageRules = []struct {
	needles []string
	message string
}{
	{needles: []string{"401", "unauthorized", "api key"}, message: "Invalid API key or unauthorized access to the model provider."},
	{needles: []string{"429", "rate limit"}, message: "Rate limit exceeded. Please try again later."},
	{needles: []string{"overloaded", "503", "capacity"}, message: "The model provider is overloaded. Please try again later."},
	{needles: []string{"context length", "too many tokens", "maximum context"}, message: "The conversation is too long for the model. Please start a new chat."},
}

// ClientMessage returns a sanitized message safe to show to the caller.
// Upstream bodies and wrapped internals never pass through.
func ClientMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The model took too long to respond. Please try again."
	}

	var tagged *Error
	if errors.As(err, &tagged) && tagged.Kind != KindStreaming && tagged.Kind != KindInternal {
		return tagged.Message
	}

	lowered := strings.ToLower(err.Error())
	for _, rule := range clientMessageRules {
		for _, needle := range rule.needles {
			if strings.Contains(lowered, needle) {
				return rule.message
			}
		}
	}
	return "An error occurred while generating the response. Please try again."
}

// BestEffort runs a fire-and-log step. A failure is logged under kind and
// discarded; the return value only reports whether fn succeeded.
func BestEffort(logger *zap.Logger, kind Kind, step string, fn func() error, fields ...zap.Field) bool {
	err := fn()
	if err == nil {
		return true
	}
	if logger != nil {
		logger.Error(step+" failed", append(fields, zap.String("kind", string(kind)), zap.Error(err))...)
	}
	return false
}
