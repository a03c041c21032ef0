// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeChatRequestInvalidInput  Code = "chat.request.invalid_input"
	CodeChatConversationConflict Code = "chat.conversation.conflict"
	CodeChatConversationNotFound Code = "chat.conversation.not_found"
	CodeChatGenerateFailure      Code = "chat.generate.failure"

	CodeProviderEmbedTimeout            Code = "provider.embed.timeout"
	CodeProviderEmbedUpstreamFailure    Code = "provider.embed.upstream_failure"
	CodeProviderGenerateTimeout         Code = "provider.generate.timeout"
	CodeProviderGenerateUpstreamFailure Code = "provider.generate.upstream_failure"
	CodeProviderAuthDenied              Code = "provider.auth.denied"
	CodeProviderQuotaBudgetExceeded     Code = "provider.quota.budget_exceeded"
	CodeProviderRequestInvalid          Code = "provider.request.invalid_input"
	CodeProviderResponseInvalid         Code = "provider.response.invalid_format"

	CodeIndexUpsertDimensionMismatch Code = "index.upsert.dimension_mismatch"
	CodeIndexQueryDimensionMismatch  Code = "index.query.dimension_mismatch"
	CodeIndexBackendUnsupported      Code = "index.backend.unsupported"
	CodeIndexOpenInvalidValue        Code = "index.open.invalid_value"
	CodeIndexDatabaseFailure         Code = "index.database.failure"

	CodeLocaleLoadReadFailure    Code = "locale.load.read.failure"
	CodeLocaleParseInvalidFormat Code = "locale.parse.invalid_format"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeCLISetupFailure Code = "cli.setup.failure"

	CodeSecretRequestInvalid Code = "secret.request.invalid_input"
	CodeSecretEntryNotFound  Code = "secret.entry.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"

	CodeServerRequestInvalid  Code = "server.request.invalid_input"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldConversationID(value string) Attr {
	return Field("conversation_id", value)
}

func FieldListingID(value string) Attr {
	return Field("listing_id", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func FieldLanguage(value string) Attr {
	return Field("language", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

// CodeOf returns the outermost code in the error chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	return oopsCode(oopsErr)
}

func oopsCode(oopsErr oops.OopsError) Code {
	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return hasReason(err, "not_found")
}

func IsConflict(err error) bool {
	return hasReason(err, "conflict")
}

func IsInvalidInput(err error) bool {
	return hasReason(err, "invalid", "invalid_input", "invalid_value", "invalid_format")
}

func IsTimeout(err error) bool {
	return hasReason(err, "timeout")
}

func IsUpstreamFailure(err error) bool {
	return hasReason(err, "upstream_failure")
}

func IsDimensionMismatch(err error) bool {
	return hasReason(err, "dimension_mismatch")
}

func IsBudgetExceeded(err error) bool {
	return hasReason(err, "budget_exceeded")
}

func IsDenied(err error) bool {
	return hasReason(err, "denied")
}

// IsRetryable reports whether a provider call may be retried. Only
// transient upstream failures qualify: timeouts mean the caller's
// deadline is already spent, and auth, quota, and validation failures
// are fatal to the request.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsTimeout(err) || IsDenied(err) || IsBudgetExceeded(err) || IsInvalidInput(err) {
		return false
	}
	return IsUpstreamFailure(err)
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err) || IsDimensionMismatch(err):
		return http.StatusBadRequest
	case IsDenied(err):
		return http.StatusForbidden
	case IsBudgetExceeded(err):
		return http.StatusTooManyRequests
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

// hasReason reports whether any code in the error chain carries one of
// the given reason suffixes. Wrapping an error under a broader code
// keeps the cause's classification visible to the predicates above.
func hasReason(err error, wants ...string) bool {
	for err != nil {
		oopsErr, ok := oops.AsOops(err)
		if !ok {
			return false
		}

		r := reason(oopsCode(oopsErr))
		for _, want := range wants {
			if r == want {
				return true
			}
		}
		err = oopsErr.Unwrap()
	}
	return false
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
