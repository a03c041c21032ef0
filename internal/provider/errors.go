// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package provider

import (
	"context"
	"errors"
	"net/http"

	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
)

// Op distinguishes embedding from generation calls so each surfaces its
// own timeout and upstream error codes.
type Op string

const (
	OpEmbed    Op = "embed"
	OpGenerate Op = "generate"
)

func timeoutCode(op Op) dwellyerr.Code {
	if op == OpGenerate {
		return dwellyerr.CodeProviderGenerateTimeout
	}
	return dwellyerr.CodeProviderEmbedTimeout
}

func upstreamCode(op Op) dwellyerr.Code {
	if op == OpGenerate {
		return dwellyerr.CodeProviderGenerateUpstreamFailure
	}
	return dwellyerr.CodeProviderEmbedUpstreamFailure
}

// Classify maps an upstream failure to the error taxonomy. statusCode is
// the HTTP status reported by the provider SDK, or 0 when the call never
// produced a response (network failure, cancelled context).
//
// Timeouts are distinct from other upstream failures so callers can tell
// "the model was slow" from "the model refused". Auth and quota statuses
// are fatal to the request and are never retried.
func Classify(op Op, name string, statusCode int, err error) error {
	if err == nil {
		return nil
	}

	field := dwellyerr.FieldProvider(name)

	if errors.Is(err, context.DeadlineExceeded) {
		return dwellyerr.Wrap(err, timeoutCode(op), string(op)+" call timed out", field)
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return dwellyerr.Wrap(err, dwellyerr.CodeProviderAuthDenied, string(op)+" call rejected", field)
	case http.StatusTooManyRequests:
		return dwellyerr.Wrap(err, dwellyerr.CodeProviderQuotaBudgetExceeded, string(op)+" quota exhausted", field)
	}

	return dwellyerr.Wrap(err, upstreamCode(op), string(op)+" call failed", field)
}

// WithRetry runs call, retrying at most maxRetries times on transient
// upstream failures. Timeouts are not retried (the caller's deadline is
// already spent), and auth or quota failures are fatal.
func WithRetry(ctx context.Context, maxRetries int, call func(context.Context) error) error {
	err := call(ctx)
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err == nil {
			return nil
		}
		if !dwellyerr.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
		err = call(ctx)
	}
	return err
}
