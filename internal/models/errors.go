package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a provider failure.
type Kind string

const (
	KindAuthentication  Kind = "authentication"
	KindRateLimited     Kind = "rate_limited"
	KindContextTooLong  Kind = "context_too_long"
	KindModelNotFound   Kind = "model_not_found"
	KindConnection      Kind = "connection"
	KindInvalidResponse Kind = "invalid_response"
	KindUnknown         Kind = "unknown"
)

// Error is a normalized provider error.
type Error struct {
	Kind     Kind
	Provider string
	Body     string // raw response excerpt, when the provider sent something unexpected
	Err      error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(strings.ReplaceAll(string(e.Kind), "_", " "))
	if e.Provider != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Provider)
		sb.WriteString(")")
	}
	switch {
	case e.Err != nil:
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	case e.Body != "":
		sb.WriteString(": ")
		sb.WriteString(e.Body)
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// HandleError converts common SDK errors to a typed *Error.
func HandleError(provider string, err error) error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return &Error{Kind: classify(err.Error()), Provider: provider, Err: err}
}

func classify(msg string) Kind {
	errStr := strings.ToLower(msg)

	switch {
	case containsAny(errStr, "401", "403", "unauthorized", "invalid api key", "api key", "forbidden"):
		return KindAuthentication
	case containsAny(errStr, "429", "rate limit", "quota", "too many requests", "overloaded"):
		return KindRateLimited
	case containsAny(errStr, "context length", "too many tokens", "max tokens", "token limit"):
		return KindContextTooLong
	case containsAny(errStr, "model not found", "404", "not found"):
		return KindModelNotFound
	case containsAny(errStr, "connection", "eof", "timeout", "dial", "refused", "502", "503", "504"):
		return KindConnection
	}
	return KindUnknown
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func errEmptyResponse(provider string) error {
	return &Error{Kind: KindInvalidResponse, Provider: provider, Err: fmt.Errorf("empty response")}
}
