package provider

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrNotImplemented is matched by every NotImplementedError
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnknownProvider is matched by every UnknownProviderError
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrNotRegistered is matched by every NotRegisteredError
	ErrNotRegistered = errors.New("provider not registered")
)

// AuthenticationError is returned when an upstream login is rejected or malformed
type AuthenticationError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *AuthenticationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: authentication failed: %d %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: authentication failed: %s", e.Provider, e.Message)
}

// UpstreamRequestError is returned for a non-success HTTP status from a provider call
type UpstreamRequestError struct {
	Provider   string
	Operation  string
	StatusCode int
	Message    string
}

func (e *UpstreamRequestError) Error() string {
	return fmt.Sprintf("%s: failed to %s: %d %s", e.Provider, e.Operation, e.StatusCode, e.Message)
}

// Temporary reports whether the upstream failure is worth retrying
func (e *UpstreamRequestError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

func newUpstreamError(provider, operation string, resp *http.Response) *UpstreamRequestError {
	msg := http.StatusText(resp.StatusCode)
	if body, err := io.ReadAll(io.LimitReader(resp.Body, 512)); err == nil {
		if s := strings.TrimSpace(string(body)); s != "" {
			msg = msg + ": " + s
		}
	}
	return &UpstreamRequestError{
		Provider:   provider,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
}

// NotImplementedError is returned when a provider lacks a capability
type NotImplementedError struct {
	Provider   string
	Capability string
	Detail     string
}

func (e *NotImplementedError) Error() string {
	msg := fmt.Sprintf("%s is not implemented by provider %s", e.Capability, e.Provider)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *NotImplementedError) Is(target error) bool {
	return target == ErrNotImplemented
}

// UnknownProviderError is returned when a name is not in the supported set
type UnknownProviderError struct {
	Name      string
	Supported []string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider: %s. Supported providers: %s", e.Name, strings.Join(e.Supported, ", "))
}

func (e *UnknownProviderError) Is(target error) bool {
	return target == ErrUnknownProvider
}

// NotRegisteredError is returned when a supported provider has no adapter binding
type NotRegisteredError struct {
	Name string
	Err  error
}

func (e *NotRegisteredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s is registered but could not be constructed: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("provider %s is registered but not implemented", e.Name)
}

func (e *NotRegisteredError) Unwrap() error {
	return e.Err
}

func (e *NotRegisteredError) Is(target error) bool {
	return target == ErrNotRegistered
}
