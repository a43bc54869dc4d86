package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// maxDiagnostic bounds how much of a provider body is kept on an error
const maxDiagnostic = 512

// FromStatus classifies a non-2xx HTTP response.
func FromStatus(provider, op string, status int, body []byte) *Error {
	var kind Kind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		kind = KindNetwork
	case status >= 500:
		kind = KindNetwork
	case status >= 400:
		kind = KindProviderRejected
	default:
		kind = KindInternal
	}

	return &Error{
		Kind:       kind,
		Message:    fmt.Sprintf("provider responded with HTTP %d", status),
		Provider:   provider,
		Op:         op,
		Status:     status,
		Diagnostic: truncate(string(body)),
		Stack:      captureStack(2),
	}
}

// FromTransport classifies an error returned by the HTTP round trip itself.
func FromTransport(provider, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	msg := "transport failure"
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		msg = "request timed out"
	case errors.Is(err, context.Canceled):
		msg = "request canceled"
	case errors.As(err, &netErr) && netErr.Timeout():
		msg = "request timed out"
	case errors.As(err, &urlErr):
		msg = "connection failed"
	}

	return &Error{
		Kind:       KindNetwork,
		Message:    msg,
		Provider:   provider,
		Op:         op,
		Diagnostic: truncate(err.Error()),
		Cause:      err,
		Stack:      captureStack(2),
	}
}

// FromDecode classifies a 2xx response whose body could not be decoded.
func FromDecode(provider, op string, body []byte, err error) *Error {
	return &Error{
		Kind:       KindProviderRejected,
		Message:    "malformed response body",
		Provider:   provider,
		Op:         op,
		Diagnostic: truncate(string(body)),
		Cause:      err,
		Stack:      captureStack(2),
	}
}

// FromBody classifies an error envelope a provider returned with HTTP 200.
// code is the provider's own error code, possibly empty.
func FromBody(provider, op, code, message string) *Error {
	kind := KindProviderRejected
	lc := strings.ToLower(code + " " + message)
	switch {
	case strings.Contains(lc, "unauthor"), strings.Contains(lc, "invalid_token"),
		strings.Contains(lc, "invalid oauth"), strings.Contains(lc, "authentication"),
		strings.Contains(lc, "invalid api key"):
		kind = KindAuth
	case strings.Contains(lc, "rate limit"), strings.Contains(lc, "too many requests"),
		strings.Contains(lc, "temporarily unavailable"):
		kind = KindNetwork
	}

	diag := message
	if code != "" {
		diag = code + ": " + message
	}
	return &Error{
		Kind:       kind,
		Message:    "provider reported an error",
		Provider:   provider,
		Op:         op,
		Diagnostic: truncate(diag),
		Stack:      captureStack(2),
	}
}

// FromFault classifies an XML-RPC fault.
func FromFault(provider, op string, code int, faultString string) *Error {
	kind := KindProviderRejected
	switch {
	case code == 2 || code == 3,
		strings.Contains(faultString, "InvalidKey"),
		strings.Contains(faultString, "NoKey"):
		kind = KindAuth
	case strings.Contains(faultString, "TooManyRequests"),
		strings.Contains(faultString, "ServiceUnavailable"):
		kind = KindNetwork
	}

	return &Error{
		Kind:       kind,
		Message:    fmt.Sprintf("xml-rpc fault %d", code),
		Provider:   provider,
		Op:         op,
		FaultCode:  code,
		Diagnostic: truncate(faultString),
		Stack:      captureStack(2),
	}
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxDiagnostic {
		return s
	}
	return s[:maxDiagnostic] + "..."
}
