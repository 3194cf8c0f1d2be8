package lookup

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"

	"google.golang.org/genai"
)

var statusCodeRe = regexp.MustCompile(`status(?:\s+code)?[:=\s]+(\d{3})`)

type FailureClass int

const (
	FailureUnknown FailureClass = iota
	FailureTimeout
	FailureRateLimit
	FailureServer
	FailureClient
	FailureAuth
)

func (c FailureClass) String() string {
	switch c {
	case FailureTimeout:
		return "timeout"
	case FailureRateLimit:
		return "rate_limit"
	case FailureServer:
		return "server"
	case FailureClient:
		return "client"
	case FailureAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Error is a transport or credential failure talking to the provider.
// Malformed model output is never reported as an Error.
type Error struct {
	Class FailureClass
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "lookup failed: " + e.Class.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Transient() bool {
	return e.Class == FailureTimeout || e.Class == FailureRateLimit || e.Class == FailureServer
}

func wrapTransport(err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	return &Error{Class: classifyTransportError(err), Err: err}
}

// IsAuthFailure reports whether err means the credential is invalid, expired
// or forbidden.
func IsAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	var le *Error
	if errors.As(err, &le) && le.Class == FailureAuth {
		return true
	}
	msg := err.Error()
	if strings.Contains(msg, "API key") || strings.Contains(msg, "403") {
		return true
	}
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "api_key_invalid") ||
		strings.Contains(lower, "permission_denied") ||
		strings.Contains(lower, "unauthenticated")
}

func classifyStatus(code int) FailureClass {
	switch {
	case code == 401 || code == 403:
		return FailureAuth
	case code == 408:
		return FailureTimeout
	case code == 429:
		return FailureRateLimit
	case code >= 500:
		return FailureServer
	case code >= 400:
		return FailureClient
	default:
		return FailureUnknown
	}
}

func classifyTransportError(err error) FailureClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return FailureTimeout
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return classifyStatus(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && apiErrPtr.Code != 0 {
		return classifyStatus(apiErrPtr.Code)
	}
	msg := strings.ToLower(err.Error())
	if m := statusCodeRe.FindStringSubmatch(msg); len(m) == 2 {
		switch {
		case m[1] == "401" || m[1] == "403":
			return FailureAuth
		case m[1] == "429":
			return FailureRateLimit
		case strings.HasPrefix(m[1], "5"):
			return FailureServer
		case strings.HasPrefix(m[1], "4"):
			return FailureClient
		}
	}
	switch {
	case strings.Contains(msg, "api key"), strings.Contains(msg, "api_key_invalid"), strings.Contains(msg, "permission_denied"), strings.Contains(msg, "403"):
		return FailureAuth
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "resource_exhausted"), strings.Contains(msg, "429"):
		return FailureRateLimit
	case strings.Contains(msg, "server error"), strings.Contains(msg, "unavailable"):
		return FailureServer
	default:
		return FailureUnknown
	}
}
