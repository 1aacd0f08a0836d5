// Package apierr turns failures from any layer into one tagged value and
// renders that value as a message a user can act on.
package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"github.com/valyala/fasthttp"
)

// Kind tags the variant held by a Failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindHTTPStatus
	KindStructured
	KindPlainText
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHTTPStatus:
		return "http_status"
	case KindStructured:
		return "structured"
	case KindPlainText:
		return "plain_text"
	default:
		return "unknown"
	}
}

// Failure is a normalized error. Which fields are meaningful depends on Kind:
//
//	KindTransport   Cause
//	KindHTTPStatus  Status
//	KindStructured  Text, and Status when it came from a response
//	KindPlainText   Text
//	KindUnknown     Cause, possibly nil
type Failure struct {
	Kind   Kind
	Status int
	Text   string
	Cause  error
}

// Transport reports that the other side could not be reached at all.
func Transport(cause error) *Failure {
	return &Failure{Kind: KindTransport, Cause: cause}
}

// HTTPStatus reports a response that carried no explanation beyond its code.
func HTTPStatus(code int) *Failure {
	return &Failure{Kind: KindHTTPStatus, Status: code}
}

// Structured reports a server-supplied message. code may be 0 when unknown.
func Structured(code int, text string) *Failure {
	return &Failure{Kind: KindStructured, Status: code, Text: text}
}

// PlainText wraps a bare message.
func PlainText(text string) *Failure {
	return &Failure{Kind: KindPlainText, Text: text}
}

// Unknown wraps something that has no usable message.
func Unknown(cause error) *Failure {
	return &Failure{Kind: KindUnknown, Cause: cause}
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindTransport:
		if f.Cause != nil {
			return "transport: " + f.Cause.Error()
		}
		return "transport failure"
	case KindHTTPStatus:
		return statusLine(f.Status)
	case KindStructured:
		if f.Status != 0 {
			return fmt.Sprintf("%d: %s", f.Status, f.Text)
		}
		return f.Text
	case KindPlainText:
		return f.Text
	default:
		if f.Cause != nil {
			return f.Cause.Error()
		}
		return genericMessage
	}
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// IsAuth reports whether the failure means the session is no longer valid.
func (f *Failure) IsAuth() bool {
	return f != nil && (f.Status == http.StatusUnauthorized || f.Status == http.StatusForbidden)
}

// Normalize converts any error to a Failure. Failures pass through unchanged
// and nil stays nil.
func Normalize(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if isTransport(err) {
		return Transport(err)
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return &Failure{Kind: KindPlainText, Text: msg, Cause: err}
	}
	return Unknown(err)
}

func isTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, fasthttp.ErrDialTimeout) ||
		errors.Is(err, fasthttp.ErrConnectionClosed) ||
		errors.Is(err, fasthttp.ErrNoFreeConns) ||
		errors.Is(err, fasthttp.ErrTimeout) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

type envelope struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// FromResponse builds a Failure from a non-2xx response. A string detail wins
// over message; provider envelopes of the form {"error":{"message":...}} are
// understood too. Without any text the result is an HTTPStatus failure.
func FromResponse(status int, body []byte) *Failure {
	var env envelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		if text := detailText(env.Detail); text != "" {
			return Structured(status, text)
		}
		if text := strings.TrimSpace(env.Message); text != "" {
			return Structured(status, text)
		}
		if env.Error != nil {
			if text := strings.TrimSpace(env.Error.Message); text != "" {
				return Structured(status, text)
			}
		}
	}
	return HTTPStatus(status)
}

// detailText accepts a string detail. Validation errors with list-shaped
// detail yield "".
func detailText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func statusLine(code int) string {
	return fmt.Sprintf("HTTP %d: %s", code, http.StatusText(code))
}
