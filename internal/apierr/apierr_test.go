package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	existing := Structured(404, "Todo not found")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"failure passes through", existing, KindStructured},
		{"wrapped failure passes through", fmt.Errorf("delete: %w", existing), KindStructured},
		{"deadline is transport", context.DeadlineExceeded, KindTransport},
		{"dial error is transport", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, KindTransport},
		{"plain error", errors.New("boom"), KindPlainText},
		{"blank error", errors.New("  "), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
		})
	}

	assert.Nil(t, Normalize(nil))
	assert.Same(t, existing, Normalize(fmt.Errorf("x: %w", existing)))
}

func TestFromResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   *Failure
	}{
		{"detail envelope", 404, `{"detail":"Todo not found"}`, Structured(404, "Todo not found")},
		{"detail wins over message", 400, `{"detail":"d","message":"m"}`, Structured(400, "d")},
		{"message without detail", 400, `{"message":"m"}`, Structured(400, "m")},
		{"message beside list detail", 422, `{"detail":[{"loc":["body"]}],"message":"m"}`, Structured(422, "m")},
		{"provider envelope", 401, `{"error":{"message":"Incorrect API key provided"}}`, Structured(401, "Incorrect API key provided")},
		{"list detail", 422, `{"detail":[{"loc":["body","title"]}]}`, HTTPStatus(422)},
		{"empty body", 500, ``, HTTPStatus(500)},
		{"html body", 502, `<html>bad gateway</html>`, HTTPStatus(502)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromResponse(tt.status, []byte(tt.body)))
		})
	}
}

func TestExtractMessage(t *testing.T) {
	assert.Equal(t, "Not found", ExtractMessage(Structured(0, "Not found")))
	assert.Equal(t, "plain", ExtractMessage(PlainText("plain")))
	assert.Equal(t, "HTTP 404: Not Found", ExtractMessage(HTTPStatus(404)))
	assert.Equal(t, "dial tcp: refused", ExtractMessage(Transport(errors.New("dial tcp: refused"))))
	assert.Equal(t, GenericMessage, ExtractMessage(Unknown(nil)))
	assert.Equal(t, GenericMessage, ExtractMessage(PlainText("")))
	assert.Equal(t, GenericMessage, ExtractMessage(nil))
}

func TestClassifyNetworkShape(t *testing.T) {
	tests := []struct {
		name   string
		f      *Failure
		want   string
		wantOK bool
	}{
		{"transport", Transport(errors.New("refused")), transportMessage, true},
		{"401", HTTPStatus(http.StatusUnauthorized), "Your session has expired. Please log in again.", true},
		{"403", HTTPStatus(http.StatusForbidden), "You do not have permission to perform this action.", true},
		{"404", HTTPStatus(http.StatusNotFound), "The requested resource was not found.", true},
		{"500", HTTPStatus(http.StatusInternalServerError), "An internal server error occurred. Please try again later.", true},
		{"418 has no shape", HTTPStatus(http.StatusTeapot), "", false},
		{"structured 404 keeps server text", Structured(404, "Todo not found"), "", false},
		{"plain text mentioning 401", PlainText("got 401"), "", false},
		{"unknown", Unknown(nil), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ClassifyNetworkShape(tt.f)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFriendlyMessage(t *testing.T) {
	tests := []struct {
		name string
		f    *Failure
		op   Operation
		want string
	}{
		{
			name: "detail annotates fetch message",
			f:    Structured(0, "Not found"),
			op:   OpFetchTodos,
			want: "Failed to load todos. Please refresh the page. (Not found)",
		},
		{
			name: "detail annotates delete message",
			f:    Structured(0, "Not found"),
			op:   OpDeleteTodo,
			want: "Failed to delete todo. Please try again. (Not found)",
		},
		{
			name: "detail equal to base is not duplicated",
			f:    PlainText("Failed to delete todo. Please try again."),
			op:   OpDeleteTodo,
			want: "Failed to delete todo. Please try again.",
		},
		{
			name: "transport ignores operation table",
			f:    Transport(errors.New("dial tcp 127.0.0.1:8000: connect: connection refused")),
			op:   OpCreateTodo,
			want: transportMessage,
		},
		{
			name: "bare 401 gives session message",
			f:    HTTPStatus(401),
			op:   OpFetchTodos,
			want: "Your session has expired. Please log in again.",
		},
		{
			name: "login rejection keeps server wording",
			f:    Structured(401, "Invalid email or password"),
			op:   OpLogin,
			want: "Failed to log in. Please check your credentials and try again. (Invalid email or password)",
		},
		{
			name: "status line is not appended",
			f:    HTTPStatus(409),
			op:   OpSignup,
			want: "Failed to create account. Please check your information and try again.",
		},
		{
			name: "generic detail is not appended",
			f:    Unknown(nil),
			op:   OpToggleStarred,
			want: "Failed to update todo favorite status. Please try again.",
		},
		{
			name: "object string is not appended",
			f:    PlainText("[object Object]"),
			op:   OpArchiveTodo,
			want: "Failed to archive todo. Please try again.",
		},
		{
			name: "undefined is not appended",
			f:    PlainText("undefined"),
			op:   OpGenerateSubtasks,
			want: "Failed to generate subtasks. Please check your API key and try again.",
		},
		{
			name: "unknown operation uses template",
			f:    PlainText("disk full"),
			op:   Operation("export_data"),
			want: "Failed to export data. Please try again. (disk full)",
		},
		{
			name: "only first separator is replaced",
			f:    Unknown(nil),
			op:   Operation("bulk_update_todos"),
			want: "Failed to bulk update_todos. Please try again.",
		},
		{
			name: "nil failure",
			f:    nil,
			op:   OpLogin,
			want: "Failed to log in. Please check your credentials and try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FriendlyMessage(tt.f, tt.op)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, got)
		})
	}
}

func TestFailureIsAuth(t *testing.T) {
	assert.True(t, HTTPStatus(401).IsAuth())
	assert.True(t, Structured(403, "Access denied").IsAuth())
	assert.False(t, Structured(404, "Todo not found").IsAuth())
	assert.False(t, Transport(nil).IsAuth())

	var f *Failure
	assert.False(t, f.IsAuth())
}
