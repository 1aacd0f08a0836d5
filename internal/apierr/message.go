package apierr

import (
	"net/http"
	"strings"
)

// Operation identifies the user action that failed.
type Operation string

const (
	OpLogin            Operation = "login"
	OpSignup           Operation = "signup"
	OpCreateTodo       Operation = "create_todo"
	OpUpdateTodo       Operation = "update_todo"
	OpDeleteTodo       Operation = "delete_todo"
	OpFetchTodos       Operation = "fetch_todos"
	OpToggleComplete   Operation = "toggle_complete"
	OpToggleStarred    Operation = "toggle_starred"
	OpArchiveTodo      Operation = "archive_todo"
	OpGenerateSubtasks Operation = "generate_subtasks"
)

const (
	genericMessage   = "An unexpected error occurred."
	transportMessage = "Unable to connect to the server. Please check your internet connection and try again."
	objectString     = "[object Object]"
)

// GenericMessage is the fallback text used when a failure carries nothing usable.
const GenericMessage = genericMessage

// operationMessages is a closed table. Operations missing here get the
// templated wording from operationMessage.
var operationMessages = map[Operation]string{
	OpLogin:            "Failed to log in. Please check your credentials and try again.",
	OpSignup:           "Failed to create account. Please check your information and try again.",
	OpCreateTodo:       "Failed to create todo. Please try again.",
	OpUpdateTodo:       "Failed to update todo. Please try again.",
	OpDeleteTodo:       "Failed to delete todo. Please try again.",
	OpFetchTodos:       "Failed to load todos. Please refresh the page.",
	OpToggleComplete:   "Failed to update todo status. Please try again.",
	OpToggleStarred:    "Failed to update todo favorite status. Please try again.",
	OpArchiveTodo:      "Failed to archive todo. Please try again.",
	OpGenerateSubtasks: "Failed to generate subtasks. Please check your API key and try again.",
}

var statusMessages = map[int]string{
	http.StatusUnauthorized:        "Your session has expired. Please log in again.",
	http.StatusForbidden:           "You do not have permission to perform this action.",
	http.StatusNotFound:            "The requested resource was not found.",
	http.StatusInternalServerError: "An internal server error occurred. Please try again later.",
}

// ExtractMessage returns the most specific text a failure carries, or the
// generic fallback.
func ExtractMessage(f *Failure) string {
	if f == nil {
		return genericMessage
	}
	var msg string
	switch f.Kind {
	case KindStructured, KindPlainText:
		msg = f.Text
	case KindHTTPStatus:
		msg = statusLine(f.Status)
	case KindTransport:
		if f.Cause != nil {
			msg = f.Cause.Error()
		}
	}
	if msg = strings.TrimSpace(msg); msg == "" {
		return genericMessage
	}
	return msg
}

// ClassifyNetworkShape returns canned wording for transport failures and for
// bare 401, 403, 404 and 500 responses. Failures carrying server-supplied
// text are never network-shaped.
func ClassifyNetworkShape(f *Failure) (string, bool) {
	if f == nil {
		return "", false
	}
	switch f.Kind {
	case KindTransport:
		return transportMessage, true
	case KindHTTPStatus:
		msg, ok := statusMessages[f.Status]
		return msg, ok
	}
	return "", false
}

// FriendlyMessage renders a failure for the user. Network-shaped failures win
// over the per-operation wording; otherwise the operation message is used and
// annotated with the failure's own text when that adds information.
func FriendlyMessage(f *Failure, op Operation) string {
	base := ExtractMessage(f)
	if network, ok := ClassifyNetworkShape(f); ok && network != base && network != genericMessage {
		return network
	}

	msg := operationMessage(op)
	if showDetail(base, msg) {
		return msg + " (" + base + ")"
	}
	return msg
}

func operationMessage(op Operation) string {
	if msg, ok := operationMessages[op]; ok {
		return msg
	}
	return "Failed to " + strings.Replace(string(op), "_", " ", 1) + ". Please try again."
}

func showDetail(detail, base string) bool {
	return detail != "" &&
		detail != genericMessage &&
		detail != objectString &&
		detail != base &&
		!strings.Contains(detail, "HTTP") &&
		detail != "undefined"
}
