package errors

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"
)

// maxRawBodyLen caps how much of a non-JSON error body is surfaced to the user.
const maxRawBodyLen = 500

// truncationMarker is appended when a raw error body is cut off.
const truncationMarker = " [...]"

// Delimiters the gateway wraps server-side stack traces in.
const (
	stackPrefix = "<Exception on server side:"
	stackSuffix = "End of exception on server side>"
)

// errorBody is the JSON shape of a gateway error response.
type errorBody struct {
	Errors []string `json:"errors"`
}

// ClassifyResponse turns a non-2xx gateway response into a GatewayError.
//
// The gateway reports failures as {"errors": [shortMessage, stackTrace?]}. The
// stack trace, when present, is wrapped in exception delimiters that are
// stripped, and the last (most specific) "Caused by:" line is appended to the
// short message so the root cause is visible inline. Bodies that are not JSON
// are truncated into the message verbatim.
func ClassifyResponse(status int, body []byte) *GatewayError {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		message := strings.TrimSpace(parsed.Errors[0])
		var stack string
		if len(parsed.Errors) > 1 {
			stack = stripStackDelimiters(parsed.Errors[1])
			if cause := lastCausedBy(stack); cause != "" {
				message = message + ": " + cause
			}
		}
		gwErr := New(codeForStatus(status), message).WithDetail("status", status)
		if stack != "" {
			gwErr = gwErr.WithDetail("stack", stack)
		}
		return gwErr
	}

	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(status)
	}
	if len(message) > maxRawBodyLen {
		// Back up to a rune boundary so the cut never splits a multi-byte
		// character.
		cut := maxRawBodyLen
		for cut > 0 && !utf8.RuneStart(message[cut]) {
			cut--
		}
		message = message[:cut] + truncationMarker
	}
	return New(codeForStatus(status), message).WithDetail("status", status)
}

// codeForStatus maps an HTTP status to an error code.
func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeAlreadyExists
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return CodeDeadlineExceeded
	default:
		return CodeGateway
	}
}

// stripStackDelimiters removes the gateway's exception wrapper from a stack trace.
func stripStackDelimiters(stack string) string {
	stack = strings.TrimSpace(stack)
	stack = strings.TrimPrefix(stack, stackPrefix)
	stack = strings.TrimSuffix(stack, stackSuffix)
	return strings.TrimSpace(stack)
}

// lastCausedBy returns the message of the last "Caused by:" line in a stack
// trace. The last one is the most specific; the gateway nests wrapped
// exceptions outermost-first.
func lastCausedBy(stack string) string {
	var cause string
	for _, line := range strings.Split(stack, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "Caused by:"); ok {
			cause = strings.TrimSpace(rest)
		}
	}
	return cause
}

// IsNoResourceAvailable reports whether an error indicates the cluster has no
// free slots. Retrying cannot help; the statement must fail immediately.
func IsNoResourceAvailable(err error) bool {
	if err == nil {
		return false
	}
	if IsCode(err, CodeResourceExhausted) {
		return true
	}
	return strings.Contains(err.Error(), "NoResourceAvailableException")
}

// IsAlreadyExists reports whether an error indicates the target object already
// exists. The user caused this, so it is rendered as plain text rather than a
// stack trace, and polling stops on first occurrence.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	if IsCode(err, CodeAlreadyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "TableAlreadyExistException") ||
		strings.Contains(msg, "table (or view)")
}

// IsFatalPollError reports whether a polling error must abort the poll loop
// immediately instead of counting toward the consecutive-failure threshold.
func IsFatalPollError(err error) bool {
	return IsNoResourceAvailable(err) || IsAlreadyExists(err)
}
