// Package apierror provides the JSON error body written by every component
// of the price service, with stable machine-readable error codes.
package apierror

import (
	"encoding/json"
	"net/http"
)

// ErrorCode is a machine-readable error classification string.
type ErrorCode string

// Error codes are part of the public response contract. Do not rename or
// remove existing codes.
const (
	MethodNotAllowed  ErrorCode = "PRICE_METHOD_NOT_ALLOWED"
	RateLimitExceeded ErrorCode = "PRICE_RATE_LIMIT_EXCEEDED"
	InternalError     ErrorCode = "PRICE_INTERNAL_ERROR"
	Forbidden         ErrorCode = "PRICE_FORBIDDEN"
	AuthMissingToken  ErrorCode = "PRICE_AUTH_MISSING_TOKEN"
	AuthInvalidToken  ErrorCode = "PRICE_AUTH_INVALID_TOKEN"
	InvalidConfig     ErrorCode = "PRICE_INVALID_CONFIG"
)

// Messages for the pre-serialized bodies below.
const (
	MsgMethodNotAllowed = "only GET and OPTIONS are supported"
	MsgRateLimited      = "rate limit exceeded, retry later"
	MsgInternal         = "an unexpected error occurred"
	MsgMissingToken     = "missing or malformed Authorization header"
)

// ErrorResponse is the standardized error body.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type preKey struct {
	status  int
	code    ErrorCode
	message string
}

// Bodies for the common errors, built once without the closing brace so a
// request ID can be appended without re-encoding.
var preSerialized = map[preKey][]byte{}

func init() {
	for _, k := range []preKey{
		{http.StatusMethodNotAllowed, MethodNotAllowed, MsgMethodNotAllowed},
		{http.StatusTooManyRequests, RateLimitExceeded, MsgRateLimited},
		{http.StatusInternalServerError, InternalError, MsgInternal},
		{http.StatusUnauthorized, AuthMissingToken, MsgMissingToken},
	} {
		b := mustMarshal(ErrorResponse{
			Error:     http.StatusText(k.status),
			ErrorCode: string(k.code),
			Message:   k.message,
		})
		preSerialized[k] = b[:len(b)-2] // drop "}\n"
	}
}

func mustMarshal(v ErrorResponse) []byte {
	b, _ := json.Marshal(v)
	return append(b, '\n')
}

// WriteJSON writes a structured JSON error response. The X-Request-ID of r is
// echoed in the body when present; r may be nil. Headers already set on w
// (Allow, CORS) are preserved.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, code ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	requestID := ""
	if r != nil {
		requestID = r.Header.Get("X-Request-ID")
	}

	if prefix, ok := preSerialized[preKey{status, code, message}]; ok {
		w.Write(withRequestID(prefix, requestID)) //nolint:errcheck
		return
	}

	w.Write(mustMarshal(ErrorResponse{ //nolint:errcheck
		Error:     http.StatusText(status),
		ErrorCode: string(code),
		Message:   message,
		RequestID: requestID,
	}))
}

// withRequestID closes a pre-serialized prefix, adding request_id when set.
func withRequestID(prefix []byte, requestID string) []byte {
	body := make([]byte, 0, len(prefix)+len(requestID)+20)
	body = append(body, prefix...)
	if requestID != "" {
		id, _ := json.Marshal(requestID)
		body = append(body, `,"request_id":`...)
		body = append(body, id...)
	}
	return append(body, '}', '\n')
}
