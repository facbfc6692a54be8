package vectorstackai

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies every failure reported by the VectorStack AI service. The string value of each kind is the
// "type" name the service uses in its error envelope.
//
// An ErrorKind is itself an error, so callers can branch on the kind with errors.Is:
//
//	if errors.Is(err, vectorstackai.KindRateLimit) {
//	  // back off
//	}
type ErrorKind string

const (
	KindAPIError            ErrorKind = "VectorStackAIError"
	KindAuthentication      ErrorKind = "AuthenticationError"
	KindRateLimit           ErrorKind = "RateLimitError"
	KindServiceUnavailable  ErrorKind = "ServiceUnavailableError"
	KindMethodNotAllowed    ErrorKind = "MethodNotAllowedError"
	KindTimeout             ErrorKind = "Timeout"
	KindBadRequest          ErrorKind = "BadRequestError"
	KindNotFound            ErrorKind = "NotFoundError"
	KindResourceBusy        ErrorKind = "ResourceBusyError"
	KindInternalServerError ErrorKind = "InternalServerError"
)

// errorKinds is the closed set of "type" values accepted from the service.
var errorKinds = map[string]ErrorKind{
	string(KindAPIError):            KindAPIError,
	string(KindAuthentication):      KindAuthentication,
	string(KindRateLimit):           KindRateLimit,
	string(KindServiceUnavailable):  KindServiceUnavailable,
	string(KindMethodNotAllowed):    KindMethodNotAllowed,
	string(KindTimeout):             KindTimeout,
	string(KindBadRequest):          KindBadRequest,
	string(KindNotFound):            KindNotFound,
	string(KindResourceBusy):        KindResourceBusy,
	string(KindInternalServerError): KindInternalServerError,
}

// lookupErrorKind maps a wire "type" to its kind, defaulting to KindAPIError.
func lookupErrorKind(wireType string) ErrorKind {
	if kind, ok := errorKinds[wireType]; ok {
		return kind
	}
	return KindAPIError
}

func (k ErrorKind) Error() string {
	return string(k)
}

// Retryable reports whether a failure of this kind is transient.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimit, KindServiceUnavailable, KindTimeout:
		return true
	}
	return false
}

// APIError is returned by every operation that fails after (or while) talking to the service.
//
// Fields:
//   - Kind: The ErrorKind of the failure.
//   - Message: The human-readable message, without the request id prefix.
//   - HTTPStatus: The HTTP status reported for the failure, or 0 when the request never got a response.
//   - Code: An optional machine-readable error code.
//   - RequestID: The value of the "request-id" response header, when present.
//   - HTTPBody: The raw response body, kept for debugging.
//   - JSONBody: The structured body attached to the service error envelope, if any.
//   - Headers: The response headers, when a response was received.
//   - Cause: The underlying network error for failures that never produced a response.
type APIError struct {
	Kind       ErrorKind
	Message    string
	HTTPStatus int
	Code       string
	RequestID  string
	HTTPBody   string
	JSONBody   map[string]any
	Headers    http.Header
	Cause      error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "<empty message>"
	}
	if e.RequestID != "" {
		return fmt.Sprintf("Request %s: %s", e.RequestID, msg)
	}
	return msg
}

// UserMessage returns the message reported by the service, without the request id prefix.
func (e *APIError) UserMessage() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// Is matches an ErrorKind target against the kind of e.
func (e *APIError) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}

// ErrorObject returns a map view of the error, keyed the same way as the service error envelope. Absent optional
// fields are omitted.
func (e *APIError) ErrorObject() map[string]any {
	obj := map[string]any{
		"type":    string(e.Kind),
		"message": e.Message,
	}
	if e.HTTPStatus != 0 {
		obj["http_status"] = e.HTTPStatus
	}
	if e.Code != "" {
		obj["code"] = e.Code
	}
	if e.RequestID != "" {
		obj["request_id"] = e.RequestID
	}
	if e.HTTPBody != "" {
		obj["http_body"] = e.HTTPBody
	}
	if e.JSONBody != nil {
		obj["json_body"] = e.JSONBody
	}
	return obj
}

// KindOf returns the ErrorKind carried by err, or "" when err is not an *APIError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// ErrInvalidArgument matches every *InvalidArgumentError via errors.Is.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNotConfirmed is returned by destructive operations whose confirmation callback declined.
var ErrNotConfirmed = errors.New("operation not confirmed")

// InvalidArgumentError reports a request rejected locally, before any network I/O.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid argument: %s", e.Reason)
	}
	return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Reason)
}

func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

func invalidArgument(field string, format string, args ...any) error {
	return &InvalidArgumentError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
