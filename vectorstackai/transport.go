package vectorstackai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/vectorstack-ai/go-vectorstackai/internal/provider"
)

const (
	clientRequestIDHeader = "X-Client-Request-Id"
	requestIDHeader       = "request-id"
)

type requestIDKey struct{}

// withClientRequestID tags ctx so every attempt of one logical call carries the same id.
func withClientRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func clientRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// transport issues one HTTP round trip against the service and turns the response into raw JSON or an *APIError.
type transport struct {
	baseURL    string
	httpClient *http.Client
	editors    []provider.RequestEditorFn
	timeout    time.Duration
	logger     hclog.Logger
}

// newPooledHTTPClient returns the client used when the caller does not supply one. Its connection pool is shared by
// every call made through one Client.
func newPooledHTTPClient() *http.Client {
	base, ok := http.DefaultTransport.(*http.Transport)
	var pooled *http.Transport
	if ok {
		pooled = base.Clone()
	} else {
		pooled = &http.Transport{Proxy: http.ProxyFromEnvironment}
	}
	pooled.MaxIdleConns = 100
	pooled.MaxIdleConnsPerHost = 10
	pooled.MaxConnsPerHost = 50
	pooled.IdleConnTimeout = 90 * time.Second
	return &http.Client{Transport: pooled}
}

// do sends body as JSON to endpoint and returns the response body. Statuses in okStatuses (200 when empty) count as
// success; anything else is mapped to an *APIError.
func (t *transport) do(ctx context.Context, method, endpoint string, body any, okStatuses ...int) (json.RawMessage, error) {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		payload = bytes.NewReader(encoded)
	}

	callerCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	url := t.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if id := clientRequestID(ctx); id != "" {
		req.Header.Set(clientRequestIDHeader, id)
	}
	if err := provider.Apply(ctx, req, t.editors); err != nil {
		return nil, fmt.Errorf("failed to apply request headers: %w", err)
	}

	res, err := t.httpClient.Do(req)
	if err != nil {
		if callerErr := callerCtx.Err(); callerErr != nil {
			return nil, callerErr
		}
		return nil, networkError(method, url, err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, networkError(method, url, err)
	}

	if !isSuccess(res.StatusCode, okStatuses) {
		return nil, mapErrorResponse(res, resBody)
	}

	if !json.Valid(resBody) {
		t.logger.Warn("response body is not valid JSON", "method", method, "endpoint", endpoint, "status", res.StatusCode)
		synthetic, _ := json.Marshal(map[string]string{"raw_response": string(resBody)})
		return synthetic, nil
	}
	return resBody, nil
}

func isSuccess(status int, okStatuses []int) bool {
	if len(okStatuses) == 0 {
		return status == http.StatusOK
	}
	for _, ok := range okStatuses {
		if status == ok {
			return true
		}
	}
	return false
}

// networkError translates a failure that produced no usable response.
func networkError(method, url string, err error) *APIError {
	if isTimeout(err) {
		return &APIError{
			Kind:    KindTimeout,
			Message: fmt.Sprintf("request %s %s timed out", method, url),
			Cause:   err,
		}
	}
	return &APIError{
		Kind:    KindInternalServerError,
		Message: fmt.Sprintf("request %s %s failed: %v", method, url, err),
		Cause:   err,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// errorEnvelope keeps the fields of "error" raw so one oddly typed field cannot hide the rest.
type errorEnvelope struct {
	Error map[string]json.RawMessage `json:"error"`
}

// mapErrorResponse converts a non-success response into exactly one *APIError. Bodies carrying the service error
// envelope keep their declared type; anything else (proxy pages, plain text) is classified by status code.
func mapErrorResponse(res *http.Response, body []byte) *APIError {
	requestID := res.Header.Get(requestIDHeader)

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		e := envelope.Error
		return &APIError{
			Kind:       lookupErrorKind(stringField(e["type"])),
			Message:    stringField(e["message"]),
			HTTPStatus: statusField(e["http_status"], res.StatusCode),
			Code:       stringField(e["code"]),
			RequestID:  requestID,
			HTTPBody:   stringField(e["http_body"]),
			JSONBody:   objectField(e["json_body"]),
			Headers:    res.Header,
		}
	}

	text := strings.ToValidUTF8(string(body), "\uFFFD")
	apiErr := &APIError{
		Message:    text,
		HTTPStatus: res.StatusCode,
		RequestID:  requestID,
		HTTPBody:   text,
		JSONBody:   map[string]any{},
		Headers:    res.Header,
	}
	switch res.StatusCode {
	case http.StatusNotFound, http.StatusBadGateway:
		apiErr.Kind = KindServiceUnavailable
	case http.StatusMethodNotAllowed:
		apiErr.Kind = KindMethodNotAllowed
	case http.StatusPaymentRequired:
		apiErr.Kind = KindBadRequest
	default:
		apiErr.Kind = KindAPIError
		apiErr.Message = "Unexpected error: " + text
	}
	return apiErr
}

// stringField returns a JSON string as is and any other non-null value as its compact JSON text.
func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	if compact.String() == "null" {
		return ""
	}
	return compact.String()
}

// statusField accepts a number or a numeric string, falling back when neither yields a positive status.
func statusField(raw json.RawMessage, fallback int) int {
	if len(raw) == 0 {
		return fallback
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
		return int(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func objectField(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}
