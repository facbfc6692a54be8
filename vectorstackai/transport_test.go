package vectorstackai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorstack-ai/go-vectorstackai/internal/mocks"
	"github.com/vectorstack-ai/go-vectorstackai/internal/provider"
)

func newTestTransport(httpClient *http.Client) *transport {
	return &transport{
		baseURL:    "https://api.vectorstack.ai",
		httpClient: httpClient,
		timeout:    time.Second,
		logger:     hclog.NewNullLogger(),
	}
}

func TestTransportReturnsSuccessBodyUnchangedUnit(t *testing.T) {
	tests := []struct {
		name   string
		status int
		ok     []int
		body   string
	}{
		{name: "200", status: http.StatusOK, body: `{"output": {"embeddings": "AAA="}}`},
		{name: "202 accepted", status: http.StatusAccepted, ok: []int{http.StatusOK, http.StatusAccepted}, body: `{"message": "accepted"}`},
		{name: "array body", status: http.StatusOK, body: `[{"index_name": "a"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpClient, _ := mocks.CreateSequenceClient(mocks.Step{Status: tt.status, Body: tt.body})
			raw, err := newTestTransport(httpClient).do(context.Background(), http.MethodPost, "/x", map[string]string{"a": "b"}, tt.ok...)
			require.NoError(t, err)
			assert.JSONEq(t, tt.body, string(raw))
		})
	}
}

func TestTransportNonJSONSuccessReturnsSyntheticPayloadUnit(t *testing.T) {
	httpClient, _ := mocks.CreateSequenceClient(mocks.Step{Status: http.StatusOK, Body: "<html>ok</html>"})
	raw, err := newTestTransport(httpClient).do(context.Background(), http.MethodGet, "/list_indexes", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"raw_response": "<html>ok</html>"}`, string(raw))
}

func TestTransportRequestShapeUnit(t *testing.T) {
	httpClient, transport := mocks.CreateSequenceClient(mocks.Step{Status: http.StatusOK, Body: `{}`})
	tr := newTestTransport(httpClient)
	tr.editors = []provider.RequestEditorFn{provider.NewHeaderProvider("X-Test", "yes").Intercept}

	ctx := withClientRequestID(context.Background(), "call-1")
	_, err := tr.do(ctx, http.MethodDelete, "/vectors/delete", deleteVectorsPayload{IndexName: "idx", DeleteVectorIds: []string{"a"}})
	require.NoError(t, err)

	require.Equal(t, 1, transport.Calls())
	req := transport.Requests[0]
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "https://api.vectorstack.ai/vectors/delete", req.URL.String())
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.Equal(t, "call-1", req.Header.Get(clientRequestIDHeader))
	assert.Equal(t, "yes", req.Header.Get("X-Test"))
	assert.JSONEq(t, `{"index_name": "idx", "delete_vector_ids": ["a"]}`, string(transport.Bodies[0]))
}

func TestTransportNilBodySendsNoPayloadUnit(t *testing.T) {
	httpClient, transport := mocks.CreateSequenceClient(mocks.Step{Status: http.StatusOK, Body: `[]`})
	_, err := newTestTransport(httpClient).do(context.Background(), http.MethodGet, "/list_indexes", nil)
	require.NoError(t, err)
	assert.Empty(t, transport.Bodies[0])
}

func TestMapErrorResponseServiceEnvelopeUnit(t *testing.T) {
	tests := []struct {
		wireType string
		expected ErrorKind
	}{
		{"AuthenticationError", KindAuthentication},
		{"RateLimitError", KindRateLimit},
		{"ServiceUnavailableError", KindServiceUnavailable},
		{"MethodNotAllowedError", KindMethodNotAllowed},
		{"Timeout", KindTimeout},
		{"BadRequestError", KindBadRequest},
		{"NotFoundError", KindNotFound},
		{"ResourceBusyError", KindResourceBusy},
		{"InternalServerError", KindInternalServerError},
		{"VectorStackAIError", KindAPIError},
		{"SomeFutureError", KindAPIError},
	}

	for _, tt := range tests {
		t.Run(tt.wireType, func(t *testing.T) {
			body := `{"error": {"type": "` + tt.wireType + `", "message": "boom", "http_status": 418, "code": "c1",
				"http_body": "raw", "json_body": {"detail": "x"}}}`
			res := mocks.NewResponse(http.StatusTeapot, body)
			res.Header.Set("request-id", "req_42")

			apiErr := mapErrorResponse(res, []byte(body))
			assert.Equal(t, tt.expected, apiErr.Kind)
			assert.Equal(t, "boom", apiErr.Message)
			assert.Equal(t, 418, apiErr.HTTPStatus)
			assert.Equal(t, "c1", apiErr.Code)
			assert.Equal(t, "req_42", apiErr.RequestID)
			assert.Equal(t, "raw", apiErr.HTTPBody)
			assert.Equal(t, map[string]any{"detail": "x"}, apiErr.JSONBody)
			assert.Equal(t, "Request req_42: boom", apiErr.Error())
		})
	}
}

func TestMapErrorResponseEnvelopeToleratesFieldTypesUnit(t *testing.T) {
	tests := []struct {
		name             string
		fields           string
		responseStatus   int
		expectedStatus   int
		expectedCode     string
		expectedHTTPBody string
		expectedJSONBody map[string]any
	}{
		{
			name:           "numeric code",
			responseStatus: http.StatusTooManyRequests,
			fields:         `"code": 429`,
			expectedStatus: http.StatusTooManyRequests,
			expectedCode:   "429",
		},
		{
			name:             "object http_body",
			responseStatus:   http.StatusTooManyRequests,
			fields:           `"http_body": {"detail": "slow down"}`,
			expectedStatus:   http.StatusTooManyRequests,
			expectedHTTPBody: `{"detail":"slow down"}`,
		},
		{
			name:           "numeric string http_status",
			responseStatus: http.StatusServiceUnavailable,
			fields:         `"http_status": "429"`,
			expectedStatus: http.StatusTooManyRequests,
		},
		{
			name:           "unparseable http_status",
			responseStatus: http.StatusServiceUnavailable,
			fields:         `"http_status": "soon"`,
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "list json_body",
			responseStatus: http.StatusServiceUnavailable,
			fields:         `"json_body": ["a", "b"]`,
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "null fields",
			responseStatus: http.StatusServiceUnavailable,
			fields:         `"code": null, "http_body": null, "json_body": null, "http_status": null`,
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"error": {"type": "RateLimitError", "message": "slow down", ` + tt.fields + `}}`
			apiErr := mapErrorResponse(mocks.NewResponse(tt.responseStatus, body), []byte(body))
			assert.Equal(t, KindRateLimit, apiErr.Kind, "a typed envelope keeps its kind whatever its other fields hold")
			assert.Equal(t, "slow down", apiErr.Message)
			assert.Equal(t, tt.expectedStatus, apiErr.HTTPStatus)
			assert.Equal(t, tt.expectedCode, apiErr.Code)
			assert.Equal(t, tt.expectedHTTPBody, apiErr.HTTPBody)
			assert.Equal(t, tt.expectedJSONBody, apiErr.JSONBody)
			assert.True(t, apiErr.Kind.Retryable())
		})
	}
}

func TestMapErrorResponseNonStringTypeIsGenericUnit(t *testing.T) {
	body := `{"error": {"type": 7, "message": "odd"}}`
	apiErr := mapErrorResponse(mocks.NewResponse(http.StatusBadRequest, body), []byte(body))
	assert.Equal(t, KindAPIError, apiErr.Kind)
	assert.Equal(t, "odd", apiErr.Message, "the envelope message is kept, not the raw body")
}

func TestMapErrorResponseEnvelopeWithoutStatusUsesResponseStatusUnit(t *testing.T) {
	body := `{"error": {"type": "NotFoundError", "message": "no such index"}}`
	apiErr := mapErrorResponse(mocks.NewResponse(http.StatusNotFound, body), []byte(body))
	assert.Equal(t, KindNotFound, apiErr.Kind, "a typed envelope wins over the status fallback table")
	assert.Equal(t, http.StatusNotFound, apiErr.HTTPStatus)
	assert.Empty(t, apiErr.RequestID)
}

func TestMapErrorResponseInfrastructureFallbackUnit(t *testing.T) {
	tests := []struct {
		name            string
		status          int
		body            string
		expectedKind    ErrorKind
		expectedMessage string
	}{
		{"404 html", http.StatusNotFound, "<html>Not Found</html>", KindServiceUnavailable, "<html>Not Found</html>"},
		{"502 gateway", http.StatusBadGateway, "Bad Gateway", KindServiceUnavailable, "Bad Gateway"},
		{"405", http.StatusMethodNotAllowed, "Method Not Allowed", KindMethodNotAllowed, "Method Not Allowed"},
		{"402", http.StatusPaymentRequired, "Payment Required", KindBadRequest, "Payment Required"},
		{"500 text", http.StatusInternalServerError, "oops", KindAPIError, "Unexpected error: oops"},
		{"503 text", http.StatusServiceUnavailable, "down", KindAPIError, "Unexpected error: down"},
		{"json without envelope", http.StatusBadRequest, `{"detail": "bad"}`, KindAPIError, `Unexpected error: {"detail": "bad"}`},
		{"error is a string", http.StatusBadRequest, `{"error": "bad"}`, KindAPIError, `Unexpected error: {"error": "bad"}`},
		{"error is null", http.StatusNotFound, `{"error": null}`, KindServiceUnavailable, `{"error": null}`},
		{"empty body", http.StatusTooManyRequests, "", KindAPIError, "Unexpected error: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := mapErrorResponse(mocks.NewResponse(tt.status, tt.body), []byte(tt.body))
			assert.Equal(t, tt.expectedKind, apiErr.Kind)
			assert.Equal(t, tt.expectedMessage, apiErr.Message)
			assert.Equal(t, tt.status, apiErr.HTTPStatus)
			assert.Equal(t, map[string]any{}, apiErr.JSONBody)
		})
	}
}

func TestMapErrorResponseReplacesInvalidUTF8Unit(t *testing.T) {
	body := []byte{'b', 'a', 'd', 0xff}
	apiErr := mapErrorResponse(mocks.NewResponse(http.StatusBadGateway, string(body)), body)
	assert.Equal(t, "bad\uFFFD", apiErr.Message)
}

func TestTransportMapsNonSuccessStatusUnit(t *testing.T) {
	body := `{"error": {"type": "RateLimitError", "message": "slow down", "http_status": 429}}`
	httpClient, _ := mocks.CreateSequenceClient(mocks.Step{Status: http.StatusTooManyRequests, Body: body})

	_, err := newTestTransport(httpClient).do(context.Background(), http.MethodPost, "/embeddings", struct{}{})
	require.Error(t, err)
	assert.ErrorIs(t, err, KindRateLimit)
}

func TestTransportNetworkFaultIsInternalErrorUnit(t *testing.T) {
	refused := errors.New("dial tcp 127.0.0.1:1: connect: connection refused")
	httpClient, _ := mocks.CreateSequenceClient(mocks.Step{Err: refused})

	_, err := newTestTransport(httpClient).do(context.Background(), http.MethodGet, "/list_indexes", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindInternalServerError, apiErr.Kind)
	assert.Zero(t, apiErr.HTTPStatus, "network faults carry no HTTP status")
	assert.ErrorIs(t, err, refused)
}

func TestTransportTimeoutIsTimeoutKindUnit(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	tr := newTestTransport(server.Client())
	tr.baseURL = server.URL
	tr.timeout = 50 * time.Millisecond

	_, err := tr.do(context.Background(), http.MethodGet, "/list_indexes", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindTimeout, apiErr.Kind)
	assert.True(t, apiErr.Kind.Retryable())
}

func TestTransportCallerCancellationUnit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	tr := newTestTransport(server.Client())
	tr.baseURL = server.URL
	tr.timeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := tr.do(ctx, http.MethodGet, "/list_indexes", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ErrorKind(""), KindOf(err), "the caller's own deadline is not a service error")
}

func TestNewPooledHTTPClientUnit(t *testing.T) {
	client := newPooledHTTPClient()
	pooled, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 100, pooled.MaxIdleConns)
	assert.Equal(t, 10, pooled.MaxIdleConnsPerHost)
	assert.Equal(t, 50, pooled.MaxConnsPerHost)
}
