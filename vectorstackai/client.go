package vectorstackai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vectorstack-ai/go-vectorstackai/internal/provider"
	"github.com/vectorstack-ai/go-vectorstackai/internal/useragent"
	"github.com/vectorstack-ai/go-vectorstackai/internal/utils"
)

// Client holds the resolved connection parameters for the VectorStack AI service. It is returned by NewClient.
// To use Client, first build the parameters using NewClientParams, then pass them into NewClient.
// Once instantiated, you can use Client to generate embeddings and to manage indexes (create, list, describe,
// delete, optimize). Use Client.Index to open an IndexConnection for vector operations against one index.
//
// Note: Client methods are safe for concurrent use. The only state shared between calls is the pooled HTTP
// connection set owned by the underlying http.Client.
//
// Timeouts: only expiry of NewClientParams.RequestTimeout on a single attempt surfaces as an *APIError of
// KindTimeout, and it is retried. When the ctx passed to a method is canceled or its own deadline passes, the
// call stops without retrying and returns ctx.Err() unwrapped, so errors.Is(err, context.DeadlineExceeded)
// holds and KindOf(err) is empty.
//
// Example:
//
//	ctx := context.Background()
//
//	vs, err := vectorstackai.NewClient(vectorstackai.NewClientParams{
//	  ApiKey:    "YOUR_API_KEY",
//	  SourceTag: "your_source_identifier", // optional
//	})
//	if err != nil {
//	  log.Fatalf("Failed to create Client: %v", err)
//	}
//
//	idx, err := vs.DescribeIndex(ctx, "your-index-name")
//	if err != nil {
//	  log.Fatalf("Failed to describe index \"%s\". Error: %s", "your-index-name", err)
//	}
//
//	idxConnection, err := vs.Index(ctx, idx.Name)
//	if err != nil {
//	  log.Fatalf("Failed to create IndexConnection for index %s. Error: %v", idx.Name, err)
//	}
type Client struct {
	config    *clientConfig
	transport *transport
	retry     *retryController
	telemetry *telemetry
}

// NewClientParams holds the parameters for creating a new Client.
//
// Fields:
//   - ApiKey: The API key used to authenticate with the service. Falls back to api_key in the config file, then
//     to the VECTORSTACKAI_API_KEY environment variable.
//   - BaseURL: The base URL of the service. Defaults to "https://api.vectorstack.ai". Only needed for testing or
//     self-hosted deployments; falls back to the config file, then VECTORSTACKAI_BASE_URL.
//   - ConfigFile: An optional path to a YAML FileConfig. Falls back to VECTORSTACKAI_CONFIG_FILE.
//   - Headers: An optional map of additional HTTP headers to include in every request. These override headers
//     from the config file and from VECTORSTACKAI_ADDITIONAL_HEADERS.
//   - MaxRetries: The total number of attempts for calls that fail with a transient error. Defaults to 3.
//   - RequestTimeout: The timeout applied to each attempt. Defaults to 30 seconds.
//   - RestClient: An optional HTTP client. By default a pooled client is created for each Client.
//   - SourceTag: An optional string used to attribute API activity, sent in the User-Agent header.
//   - Logger: An optional hclog.Logger. Defaults to a logger named "vectorstackai" at warn level.
//   - Registerer: An optional Prometheus registerer for client metrics. Metrics are disabled when nil.
//   - TracerProvider: An optional OpenTelemetry TracerProvider. Defaults to the global provider.
//
// See Client for code example.
type NewClientParams struct {
	ApiKey         string                // required - provide through NewClientParams, the config file or VECTORSTACKAI_API_KEY
	BaseURL        string                // optional
	ConfigFile     string                // optional
	Headers        map[string]string     // optional
	MaxRetries     int                   // optional
	RequestTimeout time.Duration         // optional
	RestClient     *http.Client          // optional
	SourceTag      string                // optional
	Logger         hclog.Logger          // optional
	Registerer     prometheus.Registerer // optional
	TracerProvider trace.TracerProvider  // optional
}

// NewClient creates and initializes a new instance of Client.
//
// The API key is resolved from NewClientParams.ApiKey, then the config file, then the VECTORSTACKAI_API_KEY
// environment variable. When no key can be found NewClient fails with an *APIError of KindAuthentication, before
// any network call is made.
//
// Returns a pointer to an initialized Client instance on success. In case of failure, it returns nil and an error
// describing the issue encountered.
//
// Example:
//
//	vs, err := vectorstackai.NewClient(vectorstackai.NewClientParams{
//	  ApiKey:         "YOUR_API_KEY",
//	  RequestTimeout: 10 * time.Second,
//	})
//	if err != nil {
//	  log.Fatalf("Failed to create Client: %v", err)
//	}
func NewClient(in NewClientParams) (*Client, error) {
	tel, err := newTelemetry(in.Logger, in.TracerProvider, in.Registerer)
	if err != nil {
		return nil, err
	}

	cfg, err := resolveConfig(in, tel.logger)
	if err != nil {
		return nil, err
	}

	editors, err := buildRequestEditors(cfg)
	if err != nil {
		return nil, err
	}

	httpClient := in.RestClient
	if httpClient == nil {
		httpClient = newPooledHTTPClient()
	}

	retry := newRetryController(cfg.maxRetries, tel.logger)
	retry.onRetry = tel.retried

	return &Client{
		config: cfg,
		transport: &transport{
			baseURL:    cfg.baseURL,
			httpClient: httpClient,
			editors:    editors,
			timeout:    cfg.requestTimeout,
			logger:     tel.logger,
		},
		retry:     retry,
		telemetry: tel,
	}, nil
}

func buildRequestEditors(cfg *clientConfig) ([]provider.RequestEditorFn, error) {
	editors := []provider.RequestEditorFn{}

	userAgentProvider := provider.NewHeaderProvider("User-Agent", useragent.BuildUserAgent(cfg.sourceTag))
	editors = append(editors, userAgentProvider.Intercept)

	bearer, err := provider.NewBearerTokenProvider(cfg.apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build authorization header: %w", err)
	}
	editors = append(editors, bearer)

	for key, value := range cfg.headers {
		headerProvider := provider.NewHeaderProvider(key, value)
		editors = append(editors, headerProvider.Intercept)
	}
	return editors, nil
}

// call runs one logical API call: a span, a client request id shared by every attempt, and the retry policy.
func (c *Client) call(ctx context.Context, operation, method, endpoint string, body any, okStatuses []int, attrs ...attribute.KeyValue) (json.RawMessage, error) {
	ctx, finish := c.telemetry.start(ctx, operation, attrs...)
	ctx = withClientRequestID(ctx, uuid.NewString())

	var raw json.RawMessage
	err := c.retry.run(ctx, operation, func(ctx context.Context) error {
		var err error
		raw, err = c.transport.do(ctx, method, endpoint, body, okStatuses...)
		return err
	})
	finish(err)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// EmbedRequest holds the parameters for Client.Embed.
//
// Fields:
//   - Texts: (Required) The texts to embed.
//   - Languages: An optional language per text. When set it must have the same length as Texts.
//   - Model: (Required) The name of the embedding model.
//   - IsQuery: Whether the texts are search queries rather than documents.
//   - Instruction: An optional instruction passed to instruction-tuned models.
type EmbedRequest struct {
	Texts       []string
	Languages   []string
	Model       string
	IsQuery     bool
	Instruction string
}

type embedPayload struct {
	Texts       []string `json:"texts"`
	Languages   []string `json:"languages,omitempty"`
	Model       string   `json:"model"`
	IsQuery     bool     `json:"is_query"`
	Instruction string   `json:"instruction"`
}

// Embed generates embeddings for a batch of texts.
//
// Parameters:
//   - ctx: A context.Context object controls the request's lifetime, allowing for the request
//     to be canceled or to timeout according to the context's deadline.
//   - in: A pointer to an EmbedRequest object.
//
// Returns a pointer to an EmbeddingResult with one row per input text, in input order. The service transports the
// matrix as a base64 float16 buffer; a buffer that does not split evenly into len(in.Texts) rows fails with an
// error wrapping ErrReshape.
//
// Example:
//
//	res, err := vs.Embed(ctx, &vectorstackai.EmbedRequest{
//	  Texts:   []string{"The quick brown fox", "jumps over the lazy dog"},
//	  Model:   "vstackai-law-1",
//	  IsQuery: false,
//	})
//	if err != nil {
//	  log.Fatalf("Failed to embed texts: %v", err)
//	}
//	fmt.Printf("%d embeddings of dimension %d\n", res.Count, res.Dim)
func (c *Client) Embed(ctx context.Context, in *EmbedRequest) (*EmbeddingResult, error) {
	if in == nil {
		return nil, invalidArgument("", "EmbedRequest must not be nil")
	}
	if len(in.Texts) == 0 {
		return nil, invalidArgument("Texts", "at least one text is required")
	}
	if err := requireFields(in, "Model"); err != nil {
		return nil, err
	}
	if in.Languages != nil && len(in.Languages) != len(in.Texts) {
		return nil, invalidArgument("Languages", "got %d languages for %d texts", len(in.Languages), len(in.Texts))
	}

	payload := embedPayload{
		Texts:       in.Texts,
		Languages:   in.Languages,
		Model:       in.Model,
		IsQuery:     in.IsQuery,
		Instruction: in.Instruction,
	}
	raw, err := c.call(ctx, "embed", http.MethodPost, "/embeddings", payload, nil,
		attribute.String("vectorstackai.model", in.Model),
		attribute.Int("vectorstackai.batch_size", len(in.Texts)))
	if err != nil {
		return nil, err
	}
	return decodeEmbeddingResult(raw, len(in.Texts))
}

// CreateIndexRequest holds the parameters for Client.CreateIndex.
//
// Fields:
//   - Name: (Required) The name of the index.
//   - Dimension: The dimension of the dense vectors. Required unless EmbeddingModelName is set.
//   - Metric: The similarity metric. Defaults to Cosine for dense indexes and Dotproduct for hybrid ones.
//   - FeaturesType: Dense (default) or Hybrid.
//   - EmbeddingModelName: An optional integrated embedding model. When set, upsert and search take raw text.
type CreateIndexRequest struct {
	Name               string
	Dimension          int32
	Metric             *IndexMetric
	FeaturesType       *FeaturesType
	EmbeddingModelName *string
}

type createIndexPayload struct {
	IndexName          string       `json:"index_name"`
	Dimension          int32        `json:"dimension,omitempty"`
	Metric             IndexMetric  `json:"metric"`
	FeaturesType       FeaturesType `json:"features_type"`
	EmbeddingModelName *string      `json:"embedding_model_name,omitempty"`
}

// CreateIndex creates a new index. The service accepts the request asynchronously; poll DescribeIndex until the
// Status is Ready before writing to it.
//
// Parameters:
//   - ctx: A context.Context object controls the request's lifetime, allowing for the request
//     to be canceled or to timeout according to the context's deadline.
//   - in: A pointer to a CreateIndexRequest object.
//
// Returns a pointer to an Index describing the new index.
//
// Example:
//
//	metric := vectorstackai.Dotproduct
//	features := vectorstackai.Hybrid
//	idx, err := vs.CreateIndex(ctx, &vectorstackai.CreateIndexRequest{
//	  Name:         "my-hybrid-index",
//	  Dimension:    384,
//	  Metric:       &metric,
//	  FeaturesType: &features,
//	})
//	if err != nil {
//	  log.Fatalf("Failed to create index: %v", err)
//	}
func (c *Client) CreateIndex(ctx context.Context, in *CreateIndexRequest) (*Index, error) {
	if in == nil {
		return nil, invalidArgument("", "CreateIndexRequest must not be nil")
	}
	if err := requireFields(in, "Name"); err != nil {
		return nil, err
	}

	features := derefOrDefault(in.FeaturesType, Dense)
	if features != Dense && features != Hybrid {
		return nil, invalidArgument("FeaturesType", "must be %q or %q, got %q", Dense, Hybrid, features)
	}
	defaultMetric := Cosine
	if features == Hybrid {
		defaultMetric = Dotproduct
	}
	metric := derefOrDefault(in.Metric, defaultMetric)
	if metric != Cosine && metric != Dotproduct {
		return nil, invalidArgument("Metric", "must be %q or %q, got %q", Cosine, Dotproduct, metric)
	}

	hasModel := in.EmbeddingModelName != nil && *in.EmbeddingModelName != ""
	if in.Dimension < 0 || (in.Dimension == 0 && !hasModel) {
		return nil, invalidArgument("Dimension", "must be positive unless EmbeddingModelName is set, got %d", in.Dimension)
	}

	payload := createIndexPayload{
		IndexName:    in.Name,
		Dimension:    in.Dimension,
		Metric:       metric,
		FeaturesType: features,
	}
	if hasModel {
		payload.EmbeddingModelName = in.EmbeddingModelName
	}

	raw, err := c.call(ctx, "create_index", http.MethodPost, "/create_index", payload,
		[]int{http.StatusOK, http.StatusAccepted}, indexAttr(in.Name))
	if err != nil {
		return nil, err
	}

	idx := &Index{}
	if isJSONObject(raw) {
		if err := json.Unmarshal(raw, idx); err != nil {
			return nil, fmt.Errorf("failed to decode index response: %w", err)
		}
	}
	idx.Name = valueOrFallback(idx.Name, in.Name)
	idx.Status = valueOrFallback(idx.Status, Initializing)
	idx.Dimension = valueOrFallback(idx.Dimension, in.Dimension)
	idx.Metric = valueOrFallback(idx.Metric, metric)
	idx.FeaturesType = valueOrFallback(idx.FeaturesType, features)
	if idx.EmbeddingModelName == nil {
		idx.EmbeddingModelName = payload.EmbeddingModelName
	}
	return idx, nil
}

// ListIndexes retrieves every index visible to the API key.
//
// Parameters:
//   - ctx: A context.Context object controls the request's lifetime, allowing for the request
//     to be canceled or to timeout according to the context's deadline.
//
// Returns a slice of pointers to Index objects, or an error.
//
// Example:
//
//	idxs, err := vs.ListIndexes(ctx)
//	if err != nil {
//	  log.Fatalf("Failed to list indexes: %v", err)
//	}
//	for _, idx := range idxs {
//	  fmt.Println(idx.Name, idx.Status)
//	}
func (c *Client) ListIndexes(ctx context.Context) ([]*Index, error) {
	raw, err := c.call(ctx, "list_indexes", http.MethodGet, "/list_indexes", nil, nil)
	if err != nil {
		return nil, err
	}

	var idxs []*Index
	if err := decodeList(raw, "indexes", &idxs); err != nil {
		return nil, fmt.Errorf("failed to decode list indexes response: %w", err)
	}
	return idxs, nil
}

// DescribeIndex fetches the current descriptor of an index.
//
// Parameters:
//   - ctx: A context.Context object controls the request's lifetime, allowing for the request
//     to be canceled or to timeout according to the context's deadline.
//   - idxName: The name of the index.
//
// Returns a pointer to an Index object, or an error.
//
// Example:
//
//	idx, err := vs.DescribeIndex(ctx, "the-name-of-my-index")
//	if err != nil {
//	  log.Fatalf("Failed to describe index: %s", err)
//	}
//	fmt.Printf("%+v", *idx)
func (c *Client) DescribeIndex(ctx context.Context, idxName string) (*Index, error) {
	if idxName == "" {
		return nil, invalidArgument("idxName", "must not be empty")
	}

	raw, err := c.call(ctx, "info", http.MethodPost, "/info", indexNamePayload{IndexName: idxName}, nil, indexAttr(idxName))
	if err != nil {
		return nil, err
	}
	return decodeIndex(raw, idxName)
}

// DeleteIndex deletes an index and every vector in it.
//
// Parameters:
//   - ctx: A context.Context object controls the request's lifetime, allowing for the request
//     to be canceled or to timeout according to the context's deadline.
//   - idxName: The name of the index to delete.
//   - opts: Optional DeleteOption values, such as WithConfirmation.
//
// Returns ErrNotConfirmed when a confirmation callback declines, or any error from the service.
//
// Example:
//
//	err := vs.DeleteIndex(ctx, "the-name-of-my-index")
//	if err != nil {
//	  fmt.Println("Error:", err)
//	}
func (c *Client) DeleteIndex(ctx context.Context, idxName string, opts ...DeleteOption) error {
	if idxName == "" {
		return invalidArgument("idxName", "must not be empty")
	}
	if err := confirm(fmt.Sprintf("Delete index %q and all of its vectors?", idxName), opts); err != nil {
		return err
	}

	_, err := c.call(ctx, "delete_index", http.MethodDelete, "/delete_index", indexNamePayload{IndexName: idxName},
		[]int{http.StatusOK, http.StatusAccepted}, indexAttr(idxName))
	return err
}

// OptimizeForLatency asks the service to rebuild an index for lower search latency. The index reports the
// Optimizing status while the rebuild runs.
func (c *Client) OptimizeForLatency(ctx context.Context, idxName string) error {
	if idxName == "" {
		return invalidArgument("idxName", "must not be empty")
	}

	_, err := c.call(ctx, "optimize_for_latency", http.MethodPost, "/optimize_for_latency", indexNamePayload{IndexName: idxName},
		[]int{http.StatusAccepted, http.StatusOK}, indexAttr(idxName))
	return err
}

// Index opens an IndexConnection to the named index. The index descriptor is read once here and used to validate
// upsert and search requests locally.
//
// Parameters:
//   - ctx: A context.Context object controls the request's lifetime, allowing for the request
//     to be canceled or to timeout according to the context's deadline.
//   - idxName: The name of an existing index.
//
// Returns a pointer to an IndexConnection on success. If the index does not exist the service error is returned.
//
// Example:
//
//	idxConnection, err := vs.Index(ctx, "my-index")
//	if err != nil {
//	  log.Fatalf("Failed to create IndexConnection: %v", err)
//	}
func (c *Client) Index(ctx context.Context, idxName string) (*IndexConnection, error) {
	idx, err := c.DescribeIndex(ctx, idxName)
	if err != nil {
		return nil, err
	}
	return newIndexConnection(c, idx), nil
}

// ConfirmFunc is asked before a destructive operation runs. Returning false cancels the operation.
type ConfirmFunc func(prompt string) (bool, error)

// DeleteOption configures Client.DeleteIndex and IndexConnection.DeleteVectors.
type DeleteOption func(*deleteOptions)

type deleteOptions struct {
	confirm ConfirmFunc
}

// WithConfirmation gates a delete behind fn. The request is only sent when fn returns true.
func WithConfirmation(fn ConfirmFunc) DeleteOption {
	return func(o *deleteOptions) {
		o.confirm = fn
	}
}

func confirm(prompt string, opts []DeleteOption) error {
	o := &deleteOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.confirm == nil {
		return nil
	}
	ok, err := o.confirm(prompt)
	if err != nil {
		return fmt.Errorf("confirmation failed: %w", err)
	}
	if !ok {
		return ErrNotConfirmed
	}
	return nil
}

type indexNamePayload struct {
	IndexName string `json:"index_name"`
}

func indexAttr(name string) attribute.KeyValue {
	return attribute.String("vectorstackai.index", name)
}

func requireFields(obj any, fields ...string) error {
	if err := utils.CheckMissingFields(obj, fields); err != nil {
		return &InvalidArgumentError{Reason: err.Error()}
	}
	return nil
}

func decodeIndex(raw json.RawMessage, fallbackName string) (*Index, error) {
	var idx Index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("failed to decode index response: %w", err)
	}
	idx.Name = valueOrFallback(idx.Name, fallbackName)
	return &idx, nil
}

// decodeList accepts either a bare JSON array or an object holding the array under key.
func decodeList[T any](raw json.RawMessage, key string, out *[]T) error {
	trimmed := bytes.TrimSpace(raw)
	if string(trimmed) == "null" {
		*out = []T{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return err
	}
	list, ok := wrapped[key]
	if !ok {
		return fmt.Errorf("missing %q in response", key)
	}
	if string(bytes.TrimSpace(list)) == "null" {
		*out = []T{}
		return nil
	}
	return json.Unmarshal(list, out)
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
