package vectorstackai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultTopK is the number of hits returned by Search when SearchRequest.TopK is 0.
const DefaultTopK = 10

// IndexConnection holds the parameters for vector operations against one index. It is returned by Client.Index.
//
// The descriptor read when the connection was opened is used to validate requests locally: vector dimension, the
// sparse fields a hybrid index requires, and whether the index takes raw text through an integrated embedding
// model. The connection never refreshes it; call Describe for the current state.
//
// Note: IndexConnection methods are safe for concurrent use.
//
// Fields:
//   - Name: The name of the index this connection targets.
type IndexConnection struct {
	Name   string
	client *Client
	index  *Index
}

func newIndexConnection(c *Client, idx *Index) *IndexConnection {
	return &IndexConnection{Name: idx.Name, client: c, index: idx}
}

// Index returns the descriptor read when the connection was opened.
func (idxConn *IndexConnection) Index() Index {
	return *idxConn.index
}

// Describe fetches the current descriptor of the index from the service.
func (idxConn *IndexConnection) Describe(ctx context.Context) (*Index, error) {
	return idxConn.client.DescribeIndex(ctx, idxConn.Name)
}

// UpsertRequest holds the parameters for IndexConnection.UpsertVectors. Every slice other than Ids is positional:
// entry i belongs to Ids[i].
//
// Fields:
//   - Ids: (Required) The ids of the vectors to write. Existing ids are overwritten.
//   - Vectors: The dense vectors. Required unless the index has an integrated embedding model.
//   - Texts: The raw texts to embed server side. Required when the index has an integrated embedding model.
//   - Metadata: Optional metadata per vector.
//   - Sparse: The sparse vectors. Required for hybrid indexes, rejected for dense ones.
type UpsertRequest struct {
	Ids      []string
	Vectors  [][]float32
	Texts    []string
	Metadata []*Metadata
	Sparse   []*SparseValues
}

type upsertPayload struct {
	IndexName     string           `json:"index_name"`
	Ids           []string         `json:"ids"`
	Vectors       [][]float32      `json:"vectors,omitempty"`
	Texts         []string         `json:"texts,omitempty"`
	Metadata      []map[string]any `json:"metadata,omitempty"`
	SparseValues  [][]float32      `json:"sparse_values,omitempty"`
	SparseIndices [][]uint32       `json:"sparse_indices,omitempty"`
}

// UpsertVectors writes vectors into the index. The request is validated against the index descriptor before any
// network call; a malformed request fails with an *InvalidArgumentError.
//
// Parameters:
//   - ctx: A context.Context object controls the request's lifetime, allowing for the request
//     to be canceled or to timeout according to the context's deadline.
//   - in: A pointer to an UpsertRequest object.
//
// Returns a pointer to an UpsertResponse, or an error.
//
// Example:
//
//	meta, _ := vectorstackai.NewMetadata(map[string]any{"genre": "classical"})
//	res, err := idxConnection.UpsertVectors(ctx, &vectorstackai.UpsertRequest{
//	  Ids:      []string{"doc-1"},
//	  Vectors:  [][]float32{{0.1, 0.2, 0.3}},
//	  Metadata: []*vectorstackai.Metadata{meta},
//	})
//	if err != nil {
//	  log.Fatalf("Failed to upsert vectors: %v", err)
//	}
//	fmt.Printf("Upserted %d vectors\n", res.UpsertedCount)
func (idxConn *IndexConnection) UpsertVectors(ctx context.Context, in *UpsertRequest) (*UpsertResponse, error) {
	payload, err := idxConn.buildUpsertPayload(in)
	if err != nil {
		return nil, err
	}

	raw, err := idxConn.client.call(ctx, "upsert", http.MethodPost, "/vectors/upsert", payload, nil,
		indexAttr(idxConn.Name), attribute.Int("vectorstackai.batch_size", len(in.Ids)))
	if err != nil {
		return nil, err
	}

	res := &UpsertResponse{}
	if isJSONObject(raw) {
		if err := json.Unmarshal(raw, res); err != nil {
			return nil, fmt.Errorf("failed to decode upsert response: %w", err)
		}
	}
	return res, nil
}

func (idxConn *IndexConnection) buildUpsertPayload(in *UpsertRequest) (*upsertPayload, error) {
	if in == nil {
		return nil, invalidArgument("", "UpsertRequest must not be nil")
	}
	n := len(in.Ids)
	if n == 0 {
		return nil, invalidArgument("Ids", "at least one id is required")
	}
	for i, id := range in.Ids {
		if id == "" {
			return nil, invalidArgument("Ids", "id at position %d is empty", i)
		}
	}

	payload := &upsertPayload{IndexName: idxConn.Name, Ids: in.Ids}

	if idxConn.index.HasIntegratedModel() {
		if len(in.Vectors) > 0 {
			return nil, invalidArgument("Vectors", "index %q embeds text with %q; pass Texts instead of Vectors",
				idxConn.Name, *idxConn.index.EmbeddingModelName)
		}
		if len(in.Texts) != n {
			return nil, invalidArgument("Texts", "got %d texts for %d ids", len(in.Texts), n)
		}
		payload.Texts = in.Texts
	} else {
		if len(in.Texts) > 0 {
			return nil, invalidArgument("Texts", "index %q has no integrated embedding model; pass Vectors", idxConn.Name)
		}
		if len(in.Vectors) != n {
			return nil, invalidArgument("Vectors", "got %d vectors for %d ids", len(in.Vectors), n)
		}
		if err := idxConn.checkDimensions("Vectors", in.Vectors); err != nil {
			return nil, err
		}
		payload.Vectors = in.Vectors
	}

	if in.Metadata != nil {
		if len(in.Metadata) != n {
			return nil, invalidArgument("Metadata", "got %d metadata entries for %d ids", len(in.Metadata), n)
		}
		payload.Metadata = make([]map[string]any, n)
		for i, m := range in.Metadata {
			if m != nil {
				payload.Metadata[i] = m.AsMap()
			}
		}
	}

	switch idxConn.index.FeaturesType {
	case Hybrid:
		if len(in.Sparse) != n {
			return nil, invalidArgument("Sparse", "hybrid index %q requires sparse values for every id, got %d for %d ids",
				idxConn.Name, len(in.Sparse), n)
		}
		payload.SparseValues = make([][]float32, n)
		payload.SparseIndices = make([][]uint32, n)
		for i, sv := range in.Sparse {
			if err := checkSparse(sv, fmt.Sprintf("Sparse[%d]", i)); err != nil {
				return nil, err
			}
			payload.SparseValues[i] = sv.Values
			payload.SparseIndices[i] = sv.Indices
		}
	default:
		if len(in.Sparse) > 0 {
			return nil, invalidArgument("Sparse", "index %q is %s; sparse values require a hybrid index",
				idxConn.Name, valueOrFallback(idxConn.index.FeaturesType, Dense))
		}
	}

	return payload, nil
}

// SearchRequest holds the parameters for IndexConnection.Search. Exactly one of QueryVector and QueryText must be
// set.
//
// Fields:
//   - QueryVector: A dense query vector with the dimension of the index.
//   - QueryText: A raw text query. Only valid for indexes with an integrated embedding model.
//   - TopK: The number of hits to return. Defaults to 10.
//   - ReturnMetadata: Whether each hit should carry the metadata stored with its vector.
//   - SparseQuery: The sparse half of the query. Required for hybrid indexes.
type SearchRequest struct {
	QueryVector    []float32
	QueryText      string
	TopK           int
	ReturnMetadata bool
	SparseQuery    *SparseValues
}

type searchPayload struct {
	IndexName      string    `json:"index_name"`
	QueryVector    []float32 `json:"query_vector,omitempty"`
	QueryText      string    `json:"query_text,omitempty"`
	TopK           int       `json:"top_k"`
	ReturnMetadata bool      `json:"return_metadata"`
	SparseValues   []float32 `json:"sparse_values,omitempty"`
	SparseIndices  []uint32  `json:"sparse_indices,omitempty"`
}

type searchHitPayload struct {
	Id         string         `json:"id"`
	Similarity float32        `json:"similarity"`
	Metadata   map[string]any `json:"metadata"`
}

// Search returns the vectors most similar to the query, in the order the service ranks them (descending
// similarity).
//
// Parameters:
//   - ctx: A context.Context object controls the request's lifetime, allowing for the request
//     to be canceled or to timeout according to the context's deadline.
//   - in: A pointer to a SearchRequest object.
//
// Returns a slice of pointers to SearchHit objects, or an error.
//
// Example:
//
//	hits, err := idxConnection.Search(ctx, &vectorstackai.SearchRequest{
//	  QueryVector:    []float32{0.1, 0.2, 0.3},
//	  TopK:           5,
//	  ReturnMetadata: true,
//	})
//	if err != nil {
//	  log.Fatalf("Failed to search: %v", err)
//	}
//	for _, hit := range hits {
//	  fmt.Printf("%s: %f\n", hit.Id, hit.Similarity)
//	}
func (idxConn *IndexConnection) Search(ctx context.Context, in *SearchRequest) ([]*SearchHit, error) {
	payload, err := idxConn.buildSearchPayload(in)
	if err != nil {
		return nil, err
	}

	raw, err := idxConn.client.call(ctx, "search", http.MethodPost, "/vectors/search", payload, nil,
		indexAttr(idxConn.Name), attribute.Int("vectorstackai.top_k", payload.TopK))
	if err != nil {
		return nil, err
	}

	var wireHits []*searchHitPayload
	if err := decodeList(raw, "results", &wireHits); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hits := make([]*SearchHit, 0, len(wireHits))
	for _, h := range wireHits {
		if h == nil {
			continue
		}
		hit := &SearchHit{Id: h.Id, Similarity: h.Similarity}
		if h.Metadata != nil {
			hit.Metadata, err = structpb.NewStruct(h.Metadata)
			if err != nil {
				return nil, fmt.Errorf("failed to decode metadata of hit %q: %w", h.Id, err)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (idxConn *IndexConnection) buildSearchPayload(in *SearchRequest) (*searchPayload, error) {
	if in == nil {
		return nil, invalidArgument("", "SearchRequest must not be nil")
	}
	hasVector := len(in.QueryVector) > 0
	hasText := in.QueryText != ""
	if hasVector == hasText {
		return nil, invalidArgument("QueryVector", "exactly one of QueryVector and QueryText must be set")
	}
	if in.TopK < 0 {
		return nil, invalidArgument("TopK", "must not be negative, got %d", in.TopK)
	}

	payload := &searchPayload{
		IndexName:      idxConn.Name,
		TopK:           valueOrFallback(in.TopK, DefaultTopK),
		ReturnMetadata: in.ReturnMetadata,
	}

	if hasText {
		if !idxConn.index.HasIntegratedModel() {
			return nil, invalidArgument("QueryText", "index %q has no integrated embedding model; pass QueryVector", idxConn.Name)
		}
		payload.QueryText = in.QueryText
	} else {
		if err := idxConn.checkDimensions("QueryVector", [][]float32{in.QueryVector}); err != nil {
			return nil, err
		}
		payload.QueryVector = in.QueryVector
	}

	switch idxConn.index.FeaturesType {
	case Hybrid:
		if in.SparseQuery == nil {
			return nil, invalidArgument("SparseQuery", "hybrid index %q requires a sparse query", idxConn.Name)
		}
		if err := checkSparse(in.SparseQuery, "SparseQuery"); err != nil {
			return nil, err
		}
		payload.SparseValues = in.SparseQuery.Values
		payload.SparseIndices = in.SparseQuery.Indices
	default:
		if in.SparseQuery != nil {
			return nil, invalidArgument("SparseQuery", "sparse queries require a hybrid index")
		}
	}
	return payload, nil
}

type deleteVectorsPayload struct {
	IndexName       string   `json:"index_name"`
	DeleteVectorIds []string `json:"delete_vector_ids"`
}

// DeleteVectors deletes vectors by id.
//
// Parameters:
//   - ctx: A context.Context object controls the request's lifetime, allowing for the request
//     to be canceled or to timeout according to the context's deadline.
//   - ids: The ids of the vectors to delete.
//   - opts: Optional DeleteOption values, such as WithConfirmation.
//
// Returns ErrNotConfirmed when a confirmation callback declines, or any error from the service.
//
// Example:
//
//	err := idxConnection.DeleteVectors(ctx, []string{"doc-1", "doc-2"})
//	if err != nil {
//	  log.Fatalf("Failed to delete vectors: %v", err)
//	}
func (idxConn *IndexConnection) DeleteVectors(ctx context.Context, ids []string, opts ...DeleteOption) error {
	if len(ids) == 0 {
		return invalidArgument("ids", "at least one id is required")
	}
	if err := confirm(fmt.Sprintf("Delete %d vectors from index %q?", len(ids), idxConn.Name), opts); err != nil {
		return err
	}

	payload := deleteVectorsPayload{IndexName: idxConn.Name, DeleteVectorIds: ids}
	_, err := idxConn.client.call(ctx, "delete_vectors", http.MethodDelete, "/vectors/delete", payload, nil,
		indexAttr(idxConn.Name), attribute.Int("vectorstackai.batch_size", len(ids)))
	return err
}

func (idxConn *IndexConnection) checkDimensions(field string, vectors [][]float32) error {
	dim := int(idxConn.index.Dimension)
	for i, v := range vectors {
		if len(v) == 0 {
			return invalidArgument(field, "vector at position %d is empty", i)
		}
		if dim > 0 && len(v) != dim {
			return invalidArgument(field, "vector at position %d has dimension %d, index %q expects %d",
				i, len(v), idxConn.Name, dim)
		}
	}
	return nil
}

func checkSparse(sv *SparseValues, field string) error {
	if sv == nil {
		return invalidArgument(field, "sparse values must not be nil")
	}
	if len(sv.Indices) != len(sv.Values) {
		return invalidArgument(field, "got %d indices for %d values", len(sv.Indices), len(sv.Values))
	}
	return nil
}
