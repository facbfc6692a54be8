package vectorstackai

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// [IndexMetric] is the similarity metric used by search against an [Index].
type IndexMetric string

const (
	Cosine     IndexMetric = "cosine"     // Default metric, for dense indexes
	Dotproduct IndexMetric = "dotproduct" // Required for hybrid indexes
)

// [IndexStatus] is the lifecycle state of an [Index].
type IndexStatus string

const (
	Initializing IndexStatus = "initializing"
	Ready        IndexStatus = "ready"
	Failed       IndexStatus = "failed"
	Deleting     IndexStatus = "deleting"
	Optimizing   IndexStatus = "optimizing"
)

// [FeaturesType] says whether an [Index] stores dense vectors only or dense plus sparse vectors.
type FeaturesType string

const (
	Dense  FeaturesType = "dense"
	Hybrid FeaturesType = "hybrid"
)

// [Index] describes a VectorStack AI index as reported by the service.
//
// Fields:
//   - Name: The name of the index.
//   - Status: The current [IndexStatus] of the index.
//   - Dimension: The dimension of the dense vectors stored in the index.
//   - Metric: The [IndexMetric] used for similarity search.
//   - FeaturesType: [Dense] or [Hybrid].
//   - EmbeddingModelName: The integrated embedding model, if the index computes vectors from text itself.
//   - NumRecords: The number of vectors stored in the index.
//   - OptimizedForLatency: Whether the index has been optimized for latency.
type Index struct {
	Name                string       `json:"index_name"`
	Status              IndexStatus  `json:"status"`
	Dimension           int32        `json:"dimension"`
	Metric              IndexMetric  `json:"metric"`
	FeaturesType        FeaturesType `json:"features_type"`
	EmbeddingModelName  *string      `json:"embedding_model_name,omitempty"`
	NumRecords          int64        `json:"num_records"`
	OptimizedForLatency bool         `json:"optimized_for_latency"`
}

// HasIntegratedModel reports whether the index embeds raw text server side.
func (idx *Index) HasIntegratedModel() bool {
	return idx != nil && idx.EmbeddingModelName != nil && *idx.EmbeddingModelName != ""
}

func (idx *Index) String() string {
	if idx == nil {
		return "Index(<nil>)"
	}
	return fmt.Sprintf("Index(name=%s, status=%s, dimension=%d, metric=%s, features_type=%s)",
		idx.Name, idx.Status, idx.Dimension, idx.Metric, idx.FeaturesType)
}

// [SearchHit] is one result of [IndexConnection.Search].
//
// Fields:
//   - Id: The id of the matching vector.
//   - Similarity: The similarity score of the match, higher is closer.
//   - Metadata: The metadata stored with the vector, when ReturnMetadata was requested.
type SearchHit struct {
	Id         string
	Similarity float32
	Metadata   *Metadata
}

// [Metadata] is user-defined key/value data stored alongside a vector.
type Metadata = structpb.Struct

// NewMetadata builds a [Metadata] value from a plain Go map.
func NewMetadata(fields map[string]any) (*Metadata, error) {
	return structpb.NewStruct(fields)
}

// [UpsertResponse] is the acknowledgement returned by [IndexConnection.UpsertVectors].
//
// Fields:
//   - UpsertedCount: The number of vectors the service reports as written.
//   - Message: An optional status message.
type UpsertResponse struct {
	UpsertedCount int    `json:"upserted_count"`
	Message       string `json:"message,omitempty"`
}

// [SparseValues] is the sparse half of a hybrid vector: parallel slices of dimension indices and their values.
type SparseValues struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}
