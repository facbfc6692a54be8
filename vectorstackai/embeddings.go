package vectorstackai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EmbeddingResult holds the embeddings returned by Client.Embed, one row per input text.
//
// Fields:
//   - Vectors: The embedding matrix, Count rows of Dim values each, in the order of the input texts.
//   - Count: The number of embeddings (equal to the number of input texts).
//   - Dim: The dimension of each embedding.
type EmbeddingResult struct {
	Vectors [][]float32
	Count   int
	Dim     int
}

func (r *EmbeddingResult) String() string {
	if r == nil || r.Count == 0 {
		return "EmbeddingResult(no embeddings returned)"
	}
	return fmt.Sprintf("EmbeddingResult(num_embeddings=%d, embedding_dims=%d)", r.Count, r.Dim)
}

type embedResponse struct {
	Output *struct {
		Embeddings *string `json:"embeddings"`
	} `json:"output"`
}

// decodeEmbeddingResult unwraps output.embeddings, a base64 float16 buffer, into batchSize rows.
func decodeEmbeddingResult(raw json.RawMessage, batchSize int) (*EmbeddingResult, error) {
	var res embedResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("failed to decode embeddings response: %w", err)
	}
	if res.Output == nil || res.Output.Embeddings == nil {
		return nil, fmt.Errorf("failed to decode embeddings response: missing output.embeddings")
	}

	buffer, err := base64.StdEncoding.DecodeString(*res.Output.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to decode embeddings buffer: %w", err)
	}

	vectors, err := Float16BufferToArr(buffer, batchSize)
	if err != nil {
		return nil, err
	}

	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	return &EmbeddingResult{Vectors: vectors, Count: len(vectors), Dim: dim}, nil
}
