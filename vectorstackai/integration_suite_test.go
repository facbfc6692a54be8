package vectorstackai

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type integrationTests struct {
	suite.Suite
	apiKey         string
	client         *Client
	idxName        string
	dimension      int32
	featuresType   FeaturesType
	embeddingModel string
	idxConn        *IndexConnection
	vectorIds      []string
}

func (ts *integrationTests) SetupSuite() {
	ctx := context.Background()

	_, err := waitUntilIndexReady(ctx, ts.client, ts.idxName)
	require.NoError(ts.T(), err)

	idxConn, err := ts.client.Index(ctx, ts.idxName)
	require.NoError(ts.T(), err)
	require.NotNil(ts.T(), idxConn, "Failed to create idxConn")
	ts.idxConn = idxConn

	req := generateUpsertRequest(10, ts.dimension, ts.featuresType == Hybrid)
	res, err := ts.idxConn.UpsertVectors(ctx, req)
	require.NoError(ts.T(), err)
	require.NotNil(ts.T(), res)
	ts.vectorIds = req.Ids

	fmt.Printf("\n %s set up suite completed successfully\n", ts.featuresType)
}

func (ts *integrationTests) TearDownSuite() {
	ctx := context.Background()

	err := ts.client.DeleteIndex(ctx, ts.idxName)
	require.NoError(ts.T(), err)

	fmt.Printf("\n %s tear down suite completed successfully\n", ts.featuresType)
}

func (ts *integrationTests) TestListIndexes() {
	idxs, err := ts.client.ListIndexes(context.Background())
	require.NoError(ts.T(), err)

	found := false
	for _, idx := range idxs {
		if idx.Name == ts.idxName {
			found = true
		}
	}
	require.True(ts.T(), found, "Index %q not found in ListIndexes", ts.idxName)
}

func (ts *integrationTests) TestDescribeIndex() {
	idx, err := ts.client.DescribeIndex(context.Background(), ts.idxName)
	require.NoError(ts.T(), err)
	require.Equal(ts.T(), ts.idxName, idx.Name)
	require.Equal(ts.T(), ts.dimension, idx.Dimension)
	require.Equal(ts.T(), ts.featuresType, idx.FeaturesType)
}

func (ts *integrationTests) TestDescribeIndexNotFound() {
	_, err := ts.client.DescribeIndex(context.Background(), "does-not-exist-"+uuid.NewString()[:8])
	require.Error(ts.T(), err)
	require.ErrorIs(ts.T(), err, KindNotFound)
}

func (ts *integrationTests) TestEmbed() {
	texts := []string{"The lease terminates on default.", "What happens when a tenant defaults?"}
	res, err := ts.client.Embed(context.Background(), &EmbedRequest{
		Texts: texts,
		Model: ts.embeddingModel,
	})
	require.NoError(ts.T(), err)
	require.Equal(ts.T(), len(texts), res.Count)
	require.Greater(ts.T(), res.Dim, 0)
}

func (ts *integrationTests) TestSearch() {
	req := &SearchRequest{
		QueryVector:    generateVectorValues(ts.dimension),
		TopK:           3,
		ReturnMetadata: true,
	}
	if ts.featuresType == Hybrid {
		req.SparseQuery = generateSparseValues()
	}

	var hits []*SearchHit
	err := retryAssertions(ts.T(), 5, 2*time.Second, func() error {
		var err error
		hits, err = ts.idxConn.Search(context.Background(), req)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			return fmt.Errorf("no hits yet")
		}
		return nil
	})
	require.NoError(ts.T(), err)
	require.LessOrEqual(ts.T(), len(hits), 3)

	for i := 1; i < len(hits); i++ {
		require.GreaterOrEqual(ts.T(), hits[i-1].Similarity, hits[i].Similarity, "hits must be ranked by similarity")
	}
}

func (ts *integrationTests) TestUpsertDimensionMismatch() {
	req := generateUpsertRequest(1, ts.dimension+1, ts.featuresType == Hybrid)
	_, err := ts.idxConn.UpsertVectors(context.Background(), req)
	require.ErrorIs(ts.T(), err, ErrInvalidArgument)
}

func (ts *integrationTests) TestDeleteVectors() {
	req := generateUpsertRequest(2, ts.dimension, ts.featuresType == Hybrid)
	_, err := ts.idxConn.UpsertVectors(context.Background(), req)
	require.NoError(ts.T(), err)

	err = ts.idxConn.DeleteVectors(context.Background(), req.Ids)
	require.NoError(ts.T(), err)
}

func buildTestIndex(t *testing.T, client *Client, name string, dim int32, features FeaturesType) *Index {
	t.Helper()
	idx, err := client.CreateIndex(context.Background(), &CreateIndexRequest{
		Name:         name,
		Dimension:    dim,
		FeaturesType: &features,
	})
	require.NoError(t, err)
	return idx
}

func generateTestIndexName() string {
	return strings.ToLower("test-" + uuid.NewString()[:8])
}

func waitUntilIndexReady(ctx context.Context, client *Client, name string) (*Index, error) {
	start := time.Now()
	delay := 5 * time.Second
	maxWait := 3 * time.Minute

	for {
		idx, err := client.DescribeIndex(ctx, name)
		if err == nil && idx.Status == Ready {
			fmt.Printf("Index %q ready after %f seconds\n", name, time.Since(start).Seconds())
			return idx, nil
		}
		if err == nil && idx.Status == Failed {
			return nil, fmt.Errorf("index %q failed to initialize", name)
		}
		if time.Since(start) > maxWait {
			return nil, fmt.Errorf("index %q not ready after %s", name, maxWait)
		}
		time.Sleep(delay)
	}
}

func retryAssertions(t *testing.T, maxRetries int, delay time.Duration, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		t.Logf("attempt %d/%d failed: %v", attempt, maxRetries, err)
		time.Sleep(delay)
	}
	return err
}

func generateVectorValues(dim int32) []float32 {
	values := make([]float32, dim)
	for i := range values {
		values[i] = rand.Float32()
	}
	return values
}

func generateSparseValues() *SparseValues {
	return &SparseValues{
		Indices: []uint32{uint32(rand.IntN(1000)), uint32(1000 + rand.IntN(1000))},
		Values:  []float32{rand.Float32(), rand.Float32()},
	}
}

func generateUpsertRequest(n int, dim int32, hybrid bool) *UpsertRequest {
	req := &UpsertRequest{}
	for i := 0; i < n; i++ {
		meta, _ := NewMetadata(map[string]any{"position": i, "genre": "test"})
		req.Ids = append(req.Ids, fmt.Sprintf("vec-%d-%s", i, uuid.NewString()[:8]))
		req.Vectors = append(req.Vectors, generateVectorValues(dim))
		req.Metadata = append(req.Metadata, meta)
		if hybrid {
			req.Sparse = append(req.Sparse, generateSparseValues())
		}
	}
	return req
}
