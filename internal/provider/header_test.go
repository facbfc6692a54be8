package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomHeaderIntercept(t *testing.T) {
	expectedName := "X-Custom-Header"
	expectedValue := "Custom-Value"
	header := NewHeaderProvider(expectedName, expectedValue)

	req, err := http.NewRequest("GET", "https://example.com", nil)
	require.NoError(t, err)

	err = header.Intercept(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, expectedValue, req.Header.Get(expectedName))
}

func TestBearerTokenProviderUnit(t *testing.T) {
	editor, err := NewBearerTokenProvider("test-api-key")
	require.NoError(t, err)

	req, err := http.NewRequest("POST", "https://api.vectorstack.ai/embeddings", nil)
	require.NoError(t, err)

	require.NoError(t, editor(context.Background(), req))
	assert.Equal(t, "Bearer test-api-key", req.Header.Get("Authorization"))
}

func TestApplyStopsAtFirstErrorUnit(t *testing.T) {
	req, err := http.NewRequest("GET", "https://example.com", nil)
	require.NoError(t, err)

	boom := errors.New("boom")
	calls := 0
	editors := []RequestEditorFn{
		NewHeaderProvider("X-First", "1").Intercept,
		func(ctx context.Context, req *http.Request) error {
			calls++
			return boom
		},
		func(ctx context.Context, req *http.Request) error {
			calls++
			return nil
		},
	}

	err = Apply(context.Background(), req, editors)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "editors after a failing one should not run")
	assert.Equal(t, "1", req.Header.Get("X-First"))
}
