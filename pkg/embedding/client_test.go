package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"formfill-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, dims int, status int) (*httptest.Server, *embeddingRequest) {
	t.Helper()
	var captured embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
			return
		}
		vec := make([]float32, dims)
		for i := range vec {
			vec[i] = float32(i) / 10
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": vec}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func testConfig(baseURL string) config.EmbeddingConfig {
	return config.EmbeddingConfig{
		APIKey:     "test-key",
		BaseURL:    baseURL + "/",
		Model:      "text-embedding-3-small",
		Dimensions: 4,
	}
}

func TestCreateEmbedding_OK(t *testing.T) {
	srv, captured := newServer(t, 4, http.StatusOK)
	c := NewClient(testConfig(srv.URL))

	vec, err := c.CreateEmbedding(context.Background(), "Jane Doe")

	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, 4, c.Dimensions())
	assert.Equal(t, []string{"Jane Doe"}, captured.Input)
	assert.Equal(t, 4, captured.Dimensions)
}

func TestCreateEmbedding_ShapeError(t *testing.T) {
	for _, dims := range []int{3, 5} {
		srv, _ := newServer(t, dims, http.StatusOK)
		c := NewClient(testConfig(srv.URL))

		vec, err := c.CreateEmbedding(context.Background(), "text")

		assert.Nil(t, vec)
		var shapeErr *ShapeError
		require.True(t, errors.As(err, &shapeErr))
		assert.Equal(t, 4, shapeErr.Want)
		assert.Equal(t, dims, shapeErr.Got)
	}
}

func TestCreateEmbedding_Non200(t *testing.T) {
	srv, _ := newServer(t, 4, http.StatusTooManyRequests)
	c := NewClient(testConfig(srv.URL))

	_, err := c.CreateEmbedding(context.Background(), "text")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestCreateEmbedding_EmptyText(t *testing.T) {
	c := NewClient(testConfig("http://127.0.0.1:0"))
	_, err := c.CreateEmbedding(context.Background(), "   ")
	assert.Error(t, err)
}

func TestCreateEmbedding_CancelledContext(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.RateLimit = 0.001
	c := NewClient(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.CreateEmbedding(ctx, "text")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(make([]float32, 3), 3))
	err := Validate(nil, 3)
	var shapeErr *ShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, 0, shapeErr.Got)
}
