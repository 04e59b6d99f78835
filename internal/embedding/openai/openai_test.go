package openai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raglab/internal/domain"
)

func embeddingServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/embeddings", r.URL.Path)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		data := make([]map[string]any, len(req.Input))
		for i, in := range req.Input {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(in)), 1},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
		})
	}))
}

func TestClient_EmbedBatchSplitsRequests(t *testing.T) {
	var calls atomic.Int32
	srv := embeddingServer(t, &calls)
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "test", BatchSize: 2})
	require.NoError(t, err)

	vecs, err := c.EmbedBatch(t.Context(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 1}, vecs[0])
	assert.Equal(t, []float32{3, 1}, vecs[2])
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, 2, c.Dimension())
}

func TestClient_ConcurrentCallsShareDimension(t *testing.T) {
	var calls atomic.Int32
	srv := embeddingServer(t, &calls)
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "test"})
	require.NoError(t, err)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = c.Embed(t.Context(), "query")
		}()
		go func() {
			defer wg.Done()
			_ = c.Dimension()
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, c.Dimension())
	assert.EqualValues(t, 8, calls.Load())
}

func TestClient_ErrorIsModelServiceError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "test"})
	require.NoError(t, err)
	_, err = c.Embed(t.Context(), "hello")
	require.Error(t, err)
	assert.Equal(t, domain.KindModelService, domain.KindOf(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestNewClient_RequiresKeyOrBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err))
}
