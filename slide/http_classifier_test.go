package slide

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBatch(n int) Batch {
	return Batch{N: n, C: 3, H: 2, W: 2, Data: make([]float32, n*3*2*2)}
}

func TestHTTPClassifierPredict(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		var gotReq predictRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

			rows := make([][]float32, gotReq.Shape[0])
			for i := range rows {
				rows[i] = []float32{0.1, 0.7, 0.1, 0.1}
			}
			json.NewEncoder(w).Encode(predictResponse{Probabilities: rows})
		}))
		defer server.Close()

		c := NewHTTPClassifier(server.URL)
		probs, err := c.Predict(ctx, testBatch(3))
		require.NoError(t, err)

		assert.Equal(t, [4]int{3, 3, 2, 2}, gotReq.Shape)
		assert.Len(t, gotReq.Data, 3*3*2*2)
		require.Len(t, probs, 3)
		assert.Equal(t, 1, ArgMaxFloat(probs[0]))
	})

	t.Run("non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := NewHTTPClassifier(server.URL).Predict(ctx, testBatch(1))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInference)
	})

	t.Run("row count mismatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(predictResponse{
				Probabilities: [][]float32{{0.25, 0.25, 0.25, 0.25}},
			})
		}))
		defer server.Close()

		_, err := NewHTTPClassifier(server.URL).Predict(ctx, testBatch(2))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInference)
	})

	t.Run("row width mismatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(predictResponse{
				Probabilities: [][]float32{{0.5, 0.5}},
			})
		}))
		defer server.Close()

		_, err := NewHTTPClassifier(server.URL).Predict(ctx, testBatch(1))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInference)
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer server.Close()

		_, err := NewHTTPClassifier(server.URL).Predict(ctx, testBatch(1))
		assert.ErrorIs(t, err, ErrInference)
	})

	t.Run("empty endpoint", func(t *testing.T) {
		_, err := NewHTTPClassifier("").Predict(ctx, testBatch(1))
		assert.ErrorIs(t, err, ErrInference)
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		_, err := NewHTTPClassifier("http://127.0.0.1:1/predict").Predict(ctx, testBatch(1))
		assert.ErrorIs(t, err, ErrInference)
	})
}
