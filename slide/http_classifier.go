package slide

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultPredictTimeout is the default HTTP request timeout for one
	// batch prediction.
	DefaultPredictTimeout = 60 * time.Second

	// maxResponseBytes limits the response body to 16 MB; a probability
	// matrix for any sane batch is orders of magnitude smaller.
	maxResponseBytes = 16 << 20
)

// ClassifierOption configures an HTTPClassifier.
type ClassifierOption func(*HTTPClassifier)

// WithPredictTimeout sets the per-request timeout.
func WithPredictTimeout(d time.Duration) ClassifierOption {
	return func(c *HTTPClassifier) {
		c.timeout = d
	}
}

// WithHTTPClient overrides the default HTTP client (useful for testing).
func WithHTTPClient(client *http.Client) ClassifierOption {
	return func(c *HTTPClassifier) {
		c.client = client
	}
}

// HTTPClassifier calls a remote inference service over JSON HTTP. The
// service receives the batch shape plus a flat float payload and
// responds with one row-stochastic probability vector per tile.
type HTTPClassifier struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

// NewHTTPClassifier creates a classifier client for the given endpoint.
func NewHTTPClassifier(endpoint string, opts ...ClassifierOption) *HTTPClassifier {
	c := &HTTPClassifier{
		endpoint: endpoint,
		timeout:  DefaultPredictTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: c.timeout}
	}
	return c
}

type predictRequest struct {
	Shape [4]int    `json:"shape"` // B, C, H, W
	Data  []float32 `json:"data"`
}

type predictResponse struct {
	Probabilities [][]float32 `json:"probabilities"`
}

// Predict sends one batch and returns the per-tile probability vectors.
// Any transport, status, or shape problem is an inference error.
func (c *HTTPClassifier) Predict(ctx context.Context, batch Batch) ([][]float32, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("%w: classifier endpoint is empty", ErrInference)
	}

	body, err := json.Marshal(predictRequest{
		Shape: [4]int{batch.N, batch.C, batch.H, batch.W},
		Data:  batch.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", ErrInference, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrInference, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling %s: %v", ErrInference, c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrInference, c.endpoint, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrInference, err)
	}

	var parsed predictResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrInference, err)
	}
	if len(parsed.Probabilities) != batch.N {
		return nil, fmt.Errorf("%w: got %d probability rows for batch of %d",
			ErrInference, len(parsed.Probabilities), batch.N)
	}
	for i, row := range parsed.Probabilities {
		if len(row) != NumClasses {
			return nil, fmt.Errorf("%w: row %d has %d classes, want %d",
				ErrInference, i, len(row), NumClasses)
		}
	}
	return parsed.Probabilities, nil
}
