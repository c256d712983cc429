package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
)

// HTTPEmbedder calls any OpenAI-compatible embeddings endpoint.
type HTTPEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	dims    int
	client  *http.Client
}

// NewHTTPEmbedder creates an embedder using an OpenAI-compatible API.
func NewHTTPEmbedder(baseURL, apiKey, model string, dims int, timeout time.Duration) *HTTPEmbedder {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dims == 0 {
		dims = 1536
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPEmbedder{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		dims:    dims,
		client:  &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input text, in input order.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([]ports.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(embedRequest{Input: texts, Model: e.model})
	if err != nil {
		return nil, ports.NewServiceError(ports.ErrMalformedResponse, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, ports.NewServiceError(ports.ErrUnavailable, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ports.NewServiceError(ports.ErrTimeout, "embedding request timed out", err)
		}
		return nil, ports.NewServiceError(ports.ErrUnavailable, "embedding request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ports.NewServiceError(ports.ErrRateLimited, "embedding rate limited", nil)
	case resp.StatusCode >= 500:
		return nil, ports.NewServiceError(ports.ErrUnavailable, fmt.Sprintf("embedding server error %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(resp.Body)
		return nil, ports.NewServiceError(ports.ErrMalformedResponse, fmt.Sprintf("embedding error %d: %s", resp.StatusCode, string(b)), nil)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, ports.NewServiceError(ports.ErrMalformedResponse, "decode response", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, ports.NewServiceError(ports.ErrMalformedResponse,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(parsed.Data)), nil)
	}

	vectors := make([]ports.Vector, len(parsed.Data))
	for i, d := range parsed.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

func (e *HTTPEmbedder) Dimension() int { return e.dims }

// Ensure HTTPEmbedder implements the Embedder interface.
var _ ports.Embedder = (*HTTPEmbedder)(nil)
