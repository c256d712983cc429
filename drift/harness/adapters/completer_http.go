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

// HTTPCompleter calls any OpenAI-compatible chat completion endpoint.
type HTTPCompleter struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPCompleter creates a completer against an OpenAI-compatible API.
// An empty baseURL defaults to the public OpenAI endpoint; the API key is
// read from OPENAI_API_KEY when not supplied.
func NewHTTPCompleter(baseURL, apiKey, model string, timeout time.Duration) *HTTPCompleter {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if model == "" {
		model = "gpt-4o"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPCompleter{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends a single chat completion request.
func (c *HTTPCompleter) Complete(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
	model := req.ModelID
	if model == "" {
		model = c.model
	}

	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:     model,
		MaxTokens: req.MaxOutputTokens,
		Messages:  messages,
	}
	if req.Structured {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return ports.Completion{}, ports.NewServiceError(ports.ErrMalformedResponse, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return ports.Completion{}, ports.NewServiceError(ports.ErrUnavailable, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ports.Completion{}, ports.NewServiceError(ports.ErrTimeout, "completion request timed out", err)
		}
		return ports.Completion{}, ports.NewServiceError(ports.ErrUnavailable, "completion request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ports.Completion{}, ports.NewServiceError(ports.ErrRateLimited, "completion rate limited", nil)
	case resp.StatusCode >= 500:
		return ports.Completion{}, ports.NewServiceError(ports.ErrUnavailable, fmt.Sprintf("completion server error %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(resp.Body)
		return ports.Completion{}, ports.NewServiceError(ports.ErrMalformedResponse, fmt.Sprintf("completion error %d: %s", resp.StatusCode, string(b)), nil)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ports.Completion{}, ports.NewServiceError(ports.ErrMalformedResponse, "decode response", err)
	}
	if len(parsed.Choices) == 0 {
		return ports.Completion{}, ports.NewServiceError(ports.ErrMalformedResponse, "empty choices", nil)
	}

	out := ports.Completion{Text: parsed.Choices[0].Message.Content}
	if parsed.Usage != nil {
		out.Usage = &ports.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		}
	}

	if req.Structured {
		raw := json.RawMessage(out.Text)
		if !json.Valid(raw) {
			return ports.Completion{}, ports.NewServiceError(ports.ErrMalformedResponse, "structured output is not valid JSON", nil)
		}
		out.RawJSON = raw
	}

	return out, nil
}

// Ensure HTTPCompleter implements the Completer interface.
var _ ports.Completer = (*HTTPCompleter)(nil)
