// Package llm implements the curator and analyst stages of §4.3: two
// resilient HTTP clients speaking an OpenAI-compatible chat-completions
// API, each wrapped in a circuit breaker and driving a schema.Parser[T].
// Grounded on the teacher's pkg/llm/anthropic client (hand-rolled request/
// response types, functional options) and internal/httpclient's
// retry-with-backoff wrapper; model names and cost formula come from
// original_source/pipeline_v2/config.py (MODELO_CURADOR/MODELO_ANALISTA)
// and curador_llm.py/analista_llm.py's cost calculation.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/plattargus/detalhar/internal/httpclient"
)

const defaultBaseURL = "https://api.openai.com/v1/chat/completions"

// ChatClient is a resilient OpenAI-compatible chat-completions client: HTTP
// retries with backoff (internal/httpclient) wrapped in a circuit breaker
// (sony/gobreaker) so a sustained provider outage fails fast instead of
// retrying every call to exhaustion.
type ChatClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *httpclient.Client
	breaker *gobreaker.CircuitBreaker
}

// Option configures a ChatClient.
type Option func(*ChatClient)

// WithBaseURL overrides the chat-completions endpoint (for test doubles or
// Azure/compatible deployments).
func WithBaseURL(url string) Option {
	return func(c *ChatClient) { c.baseURL = url }
}

// New creates a ChatClient for model, named breakerName for its circuit
// breaker's metrics/logging.
func New(apiKey, model, breakerName string, opts ...Option) *ChatClient {
	c := &ChatClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   model,
		http: httpclient.New(httpclient.Config{
			MaxRetries:           3,
			BaseDelay:            500 * time.Millisecond,
			MaxDelay:             10 * time.Second,
			Timeout:              90 * time.Second,
			RetryableStatusCodes: []int{429, 500, 502, 503, 504},
		}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return c
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Result carries a completion's text plus call metadata.
type Result struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	Tokens           int
	Millis           int64
}

// Chat sends a single system+user turn and returns the assistant's raw
// text, retried/circuit-broken per the configuration above.
func (c *ChatClient) Chat(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (Result, error) {
	started := time.Now()

	v, err := c.breaker.Execute(func() (any, error) {
		return c.doChat(ctx, systemPrompt, userPrompt, maxTokens)
	})
	if err != nil {
		return Result{}, fmt.Errorf("llm: %w", err)
	}

	res := v.(Result)
	res.Millis = time.Since(started).Milliseconds()
	return res, nil
}

func (c *ChatClient) doChat(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (Result, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.1,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Result{}, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Result{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("provider returned no choices")
	}

	return Result{
		Content:          parsed.Choices[0].Message.Content,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		Tokens:           parsed.Usage.TotalTokens,
	}, nil
}
