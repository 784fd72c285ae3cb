// Package litellm implements the completion provider port against a
// LiteLLM proxy's OpenAI-compatible API.
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/taskfleet/taskfleet/internal/port/completion"
	"github.com/taskfleet/taskfleet/internal/resilience"
)

// circuitID keys all proxy calls on one shared circuit.
const circuitID = "litellm"

// costHeader carries the proxy-computed spend for one completion.
const costHeader = "x-litellm-response-cost"

// Client talks to the LiteLLM proxy.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a LiteLLM completion client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
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
	} `json:"usage"`
}

// Complete sends one chat completion request through the proxy.
func (c *Client) Complete(ctx context.Context, req completion.Request) (completion.Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return completion.Response{}, fmt.Errorf("marshal completion request: %w", err)
	}

	var out completion.Response
	call := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("litellm API error %d: %s", resp.StatusCode, string(data))
		}

		var parsed chatResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("unmarshal completion: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("litellm returned no choices")
		}

		out = completion.Response{
			Content:   parsed.Choices[0].Message.Content,
			TokensIn:  parsed.Usage.PromptTokens,
			TokensOut: parsed.Usage.CompletionTokens,
			CostUSD:   parseCost(resp.Header.Get(costHeader)),
		}
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(circuitID, call); err != nil {
			return completion.Response{}, err
		}
		return out, nil
	}
	if err := call(); err != nil {
		return completion.Response{}, err
	}
	return out, nil
}

// Health checks if the proxy is reachable.
func (c *Client) Health(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode < 400, nil
}

// parseCost reads the proxy's cost header; missing or malformed values
// count as zero spend.
func parseCost(raw string) float64 {
	if raw == "" {
		return 0
	}
	cost, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return cost
}
