// Package completion defines the opaque completion provider port.
// Workers call it for text generation; its internals are an external
// collaborator and not modeled here.
package completion

import "context"

// Request asks the provider for a completion.
type Request struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Response carries the completion and its usage accounting.
type Response struct {
	Content   string  `json:"content"`
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
	CostUSD   float64 `json:"cost_usd"`
}

// Provider is the port interface for completion calls.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
