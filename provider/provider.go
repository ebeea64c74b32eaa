// Package provider defines the content generator boundary. The engine
// never inspects how content was produced; it only requires a string
// payload back for a prompt.
package provider

import "context"

// Usage tracks token consumption for cost accounting.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is a completed generation.
type Response struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Generator is an external content generation backend. Callers bound
// the call with a context deadline; a deadline hit is a failed
// generation, never a hang.
type Generator interface {
	// Name returns the backend identifier (e.g., "anthropic", "openai", "mock").
	Name() string

	// Generate sends a prompt and returns the complete response.
	Generate(ctx context.Context, prompt string) (*Response, error)
}
