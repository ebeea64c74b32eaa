// Package mock provides a scripted content generator for testing.
package mock

import (
	"context"

	"github.com/GoCodeAlone/torque/provider"
)

const defaultResponse = "Acknowledged. Working on it."

// MockGenerator implements provider.Generator for testing. It returns
// scripted responses and records the prompts it received.
type MockGenerator struct {
	responses []string
	idx       int

	// Prompts holds every prompt passed to Generate, in order.
	Prompts []string

	// Err, when set, is returned by every Generate call.
	Err error
}

// New creates a MockGenerator that cycles through the given responses.
func New(responses ...string) *MockGenerator {
	return &MockGenerator{responses: responses}
}

// Name returns the generator identifier.
func (m *MockGenerator) Name() string { return "mock" }

// Generate returns the next scripted response, cycling through the queue.
func (m *MockGenerator) Generate(_ context.Context, prompt string) (*provider.Response, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.responses) == 0 {
		return &provider.Response{Content: defaultResponse}, nil
	}
	resp := m.responses[m.idx%len(m.responses)]
	m.idx++
	return &provider.Response{
		Content: resp,
		Usage:   provider.Usage{OutputTokens: len(resp) / 4},
	}, nil
}
