package models

import (
	"context"
	"sync"
)

// MockBackbone is a deterministic, in-memory BackboneClient used by tests
// and by the idempotent-mock-generation property (spec.md §8.6). Each call
// consumes the next entry of Responses in order; once exhausted, the last
// entry repeats. Calls are recorded for assertions on call count/order.
type MockBackbone struct {
	mu        sync.Mutex
	Responses []string
	calls     int
	Calls     []MockCall
}

// MockCall records one invocation for test assertions.
type MockCall struct {
	SystemPrompt string
	UserPrompt   string
}

// NewMockBackbone returns a mock whose calls consume responses in order,
// repeating the final entry once exhausted.
func NewMockBackbone(responses ...string) *MockBackbone {
	return &MockBackbone{Responses: responses}
}

func (m *MockBackbone) Generate(_ context.Context, systemPrompt, userPrompt string, _ GenerateOpts) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.calls
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	m.calls++
	m.Calls = append(m.Calls, MockCall{SystemPrompt: systemPrompt, UserPrompt: userPrompt})

	content := ""
	if idx >= 0 && idx < len(m.Responses) {
		content = m.Responses[idx]
	}
	return Response{
		Content:      content,
		InputTokens:  len(userPrompt) / 4,
		OutputTokens: len(content) / 4,
		FinishReason: "stop",
	}, nil
}

// CallCount returns how many times Generate has been invoked.
func (m *MockBackbone) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
