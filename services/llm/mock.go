package llm

import "context"

// MockClient is a scripted LLMClient for tests. Responses are served
// in order; when exhausted the last one repeats. Err, when set, is
// returned on every call instead.
type MockClient struct {
	Responses []string
	Err       error
	Calls     []string

	next int
}

func (m *MockClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	m.Calls = append(m.Calls, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", nil
	}
	i := m.next
	if i >= len(m.Responses) {
		i = len(m.Responses) - 1
	}
	m.next++
	return m.Responses[i], nil
}
