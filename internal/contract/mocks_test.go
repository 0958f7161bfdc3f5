package contract

import "context"

// mockClient is a function-field oracle stub.
type mockClient struct {
	CompleteFunc           func(ctx context.Context, prompt string) (string, error)
	CompleteWithSystemFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	calls                  int
}

func (m *mockClient) Complete(ctx context.Context, prompt string) (string, error) {
	m.calls++
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return "", nil
}

func (m *mockClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.calls++
	if m.CompleteWithSystemFunc != nil {
		return m.CompleteWithSystemFunc(ctx, systemPrompt, userPrompt)
	}
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, userPrompt)
	}
	return "", nil
}

// mockRepairer is a function-field repair stub.
type mockRepairer struct {
	RepairFunc func(ctx context.Context, malformed, targetSchema string) (string, error)
	calls      int
}

func (m *mockRepairer) Repair(ctx context.Context, malformed, targetSchema string) (string, error) {
	m.calls++
	if m.RepairFunc != nil {
		return m.RepairFunc(ctx, malformed, targetSchema)
	}
	return malformed, nil
}
