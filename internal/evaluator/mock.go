package evaluator

import "context"

// MockEvaluator is a deterministic Evaluator for tests.
type MockEvaluator struct {
	Ranking Ranking
	Err     error
}

func (m *MockEvaluator) Rank(ctx context.Context, question string, proposals map[string]string) (Ranking, error) {
	if m.Err != nil {
		return Ranking{}, m.Err
	}
	return m.Ranking, nil
}
