// Package tokenizer provides token counting for routing-prompt budgeting and
// rate limiting.
package tokenizer

// Tokenizer counts tokens for text under a named model. Implementations may
// call out to a real tokenizer and may fail.
type Tokenizer interface {
	TokenCount(text, model string) (int, error)
}

// Estimator is the infallible view consumed by budgeting code: internal
// failures fold to zero, which biases callers toward keeping more history
// rather than spuriously dropping context.
type Estimator interface {
	Estimate(text, model string) int
}

// Heuristic approximates token counts as len(text)/4. This is an
// approximation, not an exact count: it trades tokenizer fidelity for O(1)
// cost on the routing hot path.
type Heuristic struct{}

func (Heuristic) Estimate(text, _ string) int {
	return len(text) / 4
}

// FromTokenizer adapts a fallible Tokenizer into an Estimator.
func FromTokenizer(t Tokenizer) Estimator {
	return tokenizerEstimator{t: t}
}

type tokenizerEstimator struct {
	t Tokenizer
}

func (e tokenizerEstimator) Estimate(text, model string) int {
	n, err := e.t.TokenCount(text, model)
	if err != nil {
		return 0
	}
	return n
}
