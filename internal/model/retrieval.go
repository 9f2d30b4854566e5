package model

// Source identifies which backend produced a retrieval result.
type Source string

const (
	SourceLocal    Source = "local"
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// Priority orders sources when two results carry identical code and score.
// Lower wins.
func (s Source) Priority() int {
	switch s {
	case SourceLocal:
		return 0
	case SourceRemote:
		return 1
	case SourceFallback:
		return 2
	default:
		return 3
	}
}

// RetrievalResult is one ranked example returned for a query. Score is a
// normalized similarity in [0,1]; higher is more relevant.
type RetrievalResult struct {
	Prompt string  `json:"prompt"`
	Code   string  `json:"code"`
	Score  float64 `json:"similarity_score"`
	Source Source  `json:"source"`
}

// ExampleRef is the diagnostic view of a retrieval result included in
// generation responses.
type ExampleRef struct {
	Prompt string  `json:"prompt"`
	Score  float64 `json:"similarity_score"`
	Source Source  `json:"source"`
}

// Refs converts results to their diagnostic view.
func Refs(results []RetrievalResult) []ExampleRef {
	refs := make([]ExampleRef, 0, len(results))
	for _, r := range results {
		refs = append(refs, ExampleRef{Prompt: r.Prompt, Score: r.Score, Source: r.Source})
	}
	return refs
}
