package model

// Example is an immutable corpus entry: a request and the known-good CAD code
// that satisfies it. Embedding is filled at index build time.
type Example struct {
	ID        string    `json:"id" yaml:"id"`
	Prompt    string    `json:"prompt" yaml:"prompt"`
	Code      string    `json:"code" yaml:"code"`
	Tags      []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	Embedding []float32 `json:"-" yaml:"-"`
}

// Candidate is a nearest-neighbour hit from the local index with its raw
// distance.
type Candidate struct {
	Example  Example
	Distance float64
}

// RemoteMatch is a hit from a remote vector index. Score is the backend's
// native similarity.
type RemoteMatch struct {
	ID     string
	Prompt string
	Code   string
	Score  float64
}
