package model

import "time"

// NoCodePlaceholder is reported as the last code when no attempt ever produced
// sanitized output.
const NoCodePlaceholder = "No code generated"

// GeneratedModel is an exported model file in the temp-model area.
type GeneratedModel struct {
	ID        string    `json:"model_id"`
	Path      string    `json:"-"`
	URL       string    `json:"url"`
	Format    string    `json:"format"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Execution is the outcome of one executor run.
type Execution struct {
	ModelID string
	Path    string
}

// GenerationAttempt records one pass through the synthesize/execute loop.
// It lives only for the duration of one request.
type GenerationAttempt struct {
	Number        int       `json:"attempt"`
	Prompt        string    `json:"-"`
	RawOutput     string    `json:"-"`
	SanitizedCode string    `json:"sanitized_code,omitempty"`
	ModelID       string    `json:"model_id,omitempty"`
	FilePath      string    `json:"-"`
	ErrorKind     ErrorKind `json:"error_kind,omitempty"`
	Error         string    `json:"error,omitempty"`
	Duration      string    `json:"duration"`
}

// Succeeded reports whether the attempt produced a model.
func (a GenerationAttempt) Succeeded() bool {
	return a.ModelID != "" && a.ErrorKind == ""
}

// GenerationStatus is the terminal state of a generation request.
type GenerationStatus string

const (
	StatusSuccess GenerationStatus = "success"
	StatusFailure GenerationStatus = "failure"
)

// GenerationResult is the terminal value of a generation request: Success
// carries the model URL and code; Failure carries the last error and code.
type GenerationResult struct {
	Status   GenerationStatus `json:"status"`
	Success  bool             `json:"success"`
	Request  string           `json:"request"`
	Attempts int              `json:"attempts"`
	Method   string           `json:"method"`

	ModelURL      string       `json:"model_file_url,omitempty"`
	ModelID       string       `json:"model_id,omitempty"`
	SanitizedCode string       `json:"sanitized_code,omitempty"`
	ExamplesUsed  []ExampleRef `json:"examples_used,omitempty"`
	TopScore      float64      `json:"similarity_score,omitempty"`

	ErrorMessage      string    `json:"error_message,omitempty"`
	LastSanitizedCode string    `json:"last_sanitized_code,omitempty"`
	LastError         string    `json:"last_error,omitempty"`
	LastErrorKind     ErrorKind `json:"last_error_kind,omitempty"`

	History []GenerationAttempt `json:"history,omitempty"`
}
