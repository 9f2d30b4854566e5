package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline stage failure.
type ErrorKind string

const (
	KindRetrievalBackend ErrorKind = "retrieval_backend"

	KindSynthesisBackend     ErrorKind = "synthesis_backend"
	KindSynthesisEmptyOutput ErrorKind = "synthesis_empty_output"
	KindSynthesisValidation  ErrorKind = "synthesis_validation"

	KindExecutionSyntax        ErrorKind = "execution_syntax"
	KindExecutionName          ErrorKind = "execution_name"
	KindExecutionAPIMisuse     ErrorKind = "execution_api_misuse"
	KindExecutionNoSolid       ErrorKind = "execution_no_solid"
	KindExecutionExportMissing ErrorKind = "execution_export_missing"
	KindExecutionRuntime       ErrorKind = "execution_runtime"
	KindExecutionTimeout       ErrorKind = "execution_timeout"
)

// Stage returns the pipeline stage the kind belongs to.
func (k ErrorKind) Stage() string {
	switch k {
	case KindRetrievalBackend:
		return "retrieve"
	case KindSynthesisBackend, KindSynthesisEmptyOutput:
		return "synthesize"
	case KindSynthesisValidation:
		return "validate"
	case "":
		return ""
	default:
		return "execute"
	}
}

// Failure is the typed error returned by every pipeline stage. Message is
// human readable and is fed back into the next synthesis attempt.
type Failure struct {
	Kind    ErrorKind
	Message string
	Line    int // 1-based snippet line for syntax errors, 0 otherwise
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Fail builds a Failure with a formatted message.
func Fail(kind ErrorKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsFailure extracts a *Failure from err. Errors that are not failures are
// reported under fallback with their text as the message.
func AsFailure(err error, fallback ErrorKind) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: fallback, Message: err.Error()}
}
