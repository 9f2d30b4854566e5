package synth

import (
	"regexp"
	"strings"

	"github.com/genx3d/genx3d/internal/model"
	"github.com/genx3d/genx3d/internal/sandbox"
)

// requiredTokens must appear at least once: an import, a call into the cad
// namespace, or the result variable.
var requiredTokens = []string{"import", "cad.", "result"}

// blockedFilenames are export names models copy from documentation.
var blockedFilenames = []string{
	"model.step", "output.step", "part.step", "example.step", "result.step",
	"model.stl", "output.stl", "part.stl",
}

var (
	placeholderRe    = regexp.MustCompile(`\b` + sandbox.OutputVar + `\b`)
	placeholderSetRe = regexp.MustCompile(`\b` + sandbox.OutputVar + `\s*:?=\s*["` + "`" + `]`)
	literalModelRe   = regexp.MustCompile(`["` + "`" + `][^"` + "`" + `\n]*\.(?i:step|stp|stl)["` + "`" + `]`)
)

// Validate checks sanitized code before execution. The returned failure's
// message is suitable as retry feedback and names format in export hints.
func Validate(code, format string) *model.Failure {
	if strings.TrimSpace(code) == "" {
		return model.Fail(model.KindSynthesisEmptyOutput, "no code generated: the response contained no executable Go statements")
	}

	found := false
	for _, tok := range requiredTokens {
		if strings.Contains(code, tok) {
			found = true
			break
		}
	}
	if !found {
		return model.Fail(model.KindSynthesisValidation,
			"generated code does not use the cad package: it must import cad, call cad.NewWorkplane and assign the solid to result")
	}

	lower := strings.ToLower(code)
	for _, name := range blockedFilenames {
		if strings.Contains(lower, name) {
			return model.Fail(model.KindSynthesisValidation,
				"generated code hard-codes the filename %q; export with cad.Export(result, %s, %q)", name, sandbox.OutputVar, format)
		}
	}
	if placeholderSetRe.MatchString(code) {
		return model.Fail(model.KindSynthesisValidation,
			"generated code assigns a literal path to %s; it is provided by the caller and must not be changed", sandbox.OutputVar)
	}
	if m := literalModelRe.FindString(code); m != "" {
		return model.Fail(model.KindSynthesisValidation,
			"generated code invents its own output file %s; export to the %s variable instead", m, sandbox.OutputVar)
	}
	if !placeholderRe.MatchString(code) {
		return model.Fail(model.KindSynthesisValidation,
			"generated code never references %s; finish with cad.Export(result, %s, %q)", sandbox.OutputVar, sandbox.OutputVar, format)
	}
	return nil
}
