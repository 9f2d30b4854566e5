package retrieval

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/genx3d/genx3d/internal/model"
)

const (
	fallbackMatchScore   = 0.3
	fallbackDefaultScore = 0.1
)

type canonical struct {
	prompt   string
	code     string
	keywords []string
}

// canonicalExamples is the built-in mini-corpus. The first entry is the
// default returned when no keyword matches.
var canonicalExamples = []canonical{
	{
		prompt: "a box 20 x 10 x 5",
		code: `import "cad"
result := cad.NewWorkplane("XY").Box(20, 10, 5)
cad.Export(result, outputPath, "STEP")`,
		keywords: []string{"box", "boxes", "cube", "cuboid", "block", "rectangular", "brick", "plate", "square"},
	},
	{
		prompt: "a cylinder with radius 5 and height 20",
		code: `import "cad"
result := cad.NewWorkplane("XY").Circle(5).Extrude(20)
cad.Export(result, outputPath, "STEP")`,
		keywords: []string{"cylinder", "cylindrical", "rod", "tube", "pipe", "shaft", "disc", "disk", "round", "circular"},
	},
	{
		prompt: "a sphere with radius 10",
		code: `import "cad"
result := cad.NewWorkplane("XY").Sphere(10)
cad.Export(result, outputPath, "STEP")`,
		keywords: []string{"sphere", "spheres", "spherical", "ball", "orb", "globe"},
	},
}

// Fallback returns the canonical examples whose keywords overlap the query,
// or the default box example when none does. It never returns an empty
// slice.
func Fallback(query string) []model.RetrievalResult {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(cases.Fold().String(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = true
	}

	var out []model.RetrievalResult
	for _, c := range canonicalExamples {
		for _, kw := range c.keywords {
			if words[kw] {
				out = append(out, model.RetrievalResult{Prompt: c.prompt, Code: c.code, Score: fallbackMatchScore, Source: model.SourceFallback})
				break
			}
		}
	}
	if len(out) == 0 {
		d := canonicalExamples[0]
		out = append(out, model.RetrievalResult{Prompt: d.prompt, Code: d.code, Score: fallbackDefaultScore, Source: model.SourceFallback})
	}
	return out
}
