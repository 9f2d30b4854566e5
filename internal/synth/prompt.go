package synth

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/genx3d/genx3d/internal/model"
)

// MaxPromptExamples is how many retrieved examples are shown to the model.
const MaxPromptExamples = 2

const apiReferenceTemplate = `You write Go statements that build a 3D solid with the cad package.

Available API (nothing else exists):
  cad.NewWorkplane("XY" | "YZ" | "XZ") *cad.Workplane
  (w) Box(length, width, height float64)      centred box
  (w) Cylinder(height, radius float64)        centred cylinder along the plane normal
  (w) Sphere(radius float64)
  (w) Center(x, y float64)                    move the workplane origin
  (w) MoveTo(x, y float64)                    position the next sketch
  (w) Circle(radius float64), Rect(width, height float64)
  (w) Extrude(distance float64)               first sketch is the outline, later sketches are cut out
  (w) Revolve()                               full turn around the plane Y axis
  (w) Union(o), Cut(o), Intersect(o)          o is another *cad.Workplane
  (w) Translate(x, y, z float64)
  (w) Hole(diameter float64)                  through hole at the origin
  (w) PolarHoles(circleDiameter, holeDiameter float64, count int)
  cad.Export(w *cad.Workplane, path, format string) error

Rules:
- Output only Go statements, no func main, no prose, no markdown.
- You may import "cad" and "math" and nothing else.
- Assign the final solid to a variable named result.
- The variable outputPath holds the export path. Finish with:
  cad.Export(result, outputPath, %q)
- Never write a file name or path literal.
- All workplane methods are capitalized and chain, e.g. cad.NewWorkplane("XY").Box(10, 10, 10).`

const generateTemplate = `%s

%s
Request: %s

Go code:`

const repairTemplate = `%s

The previous code for the request below failed.

Request: %s

Previous code:
%s

Error:
%s

Return a corrected version that fixes this error and still follows every rule above.

Go code:`

func apiReference(format string) string {
	return fmt.Sprintf(apiReferenceTemplate, format)
}

// BuildPrompt assembles the synthesis prompt for a deployment exporting
// format. With a prior error the prompt asks for a repair of lastCode
// instead of showing examples.
func BuildPrompt(request string, examples []model.RetrievalResult, priorError, lastCode, format string) string {
	if priorError != "" {
		if strings.TrimSpace(lastCode) == "" {
			lastCode = "(none)"
		}
		return fmt.Sprintf(repairTemplate, apiReference(format), request, lastCode, priorError)
	}
	return fmt.Sprintf(generateTemplate, apiReference(format), formatExamples(examples), request)
}

func formatExamples(examples []model.RetrievalResult) string {
	if len(examples) == 0 {
		return ""
	}
	top := slices.Clone(examples)
	slices.SortStableFunc(top, func(a, b model.RetrievalResult) int { return cmp.Compare(b.Score, a.Score) })
	top = top[:min(len(top), MaxPromptExamples)]

	var b strings.Builder
	b.WriteString("Working examples:\n\n")
	for i, ex := range top {
		fmt.Fprintf(&b, "Example %d (%s)\n%s\n\n", i+1, ex.Prompt, strings.TrimSpace(ex.Code))
	}
	return b.String()
}
