package synth

import "strings"

// fences are tried in order: language-tagged first, then bare. "```golang"
// must precede "```go" since the latter is its prefix.
var fences = []string{"```golang", "```go", bareFence}

const bareFence = "```"

// prosePrefixes mark lines of model commentary.
var prosePrefixes = []string{
	"Here is", "Here's", "This code", "The code", "You can", "To create",
	"This will", "The result", "Note:", "Example:", "Output:", "Result:",
	"Code:", "Go code:", "CAD code:",
}

// codePrefixes mark lines that start like Go statements.
var codePrefixes = []string{
	"import", "package", "//", "result", "solid", "shape", "cad.", "outputPath",
	"func ", "if ", "else", "for ", "switch ", "case ", "default:", "var ",
	"const ", "return", "defer ",
}

// codeMarkers are characters whose presence suggests a statement.
const codeMarkers = "=()[]{}."

// lineRule is one ordered predicate of the sanitizer. The first rule that
// matches decides whether a line is kept.
type lineRule struct {
	name  string
	match func(line string) bool
	keep  bool
}

var lineRules = []lineRule{
	{name: "blank", match: func(l string) bool { return l == "" }, keep: false},
	{name: "prose", match: hasAnyPrefix(prosePrefixes), keep: false},
	{name: "keyword", match: hasAnyPrefix(codePrefixes), keep: true},
	{name: "marker", match: func(l string) bool { return strings.ContainsAny(l, codeMarkers) }, keep: true},
}

func hasAnyPrefix(prefixes []string) func(string) bool {
	return func(l string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(l, p) {
				return true
			}
		}
		return false
	}
}

// stripFence returns the content of the first fenced block, or text as is
// when it has no fence. An unclosed fence yields everything after it.
func stripFence(text string) string {
	for _, fence := range fences {
		start := strings.Index(text, fence)
		if start < 0 {
			continue
		}
		rest := text[start+len(fence):]
		if end := strings.Index(rest, bareFence); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	return text
}

// Sanitize extracts executable code from a free-text completion. It is
// idempotent: Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(raw string) string {
	text := stripFence(strings.TrimSpace(raw))

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		for _, r := range lineRules {
			if r.match(line) {
				if r.keep {
					kept = append(kept, line)
				}
				break
			}
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
