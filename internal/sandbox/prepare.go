package sandbox

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/genx3d/genx3d/internal/cad"
	"github.com/genx3d/genx3d/internal/model"
)

// SolidNames are the accepted output bindings in priority order.
var SolidNames = []string{"solid", "result", "shape"}

// OutputVar is the placeholder variable holding the export path.
const OutputVar = "outputPath"

// allowedImports are the packages generated code may import. Both are always
// available to the snippet.
var allowedImports = map[string]bool{"cad": true, "math": true}

const header = `package main

import (
	"cad"
	"math"
	"sandbox/capture"
)

var _ = cad.NewWorkplane
var _ = math.Pi
var _ = capture.Binding

func Run(outputPath string) {
	_ = outputPath
`

var headerLines = strings.Count(header, "\n")

// program is a snippet rewritten into an interpretable package.
type program struct {
	snippet  []string
	body     []string
	lineMap  []int // body index to 1-based snippet line
	bindings []string
}

func (p *program) source() string {
	var b strings.Builder
	b.WriteString(header)
	for _, l := range p.body {
		b.WriteString("\t")
		b.WriteString(l)
		b.WriteString("\n")
	}
	for _, name := range p.bindings {
		fmt.Fprintf(&b, "\tcapture.Binding(%q, %s)\n", name, name)
	}
	b.WriteString("}\n")
	return b.String()
}

// snippetLine maps a line of the generated source back to the snippet.
func (p *program) snippetLine(fileLine int) (int, string) {
	idx := fileLine - headerLines - 1
	if len(p.lineMap) == 0 {
		return 0, ""
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.lineMap) {
		idx = len(p.lineMap) - 1
	}
	n := p.lineMap[idx]
	return n, strings.TrimSpace(p.snippet[n-1])
}

var importSpec = regexp.MustCompile(`^(?:([A-Za-z_][A-Za-z0-9_]*|\.|_)\s+)?"([^"]+)"$`)

// prepare strips imports, rewrites the snippet into the Run function and
// checks it statically. Failures are syntax or API misuse errors; export
// hints name format.
func prepare(code, format string) (*program, *model.Failure) {
	p := &program{snippet: strings.Split(code, "\n")}

	var imports []string
	inBlock := false
	for i, raw := range p.snippet {
		line := strings.TrimSpace(raw)
		switch {
		case inBlock:
			if line == ")" {
				inBlock = false
				continue
			}
			if line != "" && !strings.HasPrefix(line, "//") {
				imports = append(imports, line)
			}
			continue
		case strings.HasPrefix(line, "package "):
			continue
		case line == "import (" || line == "import(":
			inBlock = true
			continue
		case strings.HasPrefix(line, "import"):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "import"))
			if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
				for _, spec := range strings.Split(strings.Trim(rest, "()"), ";") {
					if s := strings.TrimSpace(spec); s != "" {
						imports = append(imports, s)
					}
				}
				continue
			}
			if strings.Contains(rest, `"`) {
				imports = append(imports, rest)
				continue
			}
		}
		p.body = append(p.body, raw)
		p.lineMap = append(p.lineMap, i+1)
	}

	for _, spec := range imports {
		m := importSpec.FindStringSubmatch(strings.TrimSpace(spec))
		if m == nil {
			return nil, model.Fail(model.KindExecutionSyntax, "malformed import %q", spec)
		}
		alias, path := m[1], m[2]
		if !allowedImports[path] {
			return nil, model.Fail(model.KindExecutionAPIMisuse,
				"import %q is not available in the sandbox; only cad and math can be imported", path)
		}
		if alias != "" && alias != path {
			return nil, model.Fail(model.KindExecutionAPIMisuse,
				"import alias %s for %q is not supported; refer to the package as %s", alias, path, path)
		}
	}

	fn, err := parseRun(p.source())
	if err != nil && unwrapMain(p) {
		fn, err = parseRun(p.source())
	}
	if err != nil {
		return nil, p.syntaxFailure(err)
	}

	if f := checkAPI(fn, format); f != nil {
		return nil, f
	}
	p.bindings = assignedSolids(fn)
	return p, nil
}

func parseRun(src string) (*ast.FuncDecl, error) {
	file, err := parser.ParseFile(token.NewFileSet(), "snippet.go", src, parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}
	for _, d := range file.Decls {
		if fn, ok := d.(*ast.FuncDecl); ok && fn.Name.Name == "Run" {
			return fn, nil
		}
	}
	return nil, errors.New("generated wrapper has no Run function")
}

var mainDecl = regexp.MustCompile(`^func\s+main\s*\(\s*\)\s*\{\s*$`)

// unwrapMain replaces the body with the contents of a func main() block when
// the snippet was written as a whole program.
func unwrapMain(p *program) bool {
	start := -1
	for i, l := range p.body {
		if mainDecl.MatchString(strings.TrimSpace(l)) {
			start = i
			break
		}
	}
	if start < 0 {
		return false
	}
	end := -1
	for i := len(p.body) - 1; i > start; i-- {
		if strings.TrimSpace(p.body[i]) == "}" {
			end = i
			break
		}
	}
	if end < 0 {
		return false
	}
	p.body = append([]string(nil), p.body[start+1:end]...)
	p.lineMap = append([]int(nil), p.lineMap[start+1:end]...)
	return true
}

func (p *program) syntaxFailure(err error) *model.Failure {
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		line, text := p.snippetLine(first.Pos.Line)
		f := model.Fail(model.KindExecutionSyntax, "syntax error at line %d: %s (offending code: %q)", line, first.Msg, text)
		f.Line = line
		return f
	}
	return model.Fail(model.KindExecutionSyntax, "syntax error: %v", err)
}

// assignedSolids returns the accepted names declared or assigned at the top
// level of the snippet, in priority order.
func assignedSolids(fn *ast.FuncDecl) []string {
	seen := map[string]bool{}
	mark := func(id *ast.Ident) {
		if id != nil {
			seen[id.Name] = true
		}
	}
	for _, stmt := range fn.Body.List {
		switch s := stmt.(type) {
		case *ast.AssignStmt:
			for _, lhs := range s.Lhs {
				if id, ok := lhs.(*ast.Ident); ok {
					mark(id)
				}
			}
		case *ast.DeclStmt:
			gd, ok := s.Decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.VAR {
				continue
			}
			for _, spec := range gd.Specs {
				if vs, ok := spec.(*ast.ValueSpec); ok {
					for _, id := range vs.Names {
						mark(id)
					}
				}
			}
		}
	}
	var out []string
	for _, name := range SolidNames {
		if seen[name] {
			out = append(out, name)
		}
	}
	return out
}

var (
	workplaneMethods = methodSet(reflect.TypeOf(&cad.Workplane{}))
	cadExports       = map[string]bool{"NewWorkplane": true, "Export": true, "Workplane": true}
)

func methodSet(t reflect.Type) map[string]bool {
	out := make(map[string]bool, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		out[t.Method(i).Name] = true
	}
	return out
}

func lookupFold(set map[string]bool, name string) (string, bool) {
	for k := range set {
		if strings.EqualFold(k, name) {
			return k, true
		}
	}
	return "", false
}

// checkAPI catches common misuse of the cad namespace before running.
func checkAPI(fn *ast.FuncDecl, format string) *model.Failure {
	var fail *model.Failure
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		if fail != nil {
			return false
		}
		switch x := n.(type) {
		case *ast.SelectorExpr:
			if id, ok := x.X.(*ast.Ident); ok && id.Name == "cad" {
				fail = cadMemberHint(x.Sel.Name, format)
				return fail == nil
			}
			name := x.Sel.Name
			if name != "" && unicode.IsLower(rune(name[0])) {
				if m, ok := lookupFold(workplaneMethods, name); ok {
					fail = model.Fail(model.KindExecutionAPIMisuse,
						"method %s does not exist; workplane methods are capitalized, use .%s(...)", name, m)
				}
			}
		case *ast.CallExpr:
			if sel, ok := x.Fun.(*ast.SelectorExpr); ok {
				if id, ok := sel.X.(*ast.Ident); ok && id.Name == "cad" && sel.Sel.Name == "Export" && len(x.Args) >= 2 {
					if lit, ok := x.Args[1].(*ast.BasicLit); ok && lit.Kind == token.STRING {
						fail = model.Fail(model.KindExecutionAPIMisuse,
							"cad.Export was given the literal path %s; pass the %s variable instead", lit.Value, OutputVar)
					}
				}
			}
		}
		return true
	})
	return fail
}

func cadMemberHint(name, format string) *model.Failure {
	if cadExports[name] {
		return nil
	}
	if _, ok := workplaneMethods[name]; ok {
		return model.Fail(model.KindExecutionAPIMisuse,
			"cad.%s is not a constructor; primitives are built through a workplane, e.g. cad.NewWorkplane(\"XY\").%s(...)", name, name)
	}
	if m, ok := lookupFold(workplaneMethods, name); ok {
		return model.Fail(model.KindExecutionAPIMisuse,
			"cad.%s does not exist; build shapes through a workplane, e.g. cad.NewWorkplane(\"XY\").%s(...)", name, m)
	}
	if m, ok := lookupFold(cadExports, name); ok {
		return model.Fail(model.KindExecutionAPIMisuse, "cad.%s does not exist; did you mean cad.%s?", name, m)
	}
	lower := strings.ToLower(name)
	if strings.Contains(lower, "export") || strings.Contains(lower, "save") || strings.Contains(lower, "step") || strings.Contains(lower, "stl") {
		return model.Fail(model.KindExecutionAPIMisuse,
			"cad.%s does not exist; export with cad.Export(result, %s, %q)", name, OutputVar, format)
	}
	avail := make([]string, 0, len(cadExports))
	for k := range cadExports {
		avail = append(avail, "cad."+k)
	}
	sort.Strings(avail)
	return model.Fail(model.KindExecutionAPIMisuse, "cad.%s does not exist; available: %s", name, strings.Join(avail, ", "))
}
