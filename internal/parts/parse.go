package parts

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

var (
	numberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)
	tokenRe  = regexp.MustCompile(`[a-z]+|\d+(?:\.\d+)?`)
)

// Words that end a label phrase. Units and fillers are skipped instead.
var (
	boundaryWords = map[string]bool{"a": true, "an": true, "the": true, "and": true, "with": true, "by": true, "x": true}
	fillerWords   = map[string]bool{"of": true, "is": true, "mm": true, "cm": true, "equal": true, "to": true}
)

var kindWords = []struct {
	kind  Kind
	words []string
}{
	{KindFlange, []string{"flange"}},
	{KindCylinder, []string{"cylinder", "cylindrical", "rod", "disc", "disk", "shaft", "puck"}},
	{KindBox, []string{"box", "cube", "cuboid", "block", "brick", "plate"}},
}

// Defaults used when a request names a kind without enough numbers.
var defaults = map[Kind]Spec{
	KindBox:      {Kind: KindBox, Length: 10, Width: 10, Height: 10},
	KindCylinder: {Kind: KindCylinder, Radius: 5, Height: 10},
	KindFlange: {
		Kind: KindFlange, OuterDiameter: 100, InnerDiameter: 50, Thickness: 10,
		BoltCircleDiameter: 75, BoltHoleDiameter: 10, BoltCount: DefaultBoltCount,
	},
}

// DetectKind returns the part kind a request mentions, or "".
func DetectKind(text string) Kind {
	lower := cases.Fold().String(text)
	for _, kw := range kindWords {
		for _, w := range kw.words {
			if strings.Contains(lower, w) {
				return kw.kind
			}
		}
	}
	return ""
}

// ParseRequest extracts a part spec from free text such as
// "a cylinder with radius 5 and height 20" or "box 10x20x30". Missing
// dimensions take defaults; the result is validated.
func ParseRequest(text string) (Spec, error) {
	kind := DetectKind(text)
	if kind == "" {
		return Spec{}, invalid("no part kind found in %q (mention a box, cylinder or flange)", text)
	}
	lower := cases.Fold().String(text)
	spec := defaults[kind]
	labels := labelledValues(lower)

	switch kind {
	case KindBox:
		nums := numbers(lower)
		switch {
		case len(nums) >= 3:
			spec.Length, spec.Width, spec.Height = nums[0], nums[1], nums[2]
		case len(nums) == 1:
			spec.Length, spec.Width, spec.Height = nums[0], nums[0], nums[0]
		}
		setFirst(&spec.Length, labels, "length", "long")
		setFirst(&spec.Width, labels, "width", "wide")
		setFirst(&spec.Height, labels, "height", "tall", "high", "thick")
	case KindCylinder:
		nums := numbers(lower)
		if len(nums) >= 2 {
			spec.Radius, spec.Height = nums[0], nums[1]
		}
		if d, ok := lookup(labels, "diameter", "dia"); ok {
			spec.Radius = d / 2
		}
		setFirst(&spec.Radius, labels, "radius")
		setFirst(&spec.Height, labels, "height", "tall", "long", "length", "high")
	case KindFlange:
		setFirst(&spec.OuterDiameter, labels, "outer diameter", "outer", "od")
		setFirst(&spec.InnerDiameter, labels, "inner diameter", "inner", "id", "bore")
		setFirst(&spec.Thickness, labels, "thickness", "thick")
		setFirst(&spec.BoltCircleDiameter, labels, "bolt circle diameter", "bolt circle", "pcd")
		setFirst(&spec.BoltHoleDiameter, labels, "bolt hole diameter", "bolt hole", "hole")
		if n, ok := lookup(labels, "bolts", "holes", "bolt count"); ok {
			spec.BoltCount = int(n)
		}
	}

	if err := spec.Validate(); err != nil {
		return spec, err
	}
	return spec, nil
}

func numbers(text string) []float64 {
	var out []float64
	for _, m := range numberRe.FindAllString(text, -1) {
		if f, err := strconv.ParseFloat(m, 64); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// labelledValues maps label phrases to the number next to them. Words
// before a number win over a word after it, so "radius 5 height 20" maps
// height to 20, while "6 bolts" and "10mm thick" still label their number.
// Every trailing one to three word phrase is stored ("outer diameter 100"
// stores diameter and outer diameter). The first value for a label wins.
func labelledValues(text string) map[string]float64 {
	tokens := tokenRe.FindAllString(text, -1)
	out := make(map[string]float64)
	set := func(label string, v float64) {
		if _, seen := out[label]; !seen {
			out[label] = v
		}
	}

	type num struct {
		at int
		v  float64
	}
	var nums []num
	for i, tok := range tokens {
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			nums = append(nums, num{i, f})
		}
	}

	for _, n := range nums {
		var words []string
		for j := n.at - 1; j >= 0 && len(words) < 3; j-- {
			tok := tokens[j]
			if fillerWords[tok] {
				continue
			}
			if boundaryWords[tok] || isNumber(tok) {
				break
			}
			words = append([]string{tok}, words...)
			set(strings.Join(words, " "), n.v)
		}
	}
	for _, n := range nums {
		for j := n.at + 1; j < len(tokens); j++ {
			tok := tokens[j]
			if fillerWords[tok] {
				continue
			}
			if !boundaryWords[tok] && !isNumber(tok) {
				set(tok, n.v)
			}
			break
		}
	}
	return out
}

func isNumber(tok string) bool {
	return tok != "" && tok[0] >= '0' && tok[0] <= '9'
}

func lookup(labels map[string]float64, names ...string) (float64, bool) {
	for _, n := range names {
		if v, ok := labels[n]; ok {
			return v, true
		}
	}
	return 0, false
}

func setFirst(dst *float64, labels map[string]float64, names ...string) {
	if v, ok := lookup(labels, names...); ok {
		*dst = v
	}
}
