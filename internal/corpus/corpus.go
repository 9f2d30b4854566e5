// Package corpus loads the curated prompt/code examples that seed the vector
// indexes.
package corpus

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/genx3d/genx3d/internal/model"
)

//go:embed examples.yaml
var defaultCorpus []byte

// Default returns the embedded corpus.
func Default() ([]model.Example, error) {
	return Parse(defaultCorpus)
}

// Load reads a corpus file, or the embedded corpus when path is empty.
func Load(path string) ([]model.Example, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "corpus: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML list of examples. Entries without an id get one
// derived from their position; prompts and code are required and ids must be
// unique.
func Parse(data []byte) ([]model.Example, error) {
	var examples []model.Example
	if err := yaml.Unmarshal(data, &examples); err != nil {
		return nil, eris.Wrap(err, "corpus: decode")
	}
	seen := make(map[string]bool, len(examples))
	for i := range examples {
		ex := &examples[i]
		ex.Prompt = strings.TrimSpace(ex.Prompt)
		ex.Code = strings.TrimSpace(ex.Code)
		if ex.ID == "" {
			ex.ID = fmt.Sprintf("example-%d", i+1)
		}
		if ex.Prompt == "" || ex.Code == "" {
			return nil, eris.Errorf("corpus: entry %s needs both prompt and code", ex.ID)
		}
		if seen[ex.ID] {
			return nil, eris.Errorf("corpus: duplicate id %s", ex.ID)
		}
		seen[ex.ID] = true
	}
	return examples, nil
}
