package mcpserver

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/genx3d/genx3d/internal/cad"
	"github.com/genx3d/genx3d/internal/parts"
)

// Entry is a named solid built during the session.
type Entry struct {
	Name      string
	Spec      parts.Spec
	Solid     *cad.Workplane
	CreatedAt time.Time
}

// Summary is the listing view of an Entry.
type Summary struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Size        [3]float64 `json:"size"`
}

// Registry holds the named solids of one server. It is safe for concurrent
// use; tool calls may run in parallel.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	seq     map[parts.Kind]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry), seq: make(map[parts.Kind]int)}
}

// Put stores a solid under name, replacing any previous entry. An empty name
// is replaced by "<kind>_<n>". The stored name is returned.
func (r *Registry) Put(name string, spec parts.Spec, solid *cad.Workplane) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		for {
			r.seq[spec.Kind]++
			name = fmt.Sprintf("%s_%d", spec.Kind, r.seq[spec.Kind])
			if _, taken := r.entries[name]; !taken {
				break
			}
		}
	}
	r.entries[name] = Entry{Name: name, Spec: spec, Solid: solid, CreatedAt: time.Now().UTC()}
	return name
}

// Get returns the entry stored under name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// List returns summaries sorted by name.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Summary, 0, len(r.entries))
	for _, e := range r.entries {
		size := e.Solid.BoundingBox().Size()
		out = append(out, Summary{
			Name:        e.Name,
			Description: e.Spec.Describe(),
			Size:        [3]float64{size.X, size.Y, size.Z},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
