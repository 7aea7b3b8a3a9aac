package expertregistry

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// Registry is the read-only expert catalog, fixed once built.
type Registry struct {
	byID          map[string]Descriptor
	order         []string // insertion order, for deterministic getAll()
	categories    map[string][]string
	strengthCues  map[string][]string // expert id -> keywords
	deepReasoning map[string]struct{}
}

// Load builds a Registry from the default embedded catalog, or from
// the YAML file at path if path is non-empty.
func Load(path string) (*Registry, error) {
	var raw []byte
	if path == "" {
		raw = defaultCatalogYAML
	} else {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read expert catalog %q: %w", path, err)
		}
	}

	var cat Catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, fmt.Errorf("parse expert catalog: %w", err)
	}
	return FromCatalog(cat)
}

// FromCatalog builds a Registry directly from an in-memory Catalog,
// used by tests that want a hermetic, minimal registry.
func FromCatalog(cat Catalog) (*Registry, error) {
	r := &Registry{
		byID:          make(map[string]Descriptor, len(cat.Experts)),
		categories:    cat.Categories,
		strengthCues:  make(map[string][]string),
		deepReasoning: make(map[string]struct{}),
	}
	for _, d := range cat.Experts {
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate expert id %q", d.ID)
		}
		r.byID[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	for _, cue := range cat.StrengthCues {
		r.strengthCues[cue.Expert] = cue.Keywords
	}
	for _, id := range cat.DeepReasoning {
		r.deepReasoning[id] = struct{}{}
	}
	return r, nil
}

// Get returns the descriptor for id. The second return is false, and
// the UnknownExpert condition applies, when id is not registered.
func (r *Registry) Get(id string) (Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// GetAll returns all descriptors in stable registration order.
func (r *Registry) GetAll() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len reports the number of registered experts.
func (r *Registry) Len() int { return len(r.byID) }

// DefaultShortlist returns the default expert ids for category,
// falling back to "general/analysis" when category is unrecognized.
func (r *Registry) DefaultShortlist(category string) []string {
	if ids, ok := r.categories[category]; ok {
		return append([]string(nil), ids...)
	}
	return append([]string(nil), r.categories["general/analysis"]...)
}

// HasStrengthCue reports whether any of the given lowercased keywords
// match a strength cue registered for expert id.
func (r *Registry) HasStrengthCue(id string, tokens map[string]struct{}) bool {
	for _, kw := range r.strengthCues[id] {
		if _, ok := tokens[kw]; ok {
			return true
		}
		// also match multi-word cues as substrings handled by caller
	}
	return false
}

// StrengthCues returns the raw keyword list for id.
func (r *Registry) StrengthCues(id string) []string {
	return append([]string(nil), r.strengthCues[id]...)
}

// IsDeepReasoning reports whether id is tagged "deep reasoning".
func (r *Registry) IsDeepReasoning(id string) bool {
	_, ok := r.deepReasoning[id]
	return ok
}

// Categories returns the known category tags in sorted order.
func (r *Registry) Categories() []string {
	out := make([]string, 0, len(r.categories))
	for c := range r.categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
