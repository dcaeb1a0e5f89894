package rule

import (
	"fmt"
	"sort"
)

// Registry is the read-only set of configured rules, keyed by name. It is
// built once at startup and may be shared freely across concurrent
// computations.
type Registry struct {
	rules map[string]*Rule
}

// NewRegistry builds a registry from the given rules.
// Duplicate rule names are a configuration error.
func NewRegistry(rules ...*Rule) (*Registry, error) {
	byName := make(map[string]*Rule, len(rules))
	for _, r := range rules {
		if r == nil {
			return nil, fmt.Errorf("nil rule in registry")
		}
		if _, exists := byName[r.Name()]; exists {
			return nil, fmt.Errorf("duplicate rule name %q", r.Name())
		}
		byName[r.Name()] = r
	}
	return &Registry{rules: byName}, nil
}

// Get returns the rule with the given name.
func (reg *Registry) Get(name string) (*Rule, bool) {
	r, ok := reg.rules[name]
	return r, ok
}

// Names returns all registered rule names in lexicographic order.
func (reg *Registry) Names() []string {
	names := make([]string, 0, len(reg.rules))
	for n := range reg.rules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered rules.
func (reg *Registry) Len() int { return len(reg.rules) }
