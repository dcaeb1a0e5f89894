package rule

import "sort"

// Standard roles granted independently of any rule.
const (
	// RoleKnown marks a user with a linked account.
	RoleKnown = "known"

	// RoleIdentified marks a user whose verified identity is on file.
	RoleIdentified = "identified"

	// RoleNotIdentified marks a linked user with no verified identity on file.
	RoleNotIdentified = "not-identified"
)

// RoleSet is an unordered set of abstract role names.
type RoleSet map[string]struct{}

// NewRoleSet builds a set from the given role names.
func NewRoleSet(names ...string) RoleSet {
	s := make(RoleSet, len(names))
	s.Add(names...)
	return s
}

// Add inserts the given role names into the set.
func (s RoleSet) Add(names ...string) {
	for _, n := range names {
		s[n] = struct{}{}
	}
}

// Union inserts every role name of other into the set.
func (s RoleSet) Union(other RoleSet) {
	for n := range other {
		s[n] = struct{}{}
	}
}

// Contains reports whether the set holds the given role name.
func (s RoleSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// Len returns the number of role names in the set.
func (s RoleSet) Len() int { return len(s) }

// Sorted returns the role names in lexicographic order.
func (s RoleSet) Sorted() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
