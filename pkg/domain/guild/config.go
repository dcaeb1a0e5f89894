// Package guild provides the administrator configuration mapping abstract
// role names to platform-specific role IDs, per guild. The configuration is
// read-only at run time; a guild is monitored exactly when it has an entry.
package guild

import (
	"fmt"
	"sort"
)

// Config is the per-guild administrator configuration.
type Config struct {
	// ID is the platform guild identifier.
	ID string

	// Roles maps abstract role names to platform role IDs.
	Roles map[string]string

	// Rules lists the names of the rules this guild requires.
	Rules []string

	// StickyRoles lists platform role IDs that automatic reconciliation
	// must never remove on this guild, in addition to the global set.
	StickyRoles []string

	// EnableWelcome controls whether unlinked newcomers receive a
	// greeting message.
	EnableWelcome bool
}

// RoleID resolves an abstract role name to this guild's platform role ID.
func (c *Config) RoleID(abstract string) (string, bool) {
	id, ok := c.Roles[abstract]
	return id, ok
}

// AllRoleIDs returns every platform role ID configured on this guild,
// in sorted order.
func (c *Config) AllRoleIDs() []string {
	ids := make([]string, 0, len(c.Roles))
	for _, id := range c.Roles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Mapping is the full guild role mapping: every monitored guild's Config plus
// the global sticky role set. Immutable after construction.
type Mapping struct {
	guilds       map[string]*Config
	globalSticky []string
}

// NewMapping builds a Mapping. Duplicate guild IDs are a configuration error.
func NewMapping(globalSticky []string, guilds ...*Config) (*Mapping, error) {
	byID := make(map[string]*Config, len(guilds))
	for _, g := range guilds {
		if g == nil || g.ID == "" {
			return nil, fmt.Errorf("guild config requires an id")
		}
		if _, exists := byID[g.ID]; exists {
			return nil, fmt.Errorf("duplicate guild id %q", g.ID)
		}
		byID[g.ID] = g
	}
	return &Mapping{guilds: byID, globalSticky: globalSticky}, nil
}

// Guild returns the configuration for a guild ID, if it is monitored.
func (m *Mapping) Guild(id string) (*Config, bool) {
	g, ok := m.guilds[id]
	return g, ok
}

// IsMonitored reports whether the guild has a configuration entry.
func (m *Mapping) IsMonitored(id string) bool {
	_, ok := m.guilds[id]
	return ok
}

// GuildIDs returns the IDs of every monitored guild, in sorted order.
func (m *Mapping) GuildIDs() []string {
	ids := make([]string, 0, len(m.guilds))
	for id := range m.guilds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StickyRoleIDs returns the union of the global sticky set and the guild's
// own sticky set, as a lookup set of platform role IDs.
func (m *Mapping) StickyRoleIDs(guildID string) map[string]struct{} {
	sticky := make(map[string]struct{}, len(m.globalSticky))
	for _, id := range m.globalSticky {
		sticky[id] = struct{}{}
	}
	if g, ok := m.guilds[guildID]; ok {
		for _, id := range g.StickyRoles {
			sticky[id] = struct{}{}
		}
	}
	return sticky
}

// RuleNames returns the distinct rule names required across all monitored
// guilds, in sorted order. Used by startup validation.
func (m *Mapping) RuleNames() []string {
	seen := make(map[string]struct{})
	for _, g := range m.guilds {
		for _, name := range g.Rules {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
