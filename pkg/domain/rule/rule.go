// Package rule provides the rule abstraction used to compute abstract roles
// for linked users. A rule is a named, administrator-supplied function from a
// user's public profile (and, for strong rules, their verified identity) to a
// list of abstract role names. Rules are immutable and live in a read-only
// registry for the lifetime of the process.
package rule

import (
	"context"
	"fmt"
	"time"
)

// Kind distinguishes the two rule variants.
type Kind string

const (
	// KindWeak rules never receive the user's verified identity.
	KindWeak Kind = "weak"

	// KindStrong rules require the verified identity and are skipped
	// entirely when it is not available.
	KindStrong Kind = "strong"
)

// WeakEvalFunc computes abstract role names from public profile data only.
type WeakEvalFunc func(ctx context.Context, discordID, username, discriminator string) ([]string, error)

// StrongEvalFunc additionally receives the user's verified identity.
type StrongEvalFunc func(ctx context.Context, discordID, username, discriminator, identity string) ([]string, error)

// Rule is a single named role-producing rule.
type Rule struct {
	name       string
	kind       Kind
	cacheFor   time.Duration // 0 means results are never cached
	weakEval   WeakEvalFunc
	strongEval StrongEvalFunc
}

// NewWeak creates a weak rule. cacheFor of zero disables result caching.
func NewWeak(name string, cacheFor time.Duration, eval WeakEvalFunc) (*Rule, error) {
	if name == "" {
		return nil, fmt.Errorf("rule name is required")
	}
	if eval == nil {
		return nil, fmt.Errorf("rule %q: evaluation function is required", name)
	}
	if cacheFor < 0 {
		return nil, fmt.Errorf("rule %q: cache duration must not be negative", name)
	}
	return &Rule{name: name, kind: KindWeak, cacheFor: cacheFor, weakEval: eval}, nil
}

// NewStrong creates a strong rule. cacheFor of zero disables result caching.
func NewStrong(name string, cacheFor time.Duration, eval StrongEvalFunc) (*Rule, error) {
	if name == "" {
		return nil, fmt.Errorf("rule name is required")
	}
	if eval == nil {
		return nil, fmt.Errorf("rule %q: evaluation function is required", name)
	}
	if cacheFor < 0 {
		return nil, fmt.Errorf("rule %q: cache duration must not be negative", name)
	}
	return &Rule{name: name, kind: KindStrong, cacheFor: cacheFor, strongEval: eval}, nil
}

// MustNewWeak is like NewWeak but panics on error.
// Use only in initialization code where failure is unrecoverable.
func MustNewWeak(name string, cacheFor time.Duration, eval WeakEvalFunc) *Rule {
	r, err := NewWeak(name, cacheFor, eval)
	if err != nil {
		panic(err)
	}
	return r
}

// MustNewStrong is like NewStrong but panics on error.
func MustNewStrong(name string, cacheFor time.Duration, eval StrongEvalFunc) *Rule {
	r, err := NewStrong(name, cacheFor, eval)
	if err != nil {
		panic(err)
	}
	return r
}

// Name returns the unique rule name.
func (r *Rule) Name() string { return r.name }

// Kind returns the rule variant.
func (r *Rule) Kind() Kind { return r.kind }

// RequiresIdentity reports whether the rule needs the verified identity to run.
func (r *Rule) RequiresIdentity() bool { return r.kind == KindStrong }

// CacheDuration returns the per-rule result TTL and whether caching is enabled.
func (r *Rule) CacheDuration() (time.Duration, bool) {
	return r.cacheFor, r.cacheFor > 0
}
