// Package identity provides account eligibility checks and the audited,
// notifying disclosure of a user's verified identity. The verified identity
// is the user's externally-authenticated identity (typically an email address
// from the identity provider) and is only ever retrieved under audit.
package identity

import "context"

// Eligibility is the outcome of an access check. A disallowed user (for
// example a banned one) is a normal, representable outcome, never an error.
type Eligibility struct {
	Allowed bool
	Reason  string // human-readable, set when not allowed
}

// Allowed builds an allowed eligibility.
func Allowed() Eligibility {
	return Eligibility{Allowed: true}
}

// Disallowed builds a disallowed eligibility with a human-readable reason.
func Disallowed(reason string) Eligibility {
	return Eligibility{Reason: reason}
}

// PermissionOracle answers account-level questions about a platform user.
type PermissionOracle interface {
	// IsLinked reports whether the user has a linked account.
	IsLinked(ctx context.Context, discordID string) (bool, error)

	// CanJoinServers reports whether the user may hold roles on any guild
	// at all (e.g. is not banned).
	CanJoinServers(ctx context.Context, discordID string) (Eligibility, error)

	// HasVerifiedIdentity reports whether the user's verified identity is
	// currently on file.
	HasVerifiedIdentity(ctx context.Context, discordID string) (bool, error)
}

// DisclosureService performs the one-time, audited retrieval of a user's
// verified identity. Each disclosure is recorded and triggers a notification
// to the user.
type DisclosureService interface {
	// DiscloseIdentity returns the verified identity string. It fails
	// loudly (with ErrNoIdentity) if the user has no identity on file.
	DiscloseIdentity(ctx context.Context, discordID string, automated bool, requester, reason string) (string, error)
}
