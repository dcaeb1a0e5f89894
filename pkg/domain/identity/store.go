package identity

import "context"

// Store is the persistent backend for linked accounts, bans and identity
// access records. Implemented outside this module.
type Store interface {
	// IsLinked reports whether the user has a linked account.
	IsLinked(ctx context.Context, discordID string) (bool, error)

	// VerifiedIdentity returns the user's verified identity and whether
	// one is on file.
	VerifiedIdentity(ctx context.Context, discordID string) (string, bool, error)

	// ActiveBans returns every ban recorded for the user. Callers filter
	// with Ban.Active.
	ActiveBans(ctx context.Context, discordID string) ([]Ban, error)

	// RecordAccess persists the audit record of an identity disclosure.
	RecordAccess(ctx context.Context, access Access) error
}
