// Package discord defines the contract this module consumes to talk to the
// chat platform. The actual gateway/REST client lives outside this module;
// role computation only needs membership answers, display data and an
// idempotent role diff application.
package discord

import "context"

// Profile is the public display profile of a platform user.
type Profile struct {
	Username      string
	Discriminator string
}

// Facade abstracts the chat-platform client. Implementations are expected to
// make ManageRoles idempotent: adding an already-held role or removing an
// absent one is a no-op.
type Facade interface {
	// IsMember reports whether the user is currently a member of the guild.
	IsMember(ctx context.Context, discordID, guildID string) (bool, error)

	// GetDisplayProfile returns the user's display name and discriminator.
	GetDisplayProfile(ctx context.Context, discordID string) (Profile, error)

	// GetGuildDisplayName returns the guild's human-readable name.
	GetGuildDisplayName(ctx context.Context, guildID string) (string, error)

	// ManageRoles applies a role diff on the guild: grant every role ID in
	// toAdd and revoke every role ID in toRemove.
	ManageRoles(ctx context.Context, discordID, guildID string, toAdd, toRemove []string) error

	// SendDirectNotification delivers a direct message to the user.
	// Best-effort: callers treat failures as non-fatal.
	SendDirectNotification(ctx context.Context, discordID, message string) error

	// SendGreeting sends the guild's onboarding message to a newcomer
	// without a linked account.
	SendGreeting(ctx context.Context, guildID, discordID string) error
}
