package identity

import (
	"time"

	"github.com/google/uuid"
)

// Access is the audit record of a single identity disclosure.
type Access struct {
	ID        uuid.UUID
	DiscordID string
	Requester string // human-readable requesting party
	Automated bool   // true for system-initiated disclosures
	Reason    string
	Timestamp time.Time
}

// NewAccess builds an audit record for a disclosure happening now.
func NewAccess(discordID string, automated bool, requester, reason string) Access {
	return Access{
		ID:        uuid.New(),
		DiscordID: discordID,
		Requester: requester,
		Automated: automated,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// Ban is an administrative ban on a linked user.
type Ban struct {
	ID        uuid.UUID
	DiscordID string
	Reason    string
	IssuedAt  time.Time
	ExpiresAt *time.Time // nil means the ban never expires
	Revoked   bool
}

// Active reports whether the ban is in force at the given time.
func (b Ban) Active(now time.Time) bool {
	if b.Revoked {
		return false
	}
	if b.ExpiresAt != nil && !now.Before(*b.ExpiresAt) {
		return false
	}
	return true
}
