package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/epilink/epilink/pkg/logger"
)

// Notifier delivers identity-access notices to users. Implemented by an
// adapter over the chat-platform facade.
type Notifier interface {
	NotifyIdentityAccess(ctx context.Context, discordID, requester string, automated bool) error
}

const notifyTimeout = 10 * time.Second

// Service implements PermissionOracle and DisclosureService over the
// persistent store. Every disclosure is recorded before the identity is
// returned; a disclosure that cannot be audited does not happen.
type Service struct {
	store           Store
	notifier        Notifier // nil disables notifications
	notifyAutomated bool     // whether automated disclosures also notify
	logger          *logger.Logger
}

// ServiceOption is a functional option for configuring the Service.
type ServiceOption func(*Service)

// WithNotifier enables identity-access notifications through the given
// notifier.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithAutomatedNotifications controls whether automated (system-initiated)
// disclosures also notify the user. Manual disclosures always notify.
func WithAutomatedNotifications(enabled bool) ServiceOption {
	return func(s *Service) { s.notifyAutomated = enabled }
}

// NewService creates the identity service.
func NewService(store Store, log *logger.Logger, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("identity store is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}

	s := &Service{
		store:           store,
		notifyAutomated: true,
		logger:          log.With("service", "identity"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IsLinked reports whether the user has a linked account.
func (s *Service) IsLinked(ctx context.Context, discordID string) (bool, error) {
	linked, err := s.store.IsLinked(ctx, discordID)
	if err != nil {
		return false, fmt.Errorf("check linked account: %w", err)
	}
	return linked, nil
}

// HasVerifiedIdentity reports whether the user's verified identity is on file.
func (s *Service) HasVerifiedIdentity(ctx context.Context, discordID string) (bool, error) {
	_, onFile, err := s.store.VerifiedIdentity(ctx, discordID)
	if err != nil {
		return false, fmt.Errorf("check verified identity: %w", err)
	}
	return onFile, nil
}

// CanJoinServers reports whether the user may hold roles anywhere. A user
// with any active ban is disallowed with the ban's reason.
func (s *Service) CanJoinServers(ctx context.Context, discordID string) (Eligibility, error) {
	bans, err := s.store.ActiveBans(ctx, discordID)
	if err != nil {
		return Eligibility{}, fmt.Errorf("load bans: %w", err)
	}

	now := time.Now()
	for _, ban := range bans {
		if ban.Active(now) {
			return Disallowed(fmt.Sprintf("You are banned: %s", ban.Reason)), nil
		}
	}
	return Allowed(), nil
}

// DiscloseIdentity retrieves the verified identity, recording an audit entry
// first and notifying the user afterwards. The audit write is mandatory: if
// it fails the identity is not released.
func (s *Service) DiscloseIdentity(ctx context.Context, discordID string, automated bool, requester, reason string) (string, error) {
	id, onFile, err := s.store.VerifiedIdentity(ctx, discordID)
	if err != nil {
		return "", fmt.Errorf("load verified identity: %w", err)
	}
	if !onFile {
		return "", fmt.Errorf("disclose identity for %s: %w", discordID, ErrNoIdentity)
	}

	access := NewAccess(discordID, automated, requester, reason)
	if err := s.store.RecordAccess(ctx, access); err != nil {
		return "", fmt.Errorf("record identity access: %w", err)
	}

	s.logger.Info("identity disclosed",
		"discord_id", discordID,
		"access_id", access.ID.String(),
		"automated", automated,
		"requester", requester,
	)

	if s.notifier != nil && (!automated || s.notifyAutomated) {
		s.notifyAccess(discordID, requester, automated)
	}

	return id, nil
}

// notifyAccess delivers the access notice on a detached goroutine so a slow
// or failing notification cannot delay or fail the disclosure itself.
func (s *Service) notifyAccess(discordID, requester string, automated bool) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic recovered in identity access notification",
					"discord_id", discordID,
					"panic", r,
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := s.notifier.NotifyIdentityAccess(ctx, discordID, requester, automated); err != nil {
			s.logger.Warn("identity access notification failed",
				"discord_id", discordID,
				"error", err,
			)
		}
	}()
}
