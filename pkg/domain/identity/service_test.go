package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/epilink/epilink/pkg/logger"
)

type mockStore struct {
	linked    bool
	linkedErr error

	identity    string
	onFile      bool
	identityErr error

	bans    []Ban
	bansErr error

	recordErr error

	mu       sync.Mutex
	accesses []Access
}

func (m *mockStore) IsLinked(_ context.Context, _ string) (bool, error) {
	return m.linked, m.linkedErr
}

func (m *mockStore) VerifiedIdentity(_ context.Context, _ string) (string, bool, error) {
	return m.identity, m.onFile, m.identityErr
}

func (m *mockStore) ActiveBans(_ context.Context, _ string) ([]Ban, error) {
	return m.bans, m.bansErr
}

func (m *mockStore) RecordAccess(_ context.Context, access Access) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.mu.Lock()
	m.accesses = append(m.accesses, access)
	m.mu.Unlock()
	return nil
}

func (m *mockStore) recorded() []Access {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Access(nil), m.accesses...)
}

type mockNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockNotifier) NotifyIdentityAccess(_ context.Context, _, _ string, _ bool) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.err
}

func (m *mockNotifier) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newService(t *testing.T, store Store, opts ...ServiceOption) *Service {
	t.Helper()
	s, err := NewService(store, logger.Nop(), opts...)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestNewService_Validation(t *testing.T) {
	if _, err := NewService(nil, logger.Nop()); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := NewService(&mockStore{}, nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestCanJoinServers(t *testing.T) {
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name    string
		bans    []Ban
		allowed bool
	}{
		{"no bans", nil, true},
		{"active permanent ban", []Ban{{Reason: "spam"}}, false},
		{"active temporary ban", []Ban{{Reason: "spam", ExpiresAt: &future}}, false},
		{"expired ban", []Ban{{Reason: "spam", ExpiresAt: &past}}, true},
		{"revoked ban", []Ban{{Reason: "spam", Revoked: true}}, true},
		{"one active among inactive", []Ban{{Reason: "old", Revoked: true}, {Reason: "fresh"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newService(t, &mockStore{bans: tt.bans})
			elig, err := s.CanJoinServers(context.Background(), "123")
			if err != nil {
				t.Fatalf("CanJoinServers() error = %v", err)
			}
			if elig.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v", elig.Allowed, tt.allowed)
			}
			if !tt.allowed && !strings.Contains(elig.Reason, "banned") {
				t.Errorf("Reason = %q, want ban reason", elig.Reason)
			}
		})
	}
}

func TestDiscloseIdentity_RecordsAccessFirst(t *testing.T) {
	store := &mockStore{identity: "alice@example.edu", onFile: true}
	s := newService(t, store)

	id, err := s.DiscloseIdentity(context.Background(), "123", true, "EpiLink", "Automated role update for: Gondola")
	if err != nil {
		t.Fatalf("DiscloseIdentity() error = %v", err)
	}
	if id != "alice@example.edu" {
		t.Errorf("identity = %q", id)
	}

	accesses := store.recorded()
	if len(accesses) != 1 {
		t.Fatalf("recorded %d accesses, want 1", len(accesses))
	}
	a := accesses[0]
	if a.DiscordID != "123" || !a.Automated || a.Requester != "EpiLink" {
		t.Errorf("access record = %+v", a)
	}
	if !strings.Contains(a.Reason, "Gondola") {
		t.Errorf("access reason = %q", a.Reason)
	}
	if a.Timestamp.IsZero() {
		t.Error("access timestamp not set")
	}
}

func TestDiscloseIdentity_NoIdentityOnFile(t *testing.T) {
	store := &mockStore{onFile: false}
	s := newService(t, store)

	_, err := s.DiscloseIdentity(context.Background(), "123", true, "EpiLink", "reason")
	if !errors.Is(err, ErrNoIdentity) {
		t.Errorf("error = %v, want ErrNoIdentity", err)
	}
	if len(store.recorded()) != 0 {
		t.Error("no access record for a failed disclosure")
	}
}

func TestDiscloseIdentity_AuditFailureBlocksDisclosure(t *testing.T) {
	store := &mockStore{identity: "alice@example.edu", onFile: true, recordErr: errors.New("db down")}
	s := newService(t, store)

	id, err := s.DiscloseIdentity(context.Background(), "123", true, "EpiLink", "reason")
	if err == nil {
		t.Fatal("expected error when the audit write fails")
	}
	if id != "" {
		t.Error("identity released despite audit failure")
	}
}

func TestDiscloseIdentity_Notifications(t *testing.T) {
	t.Run("manual disclosure always notifies", func(t *testing.T) {
		store := &mockStore{identity: "alice@example.edu", onFile: true}
		notifier := &mockNotifier{}
		s := newService(t, store, WithNotifier(notifier), WithAutomatedNotifications(false))

		if _, err := s.DiscloseIdentity(context.Background(), "123", false, "admin", "support request"); err != nil {
			t.Fatalf("DiscloseIdentity() error = %v", err)
		}
		waitFor(t, func() bool { return notifier.callCount() == 1 })
	})

	t.Run("automated disclosure respects the toggle", func(t *testing.T) {
		store := &mockStore{identity: "alice@example.edu", onFile: true}
		notifier := &mockNotifier{}
		s := newService(t, store, WithNotifier(notifier), WithAutomatedNotifications(false))

		if _, err := s.DiscloseIdentity(context.Background(), "123", true, "EpiLink", "resync"); err != nil {
			t.Fatalf("DiscloseIdentity() error = %v", err)
		}
		time.Sleep(50 * time.Millisecond)
		if notifier.callCount() != 0 {
			t.Error("automated disclosure notified despite the toggle being off")
		}
	})

	t.Run("notification failure does not fail the disclosure", func(t *testing.T) {
		store := &mockStore{identity: "alice@example.edu", onFile: true}
		notifier := &mockNotifier{err: errors.New("dm closed")}
		s := newService(t, store, WithNotifier(notifier))

		id, err := s.DiscloseIdentity(context.Background(), "123", true, "EpiLink", "resync")
		if err != nil || id != "alice@example.edu" {
			t.Errorf("DiscloseIdentity() = (%q, %v)", id, err)
		}
	})
}

func TestBanActive(t *testing.T) {
	now := time.Now()
	soon := now.Add(time.Minute)
	ago := now.Add(-time.Minute)

	if !(Ban{Reason: "x"}).Active(now) {
		t.Error("permanent ban must be active")
	}
	if !(Ban{ExpiresAt: &soon}).Active(now) {
		t.Error("unexpired ban must be active")
	}
	if (Ban{ExpiresAt: &ago}).Active(now) {
		t.Error("expired ban must be inactive")
	}
	if (Ban{ExpiresAt: &now}).Active(now) {
		t.Error("ban expiring exactly now must be inactive")
	}
	if (Ban{Revoked: true}).Active(now) {
		t.Error("revoked ban must be inactive")
	}
}

func TestIsLinkedAndHasVerifiedIdentity(t *testing.T) {
	s := newService(t, &mockStore{linked: true, onFile: true, identity: "alice@example.edu"})

	linked, err := s.IsLinked(context.Background(), "123")
	if err != nil || !linked {
		t.Errorf("IsLinked() = (%v, %v)", linked, err)
	}
	identified, err := s.HasVerifiedIdentity(context.Background(), "123")
	if err != nil || !identified {
		t.Errorf("HasVerifiedIdentity() = (%v, %v)", identified, err)
	}

	s = newService(t, &mockStore{linkedErr: errors.New("db down")})
	if _, err := s.IsLinked(context.Background(), "123"); err == nil {
		t.Error("expected store error to propagate")
	}
}
