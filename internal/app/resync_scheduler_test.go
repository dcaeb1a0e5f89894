package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epilink/epilink/pkg/domain/identity"
	"github.com/epilink/epilink/pkg/logger"
)

type mockUserLister struct {
	users []string
	err   error
}

func (m *mockUserLister) ListLinkedUsers(_ context.Context) ([]string, error) {
	return m.users, m.err
}

func newTestScheduler(t *testing.T, svc *RoleService, users UserLister) *ResyncScheduler {
	t.Helper()
	s, err := NewResyncScheduler(svc, users, "@hourly", 4, logger.Nop())
	require.NoError(t, err)
	return s
}

func TestNewResyncScheduler_Validation(t *testing.T) {
	svc := newTestService(t, &mockOracle{}, &mockDisclosure{}, newMockFacade(), nil)
	lister := &mockUserLister{}

	_, err := NewResyncScheduler(nil, lister, "@hourly", 4, logger.Nop())
	assert.Error(t, err)

	_, err = NewResyncScheduler(svc, nil, "@hourly", 4, logger.Nop())
	assert.Error(t, err)

	_, err = NewResyncScheduler(svc, lister, "", 4, logger.Nop())
	assert.Error(t, err)

	_, err = NewResyncScheduler(svc, lister, "@hourly", 0, logger.Nop())
	assert.Error(t, err)
}

func TestResyncScheduler_StartRejectsBadSchedule(t *testing.T) {
	svc := newTestService(t, &mockOracle{}, &mockDisclosure{}, newMockFacade(), nil)
	s, err := NewResyncScheduler(svc, &mockUserLister{}, "not a schedule", 4, logger.Nop())
	require.NoError(t, err)

	assert.Error(t, s.Start())
}

func TestResyncScheduler_RunCycle(t *testing.T) {
	oracle := &mockOracle{linked: true, elig: identity.Allowed(), identified: false}
	facade := newMockFacade()
	facade.members[guildA] = true
	facade.members[guildB] = true
	mediator := newScriptedMediator()
	svc := newTestService(t, oracle, &mockDisclosure{}, facade, mediator)

	s := newTestScheduler(t, svc, &mockUserLister{users: []string{"u1", "u2", "u3"}})
	s.runCycle()

	assert.ElementsMatch(t, []string{"u1", "u2", "u3"}, mediator.invalidated)
	// Every user touches both monitored guilds.
	assert.Len(t, facade.manageCallsFor(guildA), 3)
	assert.Len(t, facade.manageCallsFor(guildB), 3)
}

func TestResyncScheduler_RunCycleSurvivesPerUserFailure(t *testing.T) {
	oracle := &mockOracle{linked: true, linkedErr: errors.New("store down")}
	svc := newTestService(t, oracle, &mockDisclosure{}, newMockFacade(), nil)

	s := newTestScheduler(t, svc, &mockUserLister{users: []string{"u1", "u2"}})
	s.runCycle() // must not panic or abort
}

func TestResyncScheduler_RunCycleListFailure(t *testing.T) {
	svc := newTestService(t, &mockOracle{}, &mockDisclosure{}, newMockFacade(), nil)
	s := newTestScheduler(t, svc, &mockUserLister{err: errors.New("store down")})
	s.runCycle() // logged and dropped; next cycle retries
}
