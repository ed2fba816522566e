package registry_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/janken/internal/pkg/common"
	"github.com/vreid/janken/internal/pkg/game"
	"github.com/vreid/janken/internal/pkg/registry"
)

func newRegistry(t *testing.T) *registry.RegistryService {
	t.Helper()

	databaseService, err := common.OpenDatabase(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = databaseService.Shutdown()
	})

	return registry.NewRegistry(databaseService)
}

func newMatch(initiator string) *registry.Match {
	return &registry.Match{
		Initiator:  initiator,
		Asset:      "hive",
		Amount:     1000,
		Commitment: game.Commit(game.Rock, []byte(initiator)),
		Deposited:  1000,
		CreatedAt:  time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestInsertAssignsSequentialIDs(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)

	for expected := uint64(1); expected <= 3; expected++ {
		id, err := r.Insert(newMatch("alice"))
		require.NoError(t, err)
		assert.Equal(t, expected, id)
	}

	m, err := r.Get(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), m.ID)
	assert.Equal(t, registry.OpenForOpponent, m.State)
	assert.Equal(t, game.Commit(game.Rock, []byte("alice")), m.Commitment)
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)

	_, err := r.Get(42)
	require.ErrorIs(t, err, registry.ErrMatchNotFound)

	_, err = r.Update(42, func(*registry.Match) error { return nil })
	require.ErrorIs(t, err, registry.ErrMatchNotFound)
}

func TestOpenIndexFollowsState(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)

	for _, initiator := range []string{"a", "b", "c", "d"} {
		_, err := r.Insert(newMatch(initiator))
		require.NoError(t, err)
	}

	join := func(m *registry.Match) error {
		m.Opponent = "zed"
		m.State = registry.AwaitingReveal

		return nil
	}

	_, err := r.Update(2, join)
	require.NoError(t, err)

	open, err := r.ListOpen()
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3, 4}, open)

	_, err = r.Update(2, func(m *registry.Match) error {
		m.Opponent = ""
		m.State = registry.OpenForOpponent

		return nil
	})
	require.NoError(t, err)

	open, err = r.ListOpen()
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4}, open)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)

	_, err := r.Insert(newMatch("alice"))
	require.NoError(t, err)

	boom := errors.New("boom")

	_, err = r.Update(1, func(m *registry.Match) error {
		m.State = registry.AwaitingReveal
		m.Opponent = "bob"

		return boom
	})
	require.ErrorIs(t, err, boom)

	m, err := r.Get(1)
	require.NoError(t, err)
	assert.Equal(t, registry.OpenForOpponent, m.State)
	assert.Empty(t, m.Opponent)
}

func TestUpdateGuardsInvariants(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)

	_, err := r.Insert(newMatch("alice"))
	require.NoError(t, err)

	_, err = r.Update(1, func(m *registry.Match) error {
		m.Amount = 1

		return nil
	})
	require.ErrorIs(t, err, registry.ErrIllegalTransition)

	_, err = r.Update(1, func(m *registry.Match) error {
		m.Commitment = game.Commitment{}

		return nil
	})
	require.ErrorIs(t, err, registry.ErrIllegalTransition)

	_, err = r.Update(1, func(m *registry.Match) error {
		m.State = registry.Settled

		return nil
	})
	require.ErrorIs(t, err, registry.ErrIllegalTransition)

	winner := "alice"

	_, err = r.Update(1, func(m *registry.Match) error {
		m.State = registry.Settled
		m.Resolution = registry.Cancelled
		m.Winner = &winner

		return nil
	})
	require.NoError(t, err)

	other := "bob"

	_, err = r.Update(1, func(m *registry.Match) error {
		m.Winner = &other

		return nil
	})
	require.ErrorIs(t, err, registry.ErrIllegalTransition)

	_, err = r.Update(1, func(m *registry.Match) error {
		m.State = registry.OpenForOpponent

		return nil
	})
	require.ErrorIs(t, err, registry.ErrIllegalTransition)

	open, err := r.ListOpen()
	require.NoError(t, err)
	assert.Empty(t, open)
}
