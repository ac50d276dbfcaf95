package game

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marchhare/gametable/pkg/protocol"
)

func TestNewGameDefaults(t *testing.T) {
	g := New("G", "alice", nil, 0, protocol.VersionFallback, false)

	assert.Equal(t, DefaultMaxPlayers, g.MaxPlayers())
	assert.Equal(t, StateLobby, g.State())
	assert.Equal(t, -1, g.CurrentSeat())
	assert.False(t, g.Expires().IsZero())
	assert.True(t, g.Expires().Sub(g.Created()) >= MinLifetime,
		"expiry must be at least the minimum lifetime past creation")
}

func TestPracticeGameNeverExpires(t *testing.T) {
	g := New("P", "alice", nil, 4, protocol.VersionFallback, true)
	assert.True(t, g.Expires().IsZero())
	assert.False(t, g.Expired(time.Now().Add(1000*time.Hour)))

	// AddMinutes is a no-op for practice games.
	g.AddMinutes(30)
	assert.True(t, g.Expires().IsZero())
}

func TestAddMinutes(t *testing.T) {
	g := New("G", "alice", nil, 4, protocol.VersionFallback, false)
	before := g.Expires()
	g.AddMinutes(30)
	assert.Equal(t, before.Add(30*time.Minute), g.Expires())
}

func TestSitDownAndStandUp(t *testing.T) {
	g := New("G", "alice", nil, 3, protocol.VersionFallback, false)

	require.NoError(t, g.SitDown(0, "alice", false))
	assert.ErrorIs(t, g.SitDown(0, "bob", false), ErrSeatOccupied)
	assert.ErrorIs(t, g.SitDown(5, "bob", false), ErrSeatOutOfRange)

	require.NoError(t, g.SetSeatLock(1, true))
	assert.ErrorIs(t, g.SitDown(1, "bob", false), ErrSeatLocked)

	require.NoError(t, g.SitDown(2, "robot 1", true))
	assert.Equal(t, 1, g.HumanCount())
	assert.Equal(t, 1, g.RobotCount())
	assert.Equal(t, 0, g.SeatOf("alice"))
	assert.Equal(t, -1, g.SeatOf("nobody"))

	require.NoError(t, g.StandUp(0))
	assert.ErrorIs(t, g.StandUp(0), ErrSeatVacant)
	assert.Equal(t, 0, g.HumanCount())

	// Lock survives the occupant leaving.
	seat, err := g.SeatAt(1)
	require.NoError(t, err)
	assert.True(t, seat.Locked)
}

func TestNextOccupiedSeat(t *testing.T) {
	g := New("G", "a", nil, 4, protocol.VersionFallback, false)
	require.NoError(t, g.SitDown(0, "a", false))
	require.NoError(t, g.SitDown(2, "b", false))

	assert.Equal(t, 2, g.NextOccupiedSeat(0))
	assert.Equal(t, 0, g.NextOccupiedSeat(2))
	assert.Equal(t, 0, g.NextOccupiedSeat(3))

	require.NoError(t, g.StandUp(2))
	assert.Equal(t, -1, g.NextOccupiedSeat(0), "no other occupied seat")
}

func TestPendingDiscards(t *testing.T) {
	g := New("G", "a", nil, 4, protocol.VersionFallback, false)
	g.SetPendingDiscard(1, 4)
	assert.Equal(t, 4, g.PendingDiscard(1))
	assert.Equal(t, 0, g.PendingDiscard(2))

	g.SetPendingDiscard(1, 0)
	assert.Equal(t, 0, g.PendingDiscard(1))
	assert.Empty(t, g.PendingDiscards())
}

func TestBasicRulesStartAndRotate(t *testing.T) {
	r := NewBasicRules(rand.New(rand.NewSource(1)))
	g := New("G", "a", nil, 4, protocol.VersionFallback, false)

	assert.ErrorIs(t, r.Start(g), ErrTooFewPlayers)

	require.NoError(t, g.SitDown(0, "a", false))
	require.NoError(t, g.SitDown(1, "robot 1", true))
	require.NoError(t, g.SitDown(3, "robot 2", true))
	require.NoError(t, r.Start(g))

	assert.Equal(t, StatePlay, g.State())
	assert.Equal(t, 0, g.CurrentSeat())
	assert.ErrorIs(t, r.Start(g), ErrNotInLobby)

	require.NoError(t, r.EndTurn(g))
	assert.Equal(t, 1, g.CurrentSeat())
	require.NoError(t, r.EndTurn(g))
	assert.Equal(t, 3, g.CurrentSeat())
	require.NoError(t, r.EndTurn(g))
	assert.Equal(t, 0, g.CurrentSeat(), "turn order wraps")
}

func TestBasicRulesForceEndTurnWithDiscard(t *testing.T) {
	r := NewBasicRules(rand.New(rand.NewSource(42)))
	g := New("G", "a", nil, 4, protocol.VersionFallback, false)
	require.NoError(t, g.SitDown(0, "a", false))
	require.NoError(t, g.SitDown(1, "b", false))
	require.NoError(t, r.Start(g))

	g.SetPendingDiscard(0, 5)
	res, err := r.ForceEndTurn(g)
	require.NoError(t, err)

	assert.True(t, res.Hidden, "mid-discard forced end hides resource types")
	assert.Equal(t, 5, res.Returned.Total())
	assert.Equal(t, 0, g.PendingDiscard(0))
	assert.Equal(t, 1, g.CurrentSeat())
}

func TestBasicRulesForceEndTurnLastPlayer(t *testing.T) {
	r := NewBasicRules(rand.New(rand.NewSource(7)))
	g := New("G", "a", nil, 4, protocol.VersionFallback, false)
	require.NoError(t, g.SitDown(0, "a", false))
	require.NoError(t, g.SitDown(1, "b", false))
	require.NoError(t, r.Start(g))
	require.NoError(t, g.StandUp(1))

	_, err := r.ForceEndTurn(g)
	require.NoError(t, err)
	assert.Equal(t, StateOver, g.State(), "no next seat means the game ends")
	assert.True(t, r.IsOver(g))
}

func TestBasicRulesForceDiscard(t *testing.T) {
	r := NewBasicRules(rand.New(rand.NewSource(3)))
	g := New("G", "a", nil, 4, protocol.VersionFallback, false)
	g.SetPendingDiscard(2, 3)

	rs, err := r.ForceDiscard(g, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, rs.Total())
	assert.Equal(t, 0, g.PendingDiscard(2))

	rs, err = r.ForceDiscard(g, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, rs.Total(), "nothing owed, nothing discarded")
}

func TestBasicRulesResetBoard(t *testing.T) {
	r := NewBasicRules(rand.New(rand.NewSource(9)))
	g := New("G", "a", nil, 4, protocol.VersionFallback, false)
	require.NoError(t, g.SitDown(0, "a", false))
	require.NoError(t, g.SitDown(1, "b", false))
	require.NoError(t, r.Start(g))
	g.SetPendingDiscard(1, 2)

	require.NoError(t, r.ResetBoard(g))
	assert.Equal(t, StateLobby, g.State())
	assert.Equal(t, -1, g.CurrentSeat())
	assert.Empty(t, g.PendingDiscards())
	assert.Equal(t, 0, g.SeatOf("a"), "seat assignments survive a reset")
	assert.Equal(t, 1, g.SeatOf("b"))
}
