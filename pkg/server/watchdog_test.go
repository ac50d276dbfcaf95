package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marchhare/gametable/pkg/game"
	"github.com/marchhare/gametable/pkg/protocol"
)

func TestWatchdogForcesEndOfStuckTurn(t *testing.T) {
	s := newTestServer(t)
	rm, _, atc, _, _ := twoPlayerGame(t, s)
	require.Equal(t, 0, rm.Game.CurrentSeat())

	backdate(s, rm, s.config.TurnInactivity+time.Second)
	dispatch(s, s.watchdogScan)

	forced := atc.expect(t, protocol.TypeForcedEndTurn).(*protocol.ForcedEndTurn)
	assert.Equal(t, 0, forced.Seat)
	assert.Equal(t, 1, rm.Game.CurrentSeat())
}

func TestWatchdogLeavesActiveTurnAlone(t *testing.T) {
	s := newTestServer(t)
	rm, _, _, _, _ := twoPlayerGame(t, s)

	dispatch(s, s.watchdogScan)
	assert.Equal(t, 0, rm.Game.CurrentSeat())
}

func TestWatchdogTradeOfferEarnsPatience(t *testing.T) {
	s := newTestServer(t)
	rm, _, _, _, _ := twoPlayerGame(t, s)

	dispatch(s, func() {
		lk := rm.Lock()
		rm.Game.SetTradeOfferOpen(true)
		rm.Unlock(lk)
	})
	// Past the turn limit, short of the trade limit.
	backdate(s, rm, s.config.TurnInactivity+10*time.Millisecond)
	dispatch(s, s.watchdogScan)
	assert.Equal(t, 0, rm.Game.CurrentSeat(), "open trade offer defers the force")

	backdate(s, rm, s.config.TradeOfferInactivity+time.Second)
	dispatch(s, s.watchdogScan)
	assert.Equal(t, 1, rm.Game.CurrentSeat())
}

func TestWatchdogForcesOverdueDiscards(t *testing.T) {
	s := newTestServer(t)
	rm, _, atc, _, _ := twoPlayerGame(t, s)

	dispatch(s, func() {
		lk := rm.Lock()
		rm.Game.SetPendingDiscard(1, 5)
		rm.Unlock(lk)
	})
	backdate(s, rm, s.config.DiscardInactivity+time.Second)
	dispatch(s, s.watchdogScan)

	forced := atc.expect(t, protocol.TypeDiscard).(*protocol.Discard)
	assert.Equal(t, 5, forced.Resources.Total())
	assert.Equal(t, 0, rm.Game.PendingDiscard(1))
	assert.Equal(t, 0, rm.Game.CurrentSeat(), "discard handled without ending the turn")
}

func TestWatchdogResolvesStaleResetVote(t *testing.T) {
	s := newTestServer(t)
	rm, alice, atc, _, btc := twoPlayerGame(t, s)

	dispatch(s, func() {
		s.handleMessage(alice, &protocol.ResetBoardRequest{Game: "Harbor"})
	})
	btc.expect(t, protocol.TypeResetBoardVoteRequest)
	require.NotNil(t, rm.resetVote)

	dispatch(s, func() {
		rm.resetVote.started = time.Now().Add(-s.config.ResetVoteTimeout - time.Second)
	})
	dispatch(s, s.watchdogScan)

	atc.expect(t, protocol.TypeResetBoardReject)
	assert.Nil(t, rm.resetVote)
	assert.Equal(t, game.StatePlay, rm.Game.State(), "timed-out vote changes nothing")
}

func TestWatchdogDestroysExpiredGame(t *testing.T) {
	s := newTestServer(t)
	rm, _, atc, _, _ := twoPlayerGame(t, s)

	dispatch(s, func() {
		lk := rm.Lock()
		rm.Game.SetExpires(time.Now().Add(-time.Minute))
		rm.Unlock(lk)
	})
	dispatch(s, s.watchdogScan)

	atc.expect(t, protocol.TypeDeleteGame)
	assert.Equal(t, 0, s.games.Count())
}

func TestWatchdogEndsRobotOnlyGame(t *testing.T) {
	s := newTestServer(t)
	rm, alice, _, bob, _ := twoPlayerGame(t, s)
	robot, _ := addRobot(t, s, "Droid 1")
	dispatch(s, func() {
		lk := rm.Lock()
		rm.addMemberLocked(lk, robot)
		rm.Game.SetSeatLock(2, false)
		s.seatPlayer(rm, lk, robot, 2, true)
		rm.Unlock(lk)
	})

	dispatch(s, func() {
		s.handleMessage(alice, &protocol.LeaveGame{Nickname: "alice", Game: "Harbor"})
		s.handleMessage(bob, &protocol.LeaveGame{Nickname: "bob", Game: "Harbor"})
	})
	dispatch(s, s.watchdogScan)
	assert.Equal(t, 0, s.games.Count(), "robot-only game is shut down")
}

func TestWatchdogSparesRobotGameWithObserver(t *testing.T) {
	s := newTestServer(t)
	rm, alice, _, bob, _ := twoPlayerGame(t, s)

	obs, _ := newTestConn(t, s)
	dispatch(s, func() {
		s.handleMessage(obs, &protocol.JoinGame{Nickname: "carol", Game: "Harbor"})
	})
	waitFor(t, func() bool { return obs.Name() == "carol" })

	r1, _ := addRobot(t, s, "Droid 1")
	r2, _ := addRobot(t, s, "Droid 2")
	dispatch(s, func() {
		lk := rm.Lock()
		rm.Game.StandUp(0)
		rm.Game.StandUp(1)
		rm.addMemberLocked(lk, r1)
		rm.addMemberLocked(lk, r2)
		s.seatPlayer(rm, lk, r1, 0, true)
		s.seatPlayer(rm, lk, r2, 1, true)
		rm.removeMemberLocked(lk, alice)
		rm.removeMemberLocked(lk, bob)
		rm.Unlock(lk)
	})

	dispatch(s, s.watchdogScan)
	_, ok := s.games.Get("Harbor")
	assert.True(t, ok, "robot-held game with a human observer survives")
	assert.Equal(t, 1, s.games.Count())
	assert.Equal(t, game.StatePlay, rm.Game.State())
}

// backdate rewrites the game's last-action time.
func backdate(s *Server, rm *Room, age time.Duration) {
	dispatch(s, func() {
		lk := rm.Lock()
		rm.Game.SetLastAction(time.Now().Add(-age))
		rm.Unlock(lk)
	})
}
