package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marchhare/gametable/pkg/game"
	"github.com/marchhare/gametable/pkg/protocol"
)

// setupGame logs alice in, creates a game and returns its room.
func setupGame(t *testing.T, s *Server, c *Conn, tc *testClient, name string) *Room {
	t.Helper()
	loginRaw(t, s, c, "alice")
	dispatch(s, func() {
		s.handleMessage(c, &protocol.NewGame{Name: name, Joinable: true})
	})
	rm, ok := s.games.Get(name)
	require.True(t, ok)
	require.NotNil(t, rm.Game)
	tc.drain()
	return rm
}

func TestCreateGame(t *testing.T) {
	s := newTestServer(t)
	c, tc := newTestConn(t, s)
	rm := setupGame(t, s, c, tc, "Harbor")

	assert.Equal(t, "Harbor", rm.Name)
	assert.Equal(t, game.StateLobby, rm.Game.State())
	lk := rm.Lock()
	assert.True(t, rm.HasMemberLocked(lk, c), "creator joins their game")
	rm.Unlock(lk)
}

func TestCreateGameDuplicateName(t *testing.T) {
	s := newTestServer(t)
	c, tc := newTestConn(t, s)
	setupGame(t, s, c, tc, "Harbor")

	dispatch(s, func() {
		s.handleMessage(c, &protocol.NewGame{Name: "HARBOR", Joinable: true})
	})
	msg := tc.expect(t, protocol.TypeStatusMessage).(*protocol.StatusMessage)
	assert.Equal(t, protocol.StatusGameExists, msg.Status)
}

func TestCreateGameQuota(t *testing.T) {
	s := newTestServer(t, func(cfg *ServerConfig) { cfg.MaxGamesPerClient = 1 })
	c, tc := newTestConn(t, s)
	setupGame(t, s, c, tc, "first")

	dispatch(s, func() {
		s.handleMessage(c, &protocol.NewGame{Name: "second", Joinable: true})
	})
	msg := tc.expect(t, protocol.TypeStatusMessage).(*protocol.StatusMessage)
	assert.Equal(t, protocol.StatusQuotaExceeded, msg.Status)
	assert.Equal(t, 1, s.games.Count())
}

func TestCreateGameUnknownOption(t *testing.T) {
	s := newTestServer(t)
	c, tc := newTestConn(t, s)
	loginRaw(t, s, c, "alice")

	dispatch(s, func() {
		s.handleMessage(c, &protocol.NewGameWithOptionsRequest{
			Nickname: "alice",
			Game:     "exotic",
			Options:  []protocol.GameOption{{Key: "ZZ", Value: "1"}},
		})
	})
	msg := tc.expect(t, protocol.TypeStatusMessage).(*protocol.StatusMessage)
	assert.Equal(t, protocol.StatusOptionUnknown, msg.Status)
	assert.Equal(t, protocol.VersionLatest, msg.Detail)
	assert.Equal(t, 0, s.games.Count())
}

func TestCreateGameWithOptions(t *testing.T) {
	s := newTestServer(t)
	c, tc := newTestConn(t, s)
	c.setVersion(protocol.VersionLatest, true)
	loginRaw(t, s, c, "alice")

	dispatch(s, func() {
		s.handleMessage(c, &protocol.NewGameWithOptionsRequest{
			Nickname: "alice",
			Game:     "sixer",
			Options:  []protocol.GameOption{{Key: "PL", Value: "6"}},
		})
	})
	tc.drain()
	rm, ok := s.games.Get("sixer")
	require.True(t, ok)
	assert.Equal(t, 6, rm.Game.MaxPlayers())
	assert.Equal(t, protocol.VersionGameOptions, rm.MinVersion)
}

func TestCreateGameOptionsNeedModernClient(t *testing.T) {
	s := newTestServer(t)
	c, tc := newTestConn(t, s)
	c.setVersion(protocol.VersionFallback, true)
	loginRaw(t, s, c, "alice")

	dispatch(s, func() {
		s.handleMessage(c, &protocol.NewGameWithOptionsRequest{
			Nickname: "alice",
			Game:     "sixer",
			Options:  []protocol.GameOption{{Key: "PL", Value: "6"}},
		})
	})
	msg := tc.expect(t, protocol.TypeStatusMessage).(*protocol.StatusMessage)
	assert.Equal(t, protocol.StatusVersionTooOld, msg.Status)
	assert.Equal(t, protocol.VersionGameOptions, msg.Detail)
	assert.Equal(t, 0, s.games.Count())
}

func TestGameAnnouncementBanding(t *testing.T) {
	s := newTestServer(t)

	modern, modernTC := newTestConn(t, s)
	modern.setVersion(protocol.VersionGameOptions, true)
	loginRaw(t, s, modern, "modern")
	modernTC.drain()

	middle, middleTC := newTestConn(t, s)
	middle.setVersion(protocol.VersionUnjoinableMarker, true)
	loginRaw(t, s, middle, "middle")
	middleTC.drain()

	ancient, ancientTC := newTestConn(t, s)
	ancient.setVersion(1, true)
	loginRaw(t, s, ancient, "ancient")
	ancientTC.drain()

	creator, creatorTC := newTestConn(t, s)
	creator.setVersion(protocol.VersionLatest, true)
	loginRaw(t, s, creator, "creator")
	dispatch(s, func() {
		s.handleMessage(creator, &protocol.NewGameWithOptionsRequest{
			Nickname: "creator",
			Game:     "optioned",
			Options:  []protocol.GameOption{{Key: "N7", Value: "t"}},
		})
	})
	creatorTC.drain()

	full := modernTC.expect(t, protocol.TypeNewGameWithOptions).(*protocol.NewGameWithOptions)
	assert.Equal(t, "optioned", full.Name)
	assert.Equal(t, protocol.VersionGameOptions, full.MinVersion)
	require.Len(t, full.Options, 1)

	bare := middleTC.expect(t, protocol.TypeNewGame).(*protocol.NewGame)
	assert.Equal(t, "optioned", bare.Name)
	assert.False(t, bare.Joinable, "too old for the options, marked unjoinable")

	// The ancient client must hear nothing about a game it cannot join.
	dispatch(s, func() {
		s.handleMessage(creator, &protocol.NewGame{Name: "plain", Joinable: true})
	})
	plain := ancientTC.expect(t, protocol.TypeNewGame).(*protocol.NewGame)
	assert.Equal(t, "plain", plain.Name, "optioned game skipped, plain game announced")
	assert.True(t, plain.Joinable)
}

func TestAnnounceGameReachesLoneAncientBand(t *testing.T) {
	s := newTestServer(t)
	c, tc := newTestConn(t, s)
	c.setVersion(1, true)
	loginRaw(t, s, c, "ancient")

	dispatch(s, func() {
		s.handleMessage(c, &protocol.NewGame{Name: "plain", Joinable: true})
	})
	msg := tc.expect(t, protocol.TypeNewGame).(*protocol.NewGame)
	assert.Equal(t, "plain", msg.Name)
	assert.True(t, msg.Joinable)
}

func TestJoinGameVersionGate(t *testing.T) {
	s := newTestServer(t)
	creator, creatorTC := newTestConn(t, s)
	creator.setVersion(protocol.VersionLatest, true)
	loginRaw(t, s, creator, "creator")
	dispatch(s, func() {
		s.handleMessage(creator, &protocol.NewGameWithOptionsRequest{
			Nickname: "creator",
			Game:     "optioned",
			Options:  []protocol.GameOption{{Key: "N7", Value: "t"}},
		})
	})
	creatorTC.drain()

	old, oldTC := newTestConn(t, s)
	old.setVersion(protocol.VersionFallback, true)
	dispatch(s, func() {
		s.handleMessage(old, &protocol.JoinGame{Nickname: "oldtimer", Game: "optioned"})
	})
	msg := oldTC.expect(t, protocol.TypeStatusMessage).(*protocol.StatusMessage)
	assert.Equal(t, protocol.StatusVersionTooOld, msg.Status)
	assert.Equal(t, protocol.VersionGameOptions, msg.Detail)
}

func TestJoinGameBringsStateUpToDate(t *testing.T) {
	s := newTestServer(t)
	c, tc := newTestConn(t, s)
	rm := setupGame(t, s, c, tc, "Harbor")
	dispatch(s, func() {
		lk := rm.Lock()
		defer rm.Unlock(lk)
		s.seatPlayer(rm, lk, c, 1, false)
	})

	joiner, jtc := newTestConn(t, s)
	dispatch(s, func() {
		s.handleMessage(joiner, &protocol.JoinGame{Nickname: "bob", Game: "Harbor"})
	})

	members := jtc.expect(t, protocol.TypeGameMembers).(*protocol.GameMembers)
	assert.ElementsMatch(t, []string{"alice", "bob"}, members.Members)
	sit := jtc.expect(t, protocol.TypeSitDown).(*protocol.SitDown)
	assert.Equal(t, "alice", sit.Nickname)
	assert.Equal(t, 1, sit.Seat)
	state := jtc.expect(t, protocol.TypeGameState).(*protocol.GameState)
	assert.Equal(t, int(game.StateLobby), state.State)
}

func TestLeaveGameIdempotent(t *testing.T) {
	s := newTestServer(t)
	c, tc := newTestConn(t, s)
	setupGame(t, s, c, tc, "Harbor")

	dispatch(s, func() {
		s.handleMessage(c, &protocol.LeaveGame{Nickname: "alice", Game: "Harbor"})
		// Leaving again, and leaving a gone game, are no-ops.
		s.handleMessage(c, &protocol.LeaveGame{Nickname: "alice", Game: "Harbor"})
		s.handleMessage(c, &protocol.LeaveGame{Nickname: "alice", Game: "nosuch"})
	})
	assert.Equal(t, 0, s.games.Count(), "empty game is destroyed")
}

func TestSitDownAndSeatLock(t *testing.T) {
	s := newTestServer(t)
	c, tc := newTestConn(t, s)
	rm := setupGame(t, s, c, tc, "Harbor")

	dispatch(s, func() {
		s.handleMessage(c, &protocol.SitDown{Game: "Harbor", Nickname: "alice", Seat: 0})
	})
	sit := tc.expect(t, protocol.TypeSitDown).(*protocol.SitDown)
	assert.Equal(t, 0, sit.Seat)

	dispatch(s, func() {
		s.handleMessage(c, &protocol.SetSeatLock{Game: "Harbor", Seat: 2, Locked: true})
	})
	lock := tc.expect(t, protocol.TypeSetSeatLock).(*protocol.SetSeatLock)
	assert.True(t, lock.Locked)

	st, err := rm.Game.SeatAt(2)
	require.NoError(t, err)
	assert.True(t, st.Locked)
}

func TestSitDownOccupiedSeatRefused(t *testing.T) {
	s := newTestServer(t)
	c, tc := newTestConn(t, s)
	setupGame(t, s, c, tc, "Harbor")
	dispatch(s, func() {
		s.handleMessage(c, &protocol.SitDown{Game: "Harbor", Nickname: "alice", Seat: 0})
	})
	tc.drain()

	bob, btc := newTestConn(t, s)
	dispatch(s, func() {
		s.handleMessage(bob, &protocol.JoinGame{Nickname: "bob", Game: "Harbor"})
	})
	btc.drain()
	dispatch(s, func() {
		s.handleMessage(bob, &protocol.SitDown{Game: "Harbor", Nickname: "bob", Seat: 0})
	})
	msg := btc.expect(t, protocol.TypeStatusMessage).(*protocol.StatusMessage)
	assert.Equal(t, protocol.StatusActionFailed, msg.Status)
}

// twoPlayerGame seats alice and bob, locks the rest and starts the game.
func twoPlayerGame(t *testing.T, s *Server) (*Room, *Conn, *testClient, *Conn, *testClient) {
	t.Helper()
	alice, atc := newTestConn(t, s)
	alice.setVersion(protocol.VersionLatest, true)
	rm := setupGame(t, s, alice, atc, "Harbor")

	bob, btc := newTestConn(t, s)
	bob.setVersion(protocol.VersionLatest, true)
	dispatch(s, func() {
		s.handleMessage(bob, &protocol.JoinGame{Nickname: "bob", Game: "Harbor"})
	})
	waitFor(t, func() bool { return bob.Name() == "bob" })

	dispatch(s, func() {
		s.handleMessage(alice, &protocol.SitDown{Game: "Harbor", Nickname: "alice", Seat: 0})
		s.handleMessage(bob, &protocol.SitDown{Game: "Harbor", Nickname: "bob", Seat: 1})
		s.handleMessage(alice, &protocol.SetSeatLock{Game: "Harbor", Seat: 2, Locked: true})
		s.handleMessage(alice, &protocol.SetSeatLock{Game: "Harbor", Seat: 3, Locked: true})
		s.handleMessage(alice, &protocol.StartGame{Game: "Harbor"})
	})
	waitFor(t, func() bool { return rm.Game.State() == game.StatePlay })
	atc.drain()
	btc.drain()
	return rm, alice, atc, bob, btc
}

func TestStartGameAndTurnRotation(t *testing.T) {
	s := newTestServer(t)
	rm, alice, atc, bob, _ := twoPlayerGame(t, s)

	require.Equal(t, 0, rm.Game.CurrentSeat())

	dispatch(s, func() {
		s.handleMessage(alice, &protocol.EndTurn{Game: "Harbor"})
	})
	turn := atc.expect(t, protocol.TypeTurn).(*protocol.Turn)
	assert.Equal(t, 1, turn.Seat)

	// Not bob's place to end alice's turn.
	dispatch(s, func() {
		s.handleMessage(alice, &protocol.EndTurn{Game: "Harbor"})
	})
	assert.Equal(t, 1, rm.Game.CurrentSeat(), "only the current player may end the turn")

	dispatch(s, func() {
		s.handleMessage(bob, &protocol.EndTurn{Game: "Harbor"})
	})
	turn = atc.expect(t, protocol.TypeTurn).(*protocol.Turn)
	assert.Equal(t, 0, turn.Seat)
}

func TestStartGameWithoutRobotsTellsPlayers(t *testing.T) {
	s := newTestServer(t)
	alice, atc := newTestConn(t, s)
	rm := setupGame(t, s, alice, atc, "Harbor")
	dispatch(s, func() {
		s.handleMessage(alice, &protocol.SitDown{Game: "Harbor", Nickname: "alice", Seat: 0})
		s.handleMessage(alice, &protocol.StartGame{Game: "Harbor"})
	})
	msg := atc.expect(t, protocol.TypeTextMsg).(*protocol.TextMsg)
	assert.Contains(t, msg.Text, "No robots")
	assert.Equal(t, game.StateLobby, rm.Game.State())
}

func TestStartGameRobotShortfallTellsPlayers(t *testing.T) {
	s := newTestServer(t)
	addRobot(t, s, "Droid 1")
	alice, atc := newTestConn(t, s)
	rm := setupGame(t, s, alice, atc, "Harbor")

	dispatch(s, func() {
		s.handleMessage(alice, &protocol.SitDown{Game: "Harbor", Nickname: "alice", Seat: 0})
		s.handleMessage(alice, &protocol.StartGame{Game: "Harbor"})
	})
	msg := atc.expect(t, protocol.TypeTextMsg).(*protocol.TextMsg)
	assert.Contains(t, msg.Text, "Not enough robots")
	assert.Equal(t, game.StateLobby, rm.Game.State())

	var pending bool
	dispatch(s, func() {
		lk := rm.Lock()
		pending = rm.startRequested
		rm.Unlock(lk)
	})
	assert.True(t, pending, "the asked robot still counts toward the start")
}

func TestDiscardFlow(t *testing.T) {
	s := newTestServer(t)
	rm, alice, atc, _, _ := twoPlayerGame(t, s)

	dispatch(s, func() {
		lk := rm.Lock()
		defer rm.Unlock(lk)
		rm.Game.SetPendingDiscard(0, 4)
	})

	// A wrong-sized discard is answered with a fresh request.
	dispatch(s, func() {
		s.handleMessage(alice, &protocol.Discard{Game: "Harbor", Resources: protocol.ResourceSet{1, 0, 0, 0, 0}})
	})
	req := atc.expect(t, protocol.TypeDiscardRequest).(*protocol.DiscardRequest)
	assert.Equal(t, 4, req.Count)
	assert.Equal(t, 4, rm.Game.PendingDiscard(0))

	dispatch(s, func() {
		s.handleMessage(alice, &protocol.Discard{Game: "Harbor", Resources: protocol.ResourceSet{2, 1, 1, 0, 0}})
	})
	atc.expect(t, protocol.TypeDiscard)
	assert.Equal(t, 0, rm.Game.PendingDiscard(0))
}

func TestDeleteGameOwnerOnly(t *testing.T) {
	s := newTestServer(t)
	alice, atc := newTestConn(t, s)
	setupGame(t, s, alice, atc, "Harbor")

	mallory, mtc := newTestConn(t, s)
	loginRaw(t, s, mallory, "mallory")
	dispatch(s, func() {
		s.handleMessage(mallory, &protocol.DeleteGame{Game: "Harbor"})
	})
	msg := mtc.expect(t, protocol.TypeStatusMessage).(*protocol.StatusMessage)
	assert.Equal(t, protocol.StatusActionFailed, msg.Status)
	assert.Equal(t, 1, s.games.Count())

	dispatch(s, func() {
		s.handleMessage(alice, &protocol.DeleteGame{Game: "Harbor"})
	})
	assert.Equal(t, 0, s.games.Count())
}

func TestTextMsgRoutingAndServerVoice(t *testing.T) {
	s := newTestServer(t)
	alice, atc := newTestConn(t, s)
	login(t, s, alice, atc, "alice")

	bob, btc := newTestConn(t, s)
	login(t, s, bob, btc, "bob")
	atc.drain()

	dispatch(s, func() {
		s.handleMessage(alice, &protocol.TextMsg{Room: "lobby", Nickname: "alice", Text: "hello"})
	})
	msg := btc.expect(t, protocol.TypeTextMsg).(*protocol.TextMsg)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "alice", msg.Nickname)

	// Forged server voice goes nowhere.
	dispatch(s, func() {
		s.handleMessage(alice, &protocol.TextMsg{Room: "lobby", Nickname: serverName, Text: "fake"})
	})
	dispatch(s, func() {
		s.handleMessage(alice, &protocol.TextMsg{Room: "lobby", Nickname: "alice", Text: "real"})
	})
	msg = btc.expect(t, protocol.TypeTextMsg).(*protocol.TextMsg)
	assert.Equal(t, "real", msg.Text)
}
