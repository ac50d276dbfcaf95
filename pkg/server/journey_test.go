package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marchhare/gametable/pkg/game"
	"github.com/marchhare/gametable/pkg/protocol"
)

// journeyClient is a real TCP client speaking the wire protocol.
type journeyClient struct {
	t    *testing.T
	conn net.Conn
	r    *protocol.Reader
}

func dialJourney(t *testing.T, s *Server) *journeyClient {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &journeyClient{t: t, conn: conn, r: protocol.NewReader(conn)}
}

func (jc *journeyClient) send(msg protocol.Message) {
	jc.t.Helper()
	require.NoError(jc.t, protocol.WriteMessage(jc.conn, msg))
}

// expect reads until a message of type want arrives.
func (jc *journeyClient) expect(want int) protocol.Message {
	jc.t.Helper()
	jc.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		msg, err := jc.r.ReadMessage()
		require.NoError(jc.t, err, "waiting for message type %d", want)
		if msg.Type() == want {
			return msg
		}
	}
}

func startJourneyServer(t *testing.T, mutate ...func(*ServerConfig)) *Server {
	t.Helper()
	cfg := testConfig()
	// Real sockets are slower than net.Pipe; keep the background timers
	// out of the way unless a test opts back in.
	cfg.VersionGuessTimeout = 5 * time.Second
	cfg.TurnInactivity = time.Hour
	for _, fn := range mutate {
		fn(&cfg)
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)
	return s
}

// TestJourneyTwoPlayersPlayAGame walks the full happy path over TCP: two
// clients connect, negotiate versions, create and join a game, seat
// themselves, start, trade turns, chat and leave.
func TestJourneyTwoPlayersPlayAGame(t *testing.T) {
	s := startJourneyServer(t)

	alice := dialJourney(t, s)
	greeting := alice.expect(protocol.TypeVersion).(*protocol.Version)
	assert.Equal(t, protocol.VersionLatest, greeting.Vers)
	alice.send(&protocol.Version{Vers: protocol.VersionLatest, Build: "test"})

	// Creating a game needs a bound name; bind through a channel join.
	alice.send(&protocol.JoinChannel{Nickname: "alice", Channel: "lobby"})
	alice.expect(protocol.TypeChannelMembers)
	alice.send(&protocol.NewGame{Name: "Journey", Joinable: true})
	members := alice.expect(protocol.TypeGameMembers).(*protocol.GameMembers)
	assert.Equal(t, []string{"alice"}, members.Members)

	bob := dialJourney(t, s)
	bob.expect(protocol.TypeVersion)
	bob.send(&protocol.Version{Vers: protocol.VersionLatest, Build: "test"})
	bob.send(&protocol.JoinGame{Nickname: "bob", Game: "Journey"})
	bmembers := bob.expect(protocol.TypeGameMembers).(*protocol.GameMembers)
	assert.ElementsMatch(t, []string{"alice", "bob"}, bmembers.Members)

	alice.send(&protocol.SitDown{Game: "Journey", Nickname: "alice", Seat: 0})
	bob.send(&protocol.SitDown{Game: "Journey", Nickname: "bob", Seat: 1})
	alice.send(&protocol.SetSeatLock{Game: "Journey", Seat: 2, Locked: true})
	alice.send(&protocol.SetSeatLock{Game: "Journey", Seat: 3, Locked: true})
	alice.send(&protocol.StartGame{Game: "Journey"})

	alice.expect(protocol.TypeStartGame)
	turn := alice.expect(protocol.TypeTurn).(*protocol.Turn)
	assert.Equal(t, 0, turn.Seat)

	bob.expect(protocol.TypeStartGame)
	bob.expect(protocol.TypeTurn)

	alice.send(&protocol.TextMsg{Room: "Journey", Nickname: "alice", Text: "good luck!"})
	chat := bob.expect(protocol.TypeTextMsg).(*protocol.TextMsg)
	assert.Equal(t, "good luck!", chat.Text)
	assert.Equal(t, "alice", chat.Nickname)

	alice.send(&protocol.EndTurn{Game: "Journey"})
	turn2 := bob.expect(protocol.TypeTurn).(*protocol.Turn)
	assert.Equal(t, 1, turn2.Seat)

	bob.send(&protocol.LeaveGame{Nickname: "bob", Game: "Journey"})
	left := alice.expect(protocol.TypeLeaveGame).(*protocol.LeaveGame)
	assert.Equal(t, "bob", left.Nickname)
}

// TestJourneyNameConflict covers a second connection wanting a live name:
// it gets told to wait, and the holder is probed.
func TestJourneyNameConflict(t *testing.T) {
	s := startJourneyServer(t)

	first := dialJourney(t, s)
	first.expect(protocol.TypeVersion)
	first.send(&protocol.Version{Vers: protocol.VersionLatest, Build: "test"})
	first.send(&protocol.JoinChannel{Nickname: "carol", Channel: "lobby"})
	first.expect(protocol.TypeChannelMembers)

	second := dialJourney(t, s)
	second.expect(protocol.TypeVersion)
	second.send(&protocol.Version{Vers: protocol.VersionLatest, Build: "test"})
	second.send(&protocol.JoinChannel{Nickname: "carol", Channel: "lobby"})

	status := second.expect(protocol.TypeStatusMessage).(*protocol.StatusMessage)
	assert.Equal(t, protocol.StatusNameInUse, status.Status)
	assert.Greater(t, status.Detail, 0)

	first.expect(protocol.TypeServerPing)

	// Leave the probe unanswered past the same-origin tier, then retry: the
	// name transfers and the silent holder gets a goodbye.
	time.Sleep(2 * s.config.ReclaimSameOriginTimeout)
	second.send(&protocol.JoinChannel{Nickname: "carol", Channel: "lobby"})
	second.expect(protocol.TypeChannelMembers)
	first.expect(protocol.TypeRejectConnection)
}

// scriptRobot connects a minimal robot client: it identifies with the pool
// cookie and answers every join request by joining the game. The server
// seats it against the recorded ask.
func scriptRobot(t *testing.T, s *Server, name string) {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	r := protocol.NewReader(conn)
	require.NoError(t, protocol.WriteMessage(conn, &protocol.Version{Vers: protocol.VersionLatest, Build: "journeybot"}))
	require.NoError(t, protocol.WriteMessage(conn, &protocol.ImARobot{Nickname: name, Cookie: s.RobotCookie(), Class: "journeybot"}))
	go func() {
		for {
			msg, err := r.ReadMessage()
			if err != nil {
				return
			}
			if req, ok := msg.(*protocol.RobotJoinGameRequest); ok {
				protocol.WriteMessage(conn, &protocol.JoinGame{Nickname: name, Game: req.Game})
			}
		}
	}()
}

// TestJourneyRobotsFillAndPlay has one human start a game with two open
// seats; pool robots fill them and the game reaches play.
func TestJourneyRobotsFillAndPlay(t *testing.T) {
	s := startJourneyServer(t)

	scriptRobot(t, s, "droid Ada")
	scriptRobot(t, s, "droid Bee")
	waitFor(t, func() bool {
		var n int
		dispatch(s, func() { n = s.robots.Size() })
		return n == 2
	})

	alice := dialJourney(t, s)
	alice.expect(protocol.TypeVersion)
	alice.send(&protocol.Version{Vers: protocol.VersionLatest, Build: "test"})
	alice.send(&protocol.JoinChannel{Nickname: "alice", Channel: "lobby"})
	alice.expect(protocol.TypeChannelMembers)
	alice.send(&protocol.NewGame{Name: "PoolParty", Joinable: true})
	alice.expect(protocol.TypeGameMembers)

	alice.send(&protocol.SitDown{Game: "PoolParty", Nickname: "alice", Seat: 0})
	alice.send(&protocol.SetSeatLock{Game: "PoolParty", Seat: 3, Locked: true})
	alice.send(&protocol.StartGame{Game: "PoolParty"})

	// Seats 1 and 2 fill with robots, then the deferred start fires.
	alice.expect(protocol.TypeStartGame)
	turn := alice.expect(protocol.TypeTurn).(*protocol.Turn)
	assert.Equal(t, 0, turn.Seat)

	rm, ok := s.games.Get("PoolParty")
	require.True(t, ok)
	var robots int
	dispatch(s, func() {
		lk := rm.Lock()
		for _, seatIdx := range rm.Game.OccupiedSeats() {
			st, err := rm.Game.SeatAt(seatIdx)
			require.NoError(t, err)
			if st.Robot {
				robots++
			}
		}
		rm.Unlock(lk)
	})
	assert.Equal(t, 2, robots)
}

// TestJourneyGuessedVersionStillServed exercises the guess timer end to
// end: a silent client is eventually assumed old and can still join.
func TestJourneyGuessedVersionStillServed(t *testing.T) {
	s := startJourneyServer(t, func(cfg *ServerConfig) {
		cfg.VersionGuessTimeout = 50 * time.Millisecond
	})

	quiet := dialJourney(t, s)
	quiet.expect(protocol.TypeVersion)
	// Send nothing; wait out the guess timer.
	time.Sleep(3 * s.config.VersionGuessTimeout)

	quiet.send(&protocol.JoinChannel{Nickname: "dan", Channel: "lobby"})
	quiet.expect(protocol.TypeChannelMembers)

	c, ok := s.registry.Named("dan")
	require.True(t, ok)
	v, known := c.Version()
	assert.Equal(t, protocol.VersionFallback, v)
	assert.False(t, known)
}

// TestJourneyWatchdogForcesTurn runs a real game and lets the watchdog end
// a stalled turn.
func TestJourneyWatchdogForcesTurn(t *testing.T) {
	s := startJourneyServer(t, func(cfg *ServerConfig) {
		cfg.TurnInactivity = 300 * time.Millisecond
	})

	alice := dialJourney(t, s)
	alice.expect(protocol.TypeVersion)
	alice.send(&protocol.Version{Vers: protocol.VersionLatest, Build: "test"})
	alice.send(&protocol.JoinChannel{Nickname: "alice", Channel: "lobby"})
	alice.expect(protocol.TypeChannelMembers)
	alice.send(&protocol.NewGame{Name: "Stall", Joinable: true})
	alice.expect(protocol.TypeGameMembers)

	bob := dialJourney(t, s)
	bob.expect(protocol.TypeVersion)
	bob.send(&protocol.Version{Vers: protocol.VersionLatest, Build: "test"})
	bob.send(&protocol.JoinGame{Nickname: "bob", Game: "Stall"})
	bob.expect(protocol.TypeGameMembers)

	alice.send(&protocol.SitDown{Game: "Stall", Nickname: "alice", Seat: 0})
	bob.send(&protocol.SitDown{Game: "Stall", Nickname: "bob", Seat: 1})
	alice.send(&protocol.SetSeatLock{Game: "Stall", Seat: 2, Locked: true})
	alice.send(&protocol.SetSeatLock{Game: "Stall", Seat: 3, Locked: true})
	alice.send(&protocol.StartGame{Game: "Stall"})
	alice.expect(protocol.TypeStartGame)

	rm, ok := s.games.Get("Stall")
	require.True(t, ok)
	dispatch(s, func() {
		lk := rm.Lock()
		rm.Game.SetLastAction(time.Now().Add(-s.config.TurnInactivity - time.Second))
		rm.Unlock(lk)
	})

	forced := bob.expect(protocol.TypeForcedEndTurn).(*protocol.ForcedEndTurn)
	assert.Equal(t, 0, forced.Seat)
	var state game.State
	var seat int
	dispatch(s, func() {
		lk := rm.Lock()
		state = rm.Game.State()
		seat = rm.Game.CurrentSeat()
		rm.Unlock(lk)
	})
	assert.Equal(t, game.StatePlay, state)
	assert.Equal(t, 1, seat)
}
