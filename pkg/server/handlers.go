package server

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/marchhare/gametable/pkg/game"
	"github.com/marchhare/gametable/pkg/protocol"
)

// Game and channel names: wire-safe, bounded, at least one letter or digit.
var roomNameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _.-]{0,29}$`)

func validRoomName(name string) bool {
	return roomNameRE.MatchString(name) && !strings.HasSuffix(name, " ")
}

// knownOptions is the set of game option keys this server understands.
// Unknown keys are refused rather than silently dropped; the client is told
// the server is too old for them.
var knownOptions = map[string]bool{
	"PL":   true, // seat count
	"PRAC": true, // practice game, exempt from expiry
	"N7":   true, // no rolling sevens during the first rounds
	"RD":   true, // robots never trade
}

// handleMessage is the single entry point for every inbound message.
// Dispatch goroutine only.
func (s *Server) handleMessage(c *Conn, msg protocol.Message) {
	if c.authPending {
		if len(c.authQueue) >= maxAuthQueue {
			errorLog.Printf("conn %d: auth queue overflow, dropping", c.ID)
			s.dropConn(c)
			return
		}
		c.authQueue = append(c.authQueue, msg)
		return
	}

	s.metrics.RecordMessageReceived(msg.Type())

	// Any traffic proves the connection alive and cancels a pending probe.
	c.UpdateData(func(d *SessionData) {
		d.ProbeSentAt = time.Time{}
		d.LastPing = time.Now()
	})

	switch m := msg.(type) {
	case *protocol.Version:
		s.handleVersion(c, m)
	case *protocol.ServerPing:
		// Pong; liveness already noted above.
	case *protocol.ImARobot:
		s.handleImARobot(c, m)
	case *protocol.JoinChannel:
		s.handleJoinChannel(c, m)
	case *protocol.LeaveChannel:
		s.handleLeaveChannel(c, m)
	case *protocol.TextMsg:
		s.handleTextMsg(c, m)
	case *protocol.NewGame:
		s.handleNewGame(c, m)
	case *protocol.NewGameWithOptionsRequest:
		s.handleNewGameRequest(c, m)
	case *protocol.JoinGame:
		s.handleJoinGame(c, m)
	case *protocol.LeaveGame:
		s.handleLeaveGame(c, m)
	case *protocol.DeleteGame:
		s.handleDeleteGame(c, m)
	case *protocol.SitDown:
		s.handleSitDown(c, m)
	case *protocol.SetSeatLock:
		s.handleSetSeatLock(c, m)
	case *protocol.StartGame:
		s.handleStartGame(c, m)
	case *protocol.EndTurn:
		s.handleEndTurn(c, m)
	case *protocol.Discard:
		s.handleDiscard(c, m)
	case *protocol.ResetBoardRequest:
		s.handleResetBoardRequest(c, m)
	case *protocol.ResetBoardVote:
		s.handleResetBoardVote(c, m)
	case *protocol.BroadcastTextMsg:
		if s.isDebugUser(c.Name()) {
			s.broadcastAll(m)
		}
	default:
		debugLog.Printf("conn %d: unhandled message type %d", c.ID, msg.Type())
	}
}

// handleImARobot authenticates a built-in robot by its startup cookie and
// adds it to the pool. Robots skip the human name gate; their reserved
// names cannot collide with players.
func (s *Server) handleImARobot(c *Conn, m *protocol.ImARobot) {
	if m.Cookie != s.robotCookie {
		errorLog.Printf("conn %d: bad robot cookie for %q", c.ID, m.Nickname)
		c.Send(&protocol.RejectConnection{Reason: "Robot cookie mismatch."})
		s.dropConn(c)
		return
	}
	if err := s.registry.Bind(c, m.Nickname); err != nil {
		c.Send(&protocol.RejectConnection{Reason: "Robot name already connected."})
		s.dropConn(c)
		return
	}
	c.UpdateData(func(d *SessionData) {
		d.IsRobot = true
		d.BuiltInRobot = true
		d.RobotClass = m.Class
	})
	s.robots.Register(c)
	s.metrics.RecordRobotsAvailable(s.robots.Size())
	debugLog.Printf("robot %q (%s) joined the pool", m.Nickname, m.Class)
}

func (s *Server) handleJoinChannel(c *Conn, m *protocol.JoinChannel) {
	if !validRoomName(m.Channel) {
		c.Send(&protocol.StatusMessage{Status: protocol.StatusNameNotAllowed, Text: "That channel name is not allowed."})
		return
	}
	s.authorize(c, m.Nickname, m.Password, func(granted bool) {
		if !granted {
			s.metrics.RecordAuthFailure()
			return
		}
		s.joinChannel(c, m.Channel)
	})
}

func (s *Server) joinChannel(c *Conn, name string) {
	rm, ok := s.channels.Get(name)
	created := false
	if !ok {
		if s.channels.CountOwnedBy(c.Name()) >= s.config.MaxChannelsPerClient {
			c.Send(&protocol.StatusMessage{
				Status: protocol.StatusQuotaExceeded,
				Detail: s.config.MaxChannelsPerClient,
				Text:   "You have created too many channels.",
			})
			return
		}
		rm, created = s.channels.Create(name, c.Name())
		if !created {
			// Lost a create race; join the winner's channel.
			rm, _ = s.channels.Get(name)
			if rm == nil {
				return
			}
		} else {
			c.UpdateData(func(d *SessionData) { d.CreatedChannels++ })
		}
	}

	lk := rm.Lock()
	if rm.addMemberLocked(lk, c) {
		s.broadcastRoomLocked(rm, lk, &protocol.JoinChannel{Nickname: c.Name(), Channel: rm.Name}, c)
	}
	members := rm.MemberNamesLocked(lk)
	rm.Unlock(lk)

	c.Send(&protocol.ChannelMembers{Channel: rm.Name, Members: members})
	if created {
		s.broadcastAll(&protocol.Channels{Names: s.channels.Names()})
	}
}

// handleLeaveChannel leaves are idempotent: leaving a channel you are not
// in, or one that no longer exists, is a no-op.
func (s *Server) handleLeaveChannel(c *Conn, m *protocol.LeaveChannel) {
	rm, ok := s.channels.Get(m.Channel)
	if !ok {
		return
	}
	s.leaveChannel(c, rm)
}

func (s *Server) leaveChannel(c *Conn, rm *Room) {
	lk := rm.Lock()
	left := rm.removeMemberLocked(lk, c)
	if left {
		s.broadcastRoomLocked(rm, lk, &protocol.LeaveChannel{Nickname: c.Name(), Channel: rm.Name}, nil)
	}
	empty := rm.EmptyLocked(lk)
	rm.Unlock(lk)

	if empty {
		s.channels.Remove(rm)
		s.broadcastAll(&protocol.DeleteChannel{Channel: rm.Name})
	}
}

// handleTextMsg routes chat to the named room, after peeling off commands.
// The sender must be a member, and the server's own voice cannot be forged.
func (s *Server) handleTextMsg(c *Conn, m *protocol.TextMsg) {
	name := c.Name()
	if name == "" || strings.EqualFold(m.Nickname, serverName) {
		return
	}
	rm, ok := s.games.Get(m.Room)
	if !ok {
		rm, ok = s.channels.Get(m.Room)
	}
	if !ok {
		return
	}
	lk := rm.Lock()
	member := rm.HasMemberLocked(lk, c)
	rm.Unlock(lk)
	if !member {
		return
	}
	if s.handleCommand(c, rm.Name, m.Text) {
		return
	}
	s.broadcastRoom(rm, &protocol.TextMsg{Room: rm.Name, Nickname: name, Text: m.Text}, nil)
}

func (s *Server) handleNewGame(c *Conn, m *protocol.NewGame) {
	s.createGame(c, m.Name, nil)
}

func (s *Server) handleNewGameRequest(c *Conn, m *protocol.NewGameWithOptionsRequest) {
	s.authorize(c, m.Nickname, m.Password, func(granted bool) {
		if !granted {
			s.metrics.RecordAuthFailure()
			return
		}
		s.createGame(c, m.Game, m.Options)
	})
}

// createGame validates the request, builds the game room and announces it
// to every connected client in the form its version can parse.
func (s *Server) createGame(c *Conn, name string, opts []protocol.GameOption) {
	if c.Name() == "" {
		c.Send(&protocol.StatusMessage{Status: protocol.StatusActionFailed, Text: "Join with a nickname first."})
		return
	}
	if !validRoomName(name) {
		c.Send(&protocol.StatusMessage{Status: protocol.StatusNameNotAllowed, Text: "That game name is not allowed."})
		return
	}
	if s.games.CountOwnedBy(c.Name()) >= s.config.MaxGamesPerClient {
		c.Send(&protocol.StatusMessage{
			Status: protocol.StatusQuotaExceeded,
			Detail: s.config.MaxGamesPerClient,
			Text:   "You have created too many games.",
		})
		return
	}

	maxPlayers := game.DefaultMaxPlayers
	practice := false
	for _, opt := range opts {
		if !knownOptions[opt.Key] {
			c.Send(&protocol.StatusMessage{
				Status: protocol.StatusOptionUnknown,
				Detail: protocol.VersionLatest,
				Text:   "Unknown game option: " + opt.Key,
			})
			return
		}
		switch opt.Key {
		case "PL":
			if n, err := strconv.Atoi(opt.Value); err == nil {
				maxPlayers = n
			}
		case "PRAC":
			practice = opt.Value == "t" || opt.Value == "true"
		}
	}

	minVersion := 0
	if len(opts) > 0 {
		minVersion = protocol.VersionGameOptions
	}
	if v, _ := c.Version(); v < minVersion {
		// The requester could not even parse the announcement of its own game.
		c.Send(&protocol.StatusMessage{
			Status: protocol.StatusVersionTooOld,
			Detail: minVersion,
			Text:   "Those game options need a newer client.",
		})
		return
	}

	rm, ok := s.games.Create(name, c.Name())
	if !ok {
		c.Send(&protocol.StatusMessage{Status: protocol.StatusGameExists, Text: "A game with that name already exists."})
		return
	}
	rm.Game = game.New(rm.Name, c.Name(), opts, maxPlayers, minVersion, practice)
	rm.MinVersion = minVersion
	rm.Options = opts
	c.UpdateData(func(d *SessionData) { d.CreatedGames++ })

	s.metrics.RecordGameCreated()
	s.metrics.RecordActiveGames(s.games.Count())
	debugLog.Printf("game %q created by %s", rm.Name, c.Name())

	s.announceGame(rm)
	s.enterGame(c, rm)
}

// announceGame tells every connected client about a new game, banded by
// version: option-aware clients get the full announcement, clients that at
// least understand the unjoinable marker get a bare entry flagged either
// way, and older clients hear only about games they could join.
func (s *Server) announceGame(rm *Room) {
	// Encode only for version bands somebody actually occupies.
	minV, maxV := s.registry.VersionRange(nil)
	if maxV == 0 {
		return
	}

	if maxV >= protocol.VersionGameOptions {
		full := &protocol.NewGameWithOptions{
			Name:       rm.Name,
			Joinable:   true,
			MinVersion: rm.MinVersion,
			Options:    rm.Options,
		}
		s.broadcastVersionRange(full, protocol.VersionGameOptions, 0)
	}

	joinableBelow := rm.MinVersion < protocol.VersionGameOptions
	if minV < protocol.VersionGameOptions && maxV >= protocol.VersionUnjoinableMarker {
		s.broadcastVersionRange(
			&protocol.NewGame{Name: rm.Name, Joinable: joinableBelow},
			protocol.VersionUnjoinableMarker, protocol.VersionGameOptions)
	}
	if joinableBelow && minV < protocol.VersionUnjoinableMarker {
		s.broadcastVersionRange(
			&protocol.NewGame{Name: rm.Name, Joinable: true},
			1, protocol.VersionUnjoinableMarker)
	}
}

func (s *Server) handleJoinGame(c *Conn, m *protocol.JoinGame) {
	rm, ok := s.games.Get(m.Game)
	if !ok {
		c.Send(&protocol.StatusMessage{Status: protocol.StatusActionFailed, Text: "No such game: " + m.Game})
		return
	}
	if v, _ := c.Version(); v < rm.MinVersion {
		c.Send(&protocol.StatusMessage{
			Status: protocol.StatusVersionTooOld,
			Detail: rm.MinVersion,
			Text:   "Your client is too old for this game.",
		})
		return
	}
	s.authorize(c, m.Nickname, m.Password, func(granted bool) {
		if !granted {
			s.metrics.RecordAuthFailure()
			return
		}
		s.enterGame(c, rm)
	})
}

// enterGame adds c to rm and brings it up to date: membership, seats, game
// state and whose turn it is. A robot arriving on an outstanding ask is
// seated immediately.
func (s *Server) enterGame(c *Conn, rm *Room) {
	lk := rm.Lock()
	if rm.addMemberLocked(lk, c) {
		s.broadcastRoomLocked(rm, lk, &protocol.JoinGame{Nickname: c.Name(), Game: rm.Name}, c)
	}
	members := rm.MemberNamesLocked(lk)
	g := rm.Game

	c.Send(&protocol.GameMembers{Game: rm.Name, Members: members})
	if g != nil {
		for _, seatIdx := range g.OccupiedSeats() {
			st, _ := g.SeatAt(seatIdx)
			c.Send(&protocol.SitDown{Game: rm.Name, Nickname: st.Player, Seat: seatIdx, IsRobot: st.Robot})
		}
		for i := 0; i < g.MaxPlayers(); i++ {
			if st, err := g.SeatAt(i); err == nil && st.Locked {
				c.Send(&protocol.SetSeatLock{Game: rm.Name, Seat: i, Locked: true})
			}
		}
		c.Send(&protocol.GameState{Game: rm.Name, State: int(g.State())})
		if g.State() == game.StatePlay && g.CurrentSeat() >= 0 {
			c.Send(&protocol.Turn{Game: rm.Name, Seat: g.CurrentSeat()})
		}
	}

	if c.Data().BuiltInRobot {
		if seat := s.robots.claim(rm.Name, c); seat >= 0 {
			s.seatPlayer(rm, lk, c, seat, true)
		}
	}
	rm.Unlock(lk)
}

// handleLeaveGame leaves are idempotent, like channel leaves.
func (s *Server) handleLeaveGame(c *Conn, m *protocol.LeaveGame) {
	rm, ok := s.games.Get(m.Game)
	if !ok {
		return
	}
	s.leaveGame(c, rm)
}

func (s *Server) leaveGame(c *Conn, rm *Room) {
	lk := rm.Lock()
	if !rm.removeMemberLocked(lk, c) {
		rm.Unlock(lk)
		return
	}

	s.resetVoteDropVoter(rm, lk, c)

	g := rm.Game
	wasCurrent := false
	if g != nil {
		if seat := g.SeatOf(c.Name()); seat >= 0 {
			wasCurrent = g.State() == game.StatePlay && seat == g.CurrentSeat()
			g.StandUp(seat)
			s.seatVacated(rm, lk, seat)
		}
	}
	s.broadcastRoomLocked(rm, lk, &protocol.LeaveGame{Nickname: c.Name(), Game: rm.Name}, nil)

	if wasCurrent {
		s.forceEndTurn(rm, lk)
	} else if g != nil && g.State() == game.StatePlay && rm.HumanMemberCountLocked(lk) == 0 {
		g.SetState(game.StateOver)
		s.broadcastRoomLocked(rm, lk, &protocol.GameState{Game: rm.Name, State: int(game.StateOver)}, nil)
		s.stats.RecordGameFinished()
	}

	empty := rm.EmptyLocked(lk)
	rm.Unlock(lk)

	if empty {
		s.destroyGame(rm, "")
	}
}

// seatVacated hands a freshly vacant seat to a human who was waiting for
// it, or asks the pool for a replacement robot mid-game.
func (s *Server) seatVacated(rm *Room, lk RoomLock, seat int) {
	if waiter, ok := rm.seatWaiters[seat]; ok {
		delete(rm.seatWaiters, seat)
		if rm.HasMemberLocked(lk, waiter) {
			s.seatPlayer(rm, lk, waiter, seat, false)
			return
		}
	}
	if rm.Game != nil && rm.Game.State() == game.StatePlay {
		s.fillSeats(rm, lk, 1)
	}
}

func (s *Server) handleDeleteGame(c *Conn, m *protocol.DeleteGame) {
	rm, ok := s.games.Get(m.Game)
	if !ok {
		return
	}
	lk := rm.Lock()
	owner := rm.OwnerLocked(lk)
	rm.Unlock(lk)
	if !strings.EqualFold(owner, c.Name()) && !s.isDebugUser(c.Name()) {
		c.Send(&protocol.StatusMessage{Status: protocol.StatusActionFailed, Text: "Only the game's creator can delete it."})
		return
	}
	s.destroyGame(rm, "This game was deleted by "+c.Name()+".")
}

// destroyGame tears a game room down and tells everyone. Safe to call for
// an already-removed room.
func (s *Server) destroyGame(rm *Room, reason string) {
	s.games.Remove(rm)
	s.robots.dropPending(rm.Name)

	lk := rm.Lock()
	if reason != "" {
		s.broadcastRoomLocked(rm, lk, &protocol.TextMsg{Room: rm.Name, Nickname: serverName, Text: ">>> " + reason}, nil)
	}
	members := rm.MembersLocked(lk)
	for _, mc := range members {
		rm.removeMemberLocked(lk, mc)
	}
	rm.Unlock(lk)

	s.broadcastAll(&protocol.DeleteGame{Game: rm.Name})
	s.metrics.RecordGameDestroyed()
	s.metrics.RecordActiveGames(s.games.Count())
	debugLog.Printf("game %q destroyed", rm.Name)
}

// handleSitDown seats the sender. Sitting on a robot's seat boots the
// robot and reserves the seat for the sender until the robot clears out.
func (s *Server) handleSitDown(c *Conn, m *protocol.SitDown) {
	rm, ok := s.games.Get(m.Game)
	if !ok || rm.Game == nil {
		return
	}
	lk := rm.Lock()
	defer rm.Unlock(lk)
	if !rm.HasMemberLocked(lk, c) {
		return
	}
	g := rm.Game

	st, err := g.SeatAt(m.Seat)
	if err != nil {
		c.Send(&protocol.StatusMessage{Status: protocol.StatusActionFailed, Text: "No such seat."})
		return
	}
	if !st.Vacant() {
		if st.Robot && !c.Data().IsRobot {
			rm.seatWaiters[m.Seat] = c
			s.dismissRobot(rm, lk, m.Seat)
			return
		}
		c.Send(&protocol.StatusMessage{Status: protocol.StatusActionFailed, Text: "That seat is taken."})
		return
	}
	s.seatPlayer(rm, lk, c, m.Seat, c.Data().IsRobot)
}

// seatPlayer performs the actual sit and announces it. Caller holds lk.
func (s *Server) seatPlayer(rm *Room, lk RoomLock, c *Conn, seat int, robot bool) {
	g := rm.Game
	if err := g.SitDown(seat, c.Name(), robot); err != nil {
		c.Send(&protocol.StatusMessage{Status: protocol.StatusActionFailed, Text: "Cannot sit there."})
		return
	}
	g.Touch()
	s.broadcastRoomLocked(rm, lk, &protocol.SitDown{Game: rm.Name, Nickname: c.Name(), Seat: seat, IsRobot: robot}, nil)

	if rm.startRequested && len(g.VacantUnlockedSeats()) == 0 {
		s.startGameNow(rm, lk)
	}
}

// handleSetSeatLock toggles a vacant seat's lock. Only seated players can
// change locks, and only before the game starts or for vacant seats.
func (s *Server) handleSetSeatLock(c *Conn, m *protocol.SetSeatLock) {
	rm, ok := s.games.Get(m.Game)
	if !ok || rm.Game == nil {
		return
	}
	lk := rm.Lock()
	defer rm.Unlock(lk)
	g := rm.Game
	if !rm.HasMemberLocked(lk, c) || g.SeatOf(c.Name()) < 0 {
		return
	}
	if err := g.SetSeatLock(m.Seat, m.Locked); err != nil {
		c.Send(&protocol.StatusMessage{Status: protocol.StatusActionFailed, Text: "Cannot lock that seat."})
		return
	}
	s.broadcastRoomLocked(rm, lk, &protocol.SetSeatLock{Game: rm.Name, Seat: m.Seat, Locked: m.Locked}, nil)
}

// handleStartGame starts the game once every unlocked seat is occupied,
// asking the robot pool to fill any gaps first.
func (s *Server) handleStartGame(c *Conn, m *protocol.StartGame) {
	rm, ok := s.games.Get(m.Game)
	if !ok || rm.Game == nil {
		return
	}
	lk := rm.Lock()
	defer rm.Unlock(lk)
	g := rm.Game
	if !rm.HasMemberLocked(lk, c) || g.SeatOf(c.Name()) < 0 {
		return
	}
	if g.State() != game.StateLobby {
		return
	}

	vacant := len(g.VacantUnlockedSeats())
	if vacant > 0 {
		rm.startRequested = true
		asked := s.fillSeats(rm, lk, vacant)
		if asked == 0 {
			rm.startRequested = false
			s.broadcastRoomLocked(rm, lk, &protocol.TextMsg{
				Room:     rm.Name,
				Nickname: serverName,
				Text:     ">>> No robots are available. Lock the empty seats to start without them.",
			}, nil)
		} else if asked < vacant {
			// Partial fill. The start stays pending for the seats that were
			// asked; the players must lock the rest themselves.
			s.broadcastRoomLocked(rm, lk, &protocol.TextMsg{
				Room:     rm.Name,
				Nickname: serverName,
				Text:     ">>> Not enough robots to fill every seat. Lock the remaining empty seats to start.",
			}, nil)
		}
		return
	}
	s.startGameNow(rm, lk)
}

func (s *Server) startGameNow(rm *Room, lk RoomLock) {
	g := rm.Game
	rm.startRequested = false
	if err := s.rules.Start(g); err != nil {
		s.broadcastRoomLocked(rm, lk, &protocol.TextMsg{
			Room:     rm.Name,
			Nickname: serverName,
			Text:     ">>> The game cannot start: " + err.Error(),
		}, nil)
		return
	}
	g.Touch()
	s.stats.RecordGameStarted()
	debugLog.Printf("game %q started", rm.Name)
	s.broadcastRoomLocked(rm, lk, &protocol.StartGame{Game: rm.Name}, nil)
	s.broadcastRoomLocked(rm, lk, &protocol.GameState{Game: rm.Name, State: int(g.State())}, nil)
	s.broadcastRoomLocked(rm, lk, &protocol.Turn{Game: rm.Name, Seat: g.CurrentSeat()}, nil)
}

// handleEndTurn ends the sender's turn, if it is in fact their turn.
func (s *Server) handleEndTurn(c *Conn, m *protocol.EndTurn) {
	rm, ok := s.games.Get(m.Game)
	if !ok || rm.Game == nil {
		return
	}
	lk := rm.Lock()
	defer rm.Unlock(lk)
	g := rm.Game
	if g.State() != game.StatePlay || g.SeatOf(c.Name()) != g.CurrentSeat() {
		return
	}
	if err := s.rules.EndTurn(g); err != nil {
		c.Send(&protocol.StatusMessage{Status: protocol.StatusActionFailed, Text: err.Error()})
		return
	}
	g.Touch()
	s.afterTurnChange(rm, lk)
}

// handleDiscard settles a pending discard owed by the sender's seat.
func (s *Server) handleDiscard(c *Conn, m *protocol.Discard) {
	rm, ok := s.games.Get(m.Game)
	if !ok || rm.Game == nil {
		return
	}
	lk := rm.Lock()
	defer rm.Unlock(lk)
	g := rm.Game
	seat := g.SeatOf(c.Name())
	if seat < 0 {
		return
	}
	owed := g.PendingDiscard(seat)
	if owed == 0 {
		return
	}
	if m.Resources.Total() != owed {
		c.Send(&protocol.DiscardRequest{Game: rm.Name, Seat: seat, Count: owed})
		return
	}
	g.SetPendingDiscard(seat, 0)
	g.Touch()
	s.broadcastRoomLocked(rm, lk, &protocol.Discard{Game: rm.Name, Resources: m.Resources}, nil)
}

func (s *Server) handleResetBoardRequest(c *Conn, m *protocol.ResetBoardRequest) {
	rm, ok := s.games.Get(m.Game)
	if !ok || rm.Game == nil {
		return
	}
	lk := rm.Lock()
	defer rm.Unlock(lk)
	seat := rm.Game.SeatOf(c.Name())
	if !rm.HasMemberLocked(lk, c) || seat < 0 {
		return
	}
	if rm.Game.State() == game.StateLobby {
		return
	}
	s.startResetVote(rm, lk, seat)
}

func (s *Server) handleResetBoardVote(c *Conn, m *protocol.ResetBoardVote) {
	rm, ok := s.games.Get(m.Game)
	if !ok || rm.Game == nil {
		return
	}
	lk := rm.Lock()
	defer rm.Unlock(lk)
	seat := rm.Game.SeatOf(c.Name())
	if seat < 0 || seat != m.Seat {
		return
	}
	s.handleResetVoteBallot(rm, lk, seat, m.Yes)
}
