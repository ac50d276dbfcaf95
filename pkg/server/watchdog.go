package server

import (
	"time"

	"github.com/marchhare/gametable/pkg/database"
	"github.com/marchhare/gametable/pkg/game"
	"github.com/marchhare/gametable/pkg/protocol"
)

// watchdogLoop ticks the game watchdog until shutdown. The scan itself runs
// on the dispatch goroutine.
func (s *Server) watchdogLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.enqueue(s.watchdogScan)
		}
	}
}

// watchdogScan sweeps every game room for stuck turns, overdue discards,
// stale reset votes, abandoned robot asks and expired games.
// Dispatch goroutine only.
func (s *Server) watchdogScan() {
	for _, req := range s.robots.expirePending(s.config.TurnInactivity) {
		debugLog.Printf("robot %s never joined for seat %d, dropping request", req.robot.Name(), req.seat)
	}

	now := time.Now()
	for _, rm := range s.games.All() {
		lk := rm.Lock()
		s.watchdogRoom(rm, lk, now)
		g := rm.Game
		// Seated robots and non-player observers both keep a game alive;
		// only a room with no human member left gets torn down.
		destroy := g != nil && (g.Expired(now) ||
			(g.State() != game.StateLobby && rm.HumanMemberCountLocked(lk) == 0))
		rm.Unlock(lk)
		if destroy {
			s.destroyGame(rm, "This game has ended.")
		}
	}
}

func (s *Server) watchdogRoom(rm *Room, lk RoomLock, now time.Time) {
	g := rm.Game
	if g == nil {
		return
	}

	// Stale reset vote resolves as a refusal.
	if rm.resetVote != nil && now.Sub(rm.resetVote.started) > s.config.ResetVoteTimeout {
		debugLog.Printf("reset vote in %s timed out", rm.Name)
		s.resolveResetVote(rm, lk, false)
	}

	if g.State() != game.StatePlay {
		if !g.Expired(now) && !rm.expiryWarned && !g.Expires().IsZero() && now.Add(5*time.Minute).After(g.Expires()) {
			s.warnExpiry(rm, lk)
		}
		return
	}

	idle := now.Sub(g.LastAction())

	// Overdue discards come first; a forced end of turn would randomize
	// them anyway.
	if len(g.PendingDiscards()) > 0 {
		if idle > s.config.DiscardInactivity {
			s.forceDiscards(rm, lk)
		}
		return
	}

	limit := s.config.TurnInactivity
	if g.TradeOfferOpen() {
		// An open trade offer earns the turn extra patience.
		limit = s.config.TradeOfferInactivity
	}
	if idle > limit {
		s.forceEndTurn(rm, lk)
	}

	if !rm.expiryWarned && !g.Expires().IsZero() && now.Add(5*time.Minute).After(g.Expires()) {
		s.warnExpiry(rm, lk)
	}
}

// forceEndTurn ends the current seat's turn through the rules engine and
// tells the room what was taken from the hand to do it.
func (s *Server) forceEndTurn(rm *Room, lk RoomLock) {
	g := rm.Game
	seat := g.CurrentSeat()
	if seat < 0 {
		return
	}
	res, err := s.rules.ForceEndTurn(g)
	if err != nil {
		errorLog.Printf("forced end of turn in %s: %v", rm.Name, err)
		return
	}
	g.Touch()
	debugLog.Printf("forced end of turn for seat %d in %s", seat, rm.Name)
	s.broadcastRoomLocked(rm, lk, &protocol.ForcedEndTurn{
		Game:     rm.Name,
		Seat:     seat,
		Returned: res.Returned,
		Hidden:   res.Hidden,
	}, nil)
	s.afterTurnChange(rm, lk)
	s.metrics.RecordForcedEndTurn()
}

// forceDiscards discards a random legal set for every seat still owing one.
func (s *Server) forceDiscards(rm *Room, lk RoomLock) {
	g := rm.Game
	for seat := range g.PendingDiscards() {
		set, err := s.rules.ForceDiscard(g, seat)
		if err != nil {
			errorLog.Printf("forced discard for seat %d in %s: %v", seat, rm.Name, err)
			continue
		}
		debugLog.Printf("forced discard for seat %d in %s", seat, rm.Name)
		s.broadcastRoomLocked(rm, lk, &protocol.Discard{Game: rm.Name, Resources: set}, nil)
	}
	g.Touch()
}

func (s *Server) warnExpiry(rm *Room, lk RoomLock) {
	rm.expiryWarned = true
	mins := int(time.Until(rm.Game.Expires()).Minutes())
	if mins < 1 {
		mins = 1
	}
	s.broadcastRoomLocked(rm, lk, &protocol.TextMsg{
		Room:     rm.Name,
		Nickname: serverName,
		Text:     ">>> This game expires in " + itoa(mins) + " minutes. Type *ADDTIME* to extend it.",
	}, nil)
}

// afterTurnChange announces the new current seat, or the end of the game
// when the rules say it is over.
func (s *Server) afterTurnChange(rm *Room, lk RoomLock) {
	g := rm.Game
	if s.rules.IsOver(g) {
		g.SetState(game.StateOver)
		s.broadcastRoomLocked(rm, lk, &protocol.GameState{Game: rm.Name, State: int(game.StateOver)}, nil)
		s.stats.RecordGameFinished()
		s.recordGameResult(rm, lk)
		return
	}
	s.broadcastRoomLocked(rm, lk, &protocol.Turn{Game: rm.Name, Seat: g.CurrentSeat()}, nil)
}

// recordGameResult credits the winning seat's player and debits the rest,
// in session records and, for registered players, in the user store. The
// store writes happen off the dispatch goroutine.
func (s *Server) recordGameResult(rm *Room, lk RoomLock) {
	g := rm.Game
	winnerSeat := g.CurrentSeat()
	var winner string
	var players []string
	for _, seat := range g.OccupiedSeats() {
		st, _ := g.SeatAt(seat)
		if st.Robot {
			continue
		}
		players = append(players, st.Player)
		won := seat == winnerSeat
		if won {
			winner = st.Player
		}
		if c, ok := s.registry.Named(st.Player); ok {
			c.UpdateData(func(d *SessionData) {
				if won {
					d.Wins++
				} else {
					d.Losses++
				}
			})
		}
	}
	if s.db == nil || len(players) == 0 {
		return
	}
	gameName := rm.Name
	db := s.db
	go func() {
		for _, p := range players {
			var err error
			if p == winner {
				err = db.AddWin(p)
			} else {
				err = db.AddLoss(p)
			}
			if err != nil && err != database.ErrUserNotFound {
				errorLog.Printf("recording result for %q: %v", p, err)
			}
		}
		if winner != "" {
			if err := db.RecordGameScore(gameName, winner, players); err != nil {
				errorLog.Printf("recording score for %q: %v", gameName, err)
			}
		}
	}()
}
