package server

import (
	"time"

	"github.com/marchhare/gametable/pkg/protocol"
)

// resetVote is an in-flight board-reset ballot for one game room. The
// requester is an implicit yes; every other seated human gets a ballot.
// Humans too old to know the vote protocol cannot answer and are counted
// as consenting. Robots always consent. A voter who leaves mid-ballot
// counts as a refusal.
type resetVote struct {
	requesterSeat int
	started       time.Time
	waiting       map[int]*Conn // seat -> human voter yet to answer
}

// startResetVote begins a ballot over resetting rm's board, requested from
// requesterSeat. Resolves immediately when nobody else gets a vote.
// Dispatch goroutine only; caller holds lk.
func (s *Server) startResetVote(rm *Room, lk RoomLock, requesterSeat int) {
	g := rm.Game
	if g == nil {
		return
	}
	// A second request while a ballot runs is the requester double-clicking
	// or a second player piling on. The running ballot already covers them.
	if rm.resetVote != nil {
		return
	}

	vote := &resetVote{
		requesterSeat: requesterSeat,
		started:       time.Now(),
		waiting:       make(map[int]*Conn),
	}
	for _, seat := range g.OccupiedSeats() {
		if seat == requesterSeat {
			continue
		}
		st, _ := g.SeatAt(seat)
		if st.Robot {
			continue
		}
		voter, ok := s.registry.Named(st.Player)
		if !ok {
			continue
		}
		if v, _ := voter.Version(); v < protocol.VersionGameOptions {
			// Cannot be asked; counts as consent.
			continue
		}
		vote.waiting[seat] = voter
	}

	if len(vote.waiting) == 0 {
		s.resolveResetVote(rm, lk, true)
		return
	}

	rm.resetVote = vote
	ask := &protocol.ResetBoardVoteRequest{Game: rm.Name, RequesterSeat: requesterSeat}
	for _, voter := range vote.waiting {
		voter.Send(ask)
	}
	s.broadcastRoomLocked(rm, lk, &protocol.ResetBoardRequest{Game: rm.Name}, nil)
}

// handleResetVoteBallot records one voter's answer. The first refusal kills
// the vote; the last consent authorizes the reset. Answers from seats not
// holding a ballot, including duplicates, are ignored.
func (s *Server) handleResetVoteBallot(rm *Room, lk RoomLock, seat int, yes bool) {
	vote := rm.resetVote
	if vote == nil {
		return
	}
	if _, holds := vote.waiting[seat]; !holds {
		return
	}
	delete(vote.waiting, seat)
	s.broadcastRoomLocked(rm, lk, &protocol.ResetBoardVote{Game: rm.Name, Seat: seat, Yes: yes}, nil)
	if !yes {
		s.resolveResetVote(rm, lk, false)
		return
	}
	if len(vote.waiting) == 0 {
		s.resolveResetVote(rm, lk, true)
	}
}

// resetVoteDropVoter handles a voter leaving the game mid-ballot; their
// departure counts as a refusal.
func (s *Server) resetVoteDropVoter(rm *Room, lk RoomLock, c *Conn) {
	vote := rm.resetVote
	if vote == nil {
		return
	}
	for seat, voter := range vote.waiting {
		if voter == c {
			s.handleResetVoteBallot(rm, lk, seat, false)
			return
		}
	}
}

// resolveResetVote ends the ballot. Approval resets the board through the
// rules engine and re-announces the lobby state; refusal just tells the
// room.
func (s *Server) resolveResetVote(rm *Room, lk RoomLock, approved bool) {
	rm.resetVote = nil
	if !approved {
		s.broadcastRoomLocked(rm, lk, &protocol.ResetBoardReject{Game: rm.Name}, nil)
		return
	}
	s.broadcastRoomLocked(rm, lk, &protocol.ResetBoardAuth{Game: rm.Name}, nil)
	if rm.Game != nil {
		if err := s.rules.ResetBoard(rm.Game); err != nil {
			errorLog.Printf("board reset for %s: %v", rm.Name, err)
			return
		}
		rm.Game.Touch()
		s.broadcastRoomLocked(rm, lk, &protocol.GameState{Game: rm.Name, State: int(rm.Game.State())}, nil)
	}
}
