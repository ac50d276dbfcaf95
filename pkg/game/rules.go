package game

import (
	"errors"
	"math/rand"

	"github.com/marchhare/gametable/pkg/protocol"
)

// ForcedResult describes what happened to the forced player's in-flight
// resources when a turn was force-ended. Hidden means the amounts are
// reported but the types are concealed from everyone except the owner.
type ForcedResult struct {
	Returned protocol.ResourceSet
	Hidden   bool
}

// Rules is the rules-engine collaborator. The server calls it while holding
// the game's room lock; implementations mutate the Game's turn and state
// fields and may assume no concurrent calls for the same game.
type Rules interface {
	// Start moves a lobby game into play. It fails if too few seats are
	// occupied.
	Start(g *Game) error

	// EndTurn advances the current player to the next occupied seat.
	EndTurn(g *Game) error

	// ForceEndTurn ends the current player's turn without their
	// cooperation, reporting any resources put back.
	ForceEndTurn(g *Game) (ForcedResult, error)

	// ForceDiscard fabricates a valid discard for a seat that owes one.
	ForceDiscard(g *Game, seat int) (protocol.ResourceSet, error)

	// ResetBoard returns the game to the lobby state, keeping seats.
	ResetBoard(g *Game) error

	// CanSit reports whether the rules allow sitting at seat i now.
	CanSit(g *Game, seat int) bool

	// IsOver reports whether the game has reached its terminal state.
	IsOver(g *Game) bool
}

var (
	ErrTooFewPlayers = errors.New("not enough seated players to start")
	ErrNotStarted    = errors.New("game has not started")
	ErrGameOver      = errors.New("game is over")
)

// BasicRules is a reference rules engine with plain turn rotation. It backs
// tests and practice games; a full board-game engine satisfies the same
// interface.
type BasicRules struct {
	rng *rand.Rand
}

// NewBasicRules returns a reference engine using the given random source.
func NewBasicRules(rng *rand.Rand) *BasicRules {
	return &BasicRules{rng: rng}
}

func (r *BasicRules) Start(g *Game) error {
	if g.State() != StateLobby {
		return ErrNotInLobby
	}
	occupied := g.OccupiedSeats()
	if len(occupied) < 2 {
		return ErrTooFewPlayers
	}
	g.SetCurrentSeat(occupied[0])
	g.SetState(StatePlay)
	return nil
}

func (r *BasicRules) EndTurn(g *Game) error {
	switch g.State() {
	case StateLobby:
		return ErrNotStarted
	case StateOver:
		return ErrGameOver
	}
	next := g.NextOccupiedSeat(g.CurrentSeat())
	if next < 0 {
		g.SetState(StateOver)
		return nil
	}
	g.SetTradeOfferOpen(false)
	g.SetCurrentSeat(next)
	return nil
}

func (r *BasicRules) ForceEndTurn(g *Game) (ForcedResult, error) {
	if g.State() == StateLobby {
		return ForcedResult{}, ErrNotStarted
	}
	if g.State() == StateOver {
		return ForcedResult{}, ErrGameOver
	}

	seat := g.CurrentSeat()
	res := ForcedResult{}
	if owed := g.PendingDiscard(seat); owed > 0 {
		// Mid-discard: treat the owed amount as discarded with hidden types.
		res.Hidden = true
		res.Returned = r.randomSet(owed)
		g.SetPendingDiscard(seat, 0)
	}
	if err := r.EndTurn(g); err != nil {
		return ForcedResult{}, err
	}
	return res, nil
}

func (r *BasicRules) ForceDiscard(g *Game, seat int) (protocol.ResourceSet, error) {
	owed := g.PendingDiscard(seat)
	if owed == 0 {
		return protocol.ResourceSet{}, nil
	}
	g.SetPendingDiscard(seat, 0)
	g.Touch()
	return r.randomSet(owed), nil
}

func (r *BasicRules) ResetBoard(g *Game) error {
	if g.State() == StateLobby {
		return ErrNotStarted
	}
	for seat := range g.PendingDiscards() {
		g.SetPendingDiscard(seat, 0)
	}
	g.SetTradeOfferOpen(false)
	g.SetCurrentSeat(-1)
	g.SetState(StateLobby)
	return nil
}

func (r *BasicRules) CanSit(g *Game, seat int) bool {
	s, err := g.SeatAt(seat)
	if err != nil {
		return false
	}
	return s.Vacant() && !s.Locked
}

func (r *BasicRules) IsOver(g *Game) bool {
	return g.State() == StateOver
}

// randomSet spreads total across resource types at random.
func (r *BasicRules) randomSet(total int) protocol.ResourceSet {
	var rs protocol.ResourceSet
	for i := 0; i < total; i++ {
		rs[r.rng.Intn(protocol.ResourceTypes)]++
	}
	return rs
}
