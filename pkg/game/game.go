// Package game holds the game-room object the server coordinates and the
// rules-engine collaborator interface. The server reads game state and seat
// layout from here; it never invents state values of its own.
package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/marchhare/gametable/pkg/protocol"
)

// State is the game's finite state machine, owned by the rules engine.
type State int

const (
	StateLobby     State = 0
	StatePlacement State = 1
	StatePlay      State = 2
	StateOver      State = 3
)

func (s State) String() string {
	switch s {
	case StateLobby:
		return "lobby"
	case StatePlacement:
		return "placement"
	case StatePlay:
		return "play"
	case StateOver:
		return "over"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	// DefaultMaxPlayers is the seat count for games created without a PL option.
	DefaultMaxPlayers = 4

	// MaxMaxPlayers caps the PL option.
	MaxMaxPlayers = 6

	// MinLifetime is the minimum span between creation and expiry.
	MinLifetime = 90 * time.Minute
)

var (
	ErrSeatOutOfRange = errors.New("seat index out of range")
	ErrSeatOccupied   = errors.New("seat already occupied")
	ErrSeatVacant     = errors.New("seat is vacant")
	ErrSeatLocked     = errors.New("seat is locked")
	ErrNotInLobby     = errors.New("game already started")
)

// Seat is one position at the table.
type Seat struct {
	Player string // empty when vacant
	Robot  bool
	Locked bool
}

// Vacant reports whether no player occupies the seat.
func (s Seat) Vacant() bool { return s.Player == "" }

// Game is a single game room: seats, options, and turn bookkeeping. A Game
// carries no lock of its own; the room lock in the server's game directory
// guards every mutation.
type Game struct {
	Name       string
	Owner      string
	Options    []protocol.GameOption
	MinVersion int // minimum client version able to join, derived from options
	Practice   bool

	created time.Time
	expires time.Time // zero for practice games

	seats   []Seat
	state   State
	current int // current player's seat, -1 before start

	lastAction      time.Time
	pendingDiscards map[int]int // seat -> resource count owed
	tradeOfferOpen  bool
}

// New creates a game in the lobby state with maxPlayers vacant seats.
func New(name, owner string, opts []protocol.GameOption, maxPlayers, minVersion int, practice bool) *Game {
	if maxPlayers < 2 || maxPlayers > MaxMaxPlayers {
		maxPlayers = DefaultMaxPlayers
	}
	now := time.Now()
	g := &Game{
		Name:            name,
		Owner:           owner,
		Options:         opts,
		MinVersion:      minVersion,
		Practice:        practice,
		created:         now,
		seats:           make([]Seat, maxPlayers),
		state:           StateLobby,
		current:         -1,
		lastAction:      now,
		pendingDiscards: make(map[int]int),
	}
	if !practice {
		g.expires = now.Add(MinLifetime)
	}
	return g
}

// MaxPlayers returns the seat count.
func (g *Game) MaxPlayers() int { return len(g.seats) }

// Created returns the creation time.
func (g *Game) Created() time.Time { return g.created }

// Expires returns the expiry time; zero means the game never expires.
func (g *Game) Expires() time.Time { return g.expires }

// Expired reports whether the game is past its expiry.
func (g *Game) Expired(now time.Time) bool {
	return !g.expires.IsZero() && now.After(g.expires)
}

// AddMinutes extends the expiry. No-op for practice games.
func (g *Game) AddMinutes(minutes int) {
	if g.expires.IsZero() || minutes <= 0 {
		return
	}
	g.expires = g.expires.Add(time.Duration(minutes) * time.Minute)
}

// SetExpires overrides the expiry time.
func (g *Game) SetExpires(t time.Time) { g.expires = t }

// State returns the current state-machine value.
func (g *Game) State() State { return g.state }

// SetState records a state transition decided by the rules engine.
func (g *Game) SetState(s State) {
	g.state = s
	g.Touch()
}

// CurrentSeat returns the current player's seat, or -1 before start.
func (g *Game) CurrentSeat() int { return g.current }

// SetCurrentSeat records the current player decided by the rules engine.
func (g *Game) SetCurrentSeat(seat int) {
	g.current = seat
	g.Touch()
}

// Touch records activity now.
func (g *Game) Touch() { g.lastAction = time.Now() }

// LastAction returns the time of the most recent game action.
func (g *Game) LastAction() time.Time { return g.lastAction }

// SetLastAction overrides the activity clock.
func (g *Game) SetLastAction(t time.Time) { g.lastAction = t }

// SeatAt returns a copy of the seat at index i.
func (g *Game) SeatAt(i int) (Seat, error) {
	if i < 0 || i >= len(g.seats) {
		return Seat{}, ErrSeatOutOfRange
	}
	return g.seats[i], nil
}

// Seats returns a copy of all seats.
func (g *Game) Seats() []Seat {
	out := make([]Seat, len(g.seats))
	copy(out, g.seats)
	return out
}

// SitDown seats player at seat i. Locked vacant seats reject humans and
// robots alike; the robot pool clears the lock first when replacing.
func (g *Game) SitDown(i int, player string, robot bool) error {
	if i < 0 || i >= len(g.seats) {
		return ErrSeatOutOfRange
	}
	s := &g.seats[i]
	if !s.Vacant() {
		return ErrSeatOccupied
	}
	if s.Locked {
		return ErrSeatLocked
	}
	s.Player = player
	s.Robot = robot
	g.Touch()
	return nil
}

// StandUp vacates seat i, preserving its lock flag.
func (g *Game) StandUp(i int) error {
	if i < 0 || i >= len(g.seats) {
		return ErrSeatOutOfRange
	}
	s := &g.seats[i]
	if s.Vacant() {
		return ErrSeatVacant
	}
	s.Player = ""
	s.Robot = false
	delete(g.pendingDiscards, i)
	g.Touch()
	return nil
}

// SetSeatLock sets the lock flag on seat i.
func (g *Game) SetSeatLock(i int, locked bool) error {
	if i < 0 || i >= len(g.seats) {
		return ErrSeatOutOfRange
	}
	g.seats[i].Locked = locked
	return nil
}

// SeatOf returns the seat index player occupies, or -1.
func (g *Game) SeatOf(player string) int {
	for i, s := range g.seats {
		if s.Player == player {
			return i
		}
	}
	return -1
}

// OccupiedSeats returns the indices of occupied seats in order.
func (g *Game) OccupiedSeats() []int {
	var out []int
	for i, s := range g.seats {
		if !s.Vacant() {
			out = append(out, i)
		}
	}
	return out
}

// VacantUnlockedSeats returns the indices of seats a player could take.
func (g *Game) VacantUnlockedSeats() []int {
	var out []int
	for i, s := range g.seats {
		if s.Vacant() && !s.Locked {
			out = append(out, i)
		}
	}
	return out
}

// HumanCount returns the number of seated human players.
func (g *Game) HumanCount() int {
	n := 0
	for _, s := range g.seats {
		if !s.Vacant() && !s.Robot {
			n++
		}
	}
	return n
}

// RobotCount returns the number of seated robots.
func (g *Game) RobotCount() int {
	n := 0
	for _, s := range g.seats {
		if !s.Vacant() && s.Robot {
			n++
		}
	}
	return n
}

// NextOccupiedSeat returns the first occupied seat strictly after `from`,
// wrapping around, or -1 if none other than `from` is occupied.
func (g *Game) NextOccupiedSeat(from int) int {
	n := len(g.seats)
	for off := 1; off <= n; off++ {
		i := (from + off) % n
		if !g.seats[i].Vacant() && i != from {
			return i
		}
	}
	return -1
}

// SetPendingDiscard records that a seat owes a discard of count resources.
func (g *Game) SetPendingDiscard(seat, count int) {
	if count <= 0 {
		delete(g.pendingDiscards, seat)
		return
	}
	g.pendingDiscards[seat] = count
}

// PendingDiscard returns the discard owed by seat, zero if none.
func (g *Game) PendingDiscard(seat int) int {
	return g.pendingDiscards[seat]
}

// PendingDiscards returns a copy of all owed discards.
func (g *Game) PendingDiscards() map[int]int {
	out := make(map[int]int, len(g.pendingDiscards))
	for k, v := range g.pendingDiscards {
		out[k] = v
	}
	return out
}

// SetTradeOfferOpen records whether the current player has an open trade
// offer. The watchdog applies a longer inactivity threshold while true.
func (g *Game) SetTradeOfferOpen(open bool) {
	g.tradeOfferOpen = open
	g.Touch()
}

// TradeOfferOpen reports whether the current player has an open trade offer.
func (g *Game) TradeOfferOpen() bool { return g.tradeOfferOpen }
