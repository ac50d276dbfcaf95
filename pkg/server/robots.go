package server

import (
	"strings"
	"time"

	"github.com/marchhare/gametable/pkg/protocol"
)

// robotRequest is one outstanding ask: a robot has been told to join a game
// for a seat and has not joined yet.
type robotRequest struct {
	robot *Conn
	seat  int
	sent  time.Time
}

// RobotPool tracks the built-in robots connected to this server and the
// join requests in flight to them. All methods run on the dispatch
// goroutine; the pool needs no lock of its own.
type RobotPool struct {
	roster  []*Conn
	pending map[string][]*robotRequest // lowercased game name
}

func NewRobotPool() *RobotPool {
	return &RobotPool{pending: make(map[string][]*robotRequest)}
}

// Register adds a newly authenticated built-in robot to the roster.
func (p *RobotPool) Register(c *Conn) {
	p.roster = append(p.roster, c)
}

// Unregister removes c from the roster and cancels its in-flight requests.
func (p *RobotPool) Unregister(c *Conn) {
	for i, rc := range p.roster {
		if rc == c {
			p.roster = append(p.roster[:i], p.roster[i+1:]...)
			break
		}
	}
	for gname, reqs := range p.pending {
		kept := reqs[:0]
		for _, req := range reqs {
			if req.robot != c {
				kept = append(kept, req)
			}
		}
		if len(kept) == 0 {
			delete(p.pending, gname)
		} else {
			p.pending[gname] = kept
		}
	}
}

// Size returns the roster size.
func (p *RobotPool) Size() int { return len(p.roster) }

// busy reports whether c is already asked to join some game.
func (p *RobotPool) busy(c *Conn) bool {
	for _, reqs := range p.pending {
		for _, req := range reqs {
			if req.robot == c {
				return true
			}
		}
	}
	return false
}

// shuffle spreads robot selection across the roster with three passes of
// pairwise random swaps, so the same few robots do not end up in every
// game.
func (p *RobotPool) shuffle(candidates []*Conn, rng func(n int) int) {
	n := len(candidates)
	if n < 2 {
		return
	}
	for pass := 0; pass < 3; pass++ {
		for i := 0; i < n; i++ {
			j := rng(n)
			candidates[i], candidates[j] = candidates[j], candidates[i]
		}
	}
}

// pick selects up to want robots that are neither seated in gameName's room
// already nor pending for any game.
func (p *RobotPool) pick(rm *Room, want int, rng func(n int) int) []*Conn {
	lk := rm.Lock()
	var candidates []*Conn
	for _, c := range p.roster {
		if p.busy(c) {
			continue
		}
		if rm.HasMemberLocked(lk, c) {
			continue
		}
		candidates = append(candidates, c)
	}
	rm.Unlock(lk)

	p.shuffle(candidates, rng)
	if len(candidates) > want {
		candidates = candidates[:want]
	}
	return candidates
}

// requestJoin sends a robot off to fill seat in rm and records the ask.
func (p *RobotPool) requestJoin(rm *Room, robot *Conn, seat int, opts []protocol.GameOption) error {
	if err := robot.Send(&protocol.RobotJoinGameRequest{Game: rm.Name, Seat: seat, Options: opts}); err != nil {
		return err
	}
	key := strings.ToLower(rm.Name)
	p.pending[key] = append(p.pending[key], &robotRequest{robot: robot, seat: seat, sent: time.Now()})
	return nil
}

// claim matches a robot's JoinGame against an outstanding request for the
// game and returns the reserved seat, or -1 if the robot was never asked.
func (p *RobotPool) claim(gameName string, robot *Conn) int {
	key := strings.ToLower(gameName)
	reqs := p.pending[key]
	for i, req := range reqs {
		if req.robot == robot {
			seat := req.seat
			reqs = append(reqs[:i], reqs[i+1:]...)
			if len(reqs) == 0 {
				delete(p.pending, key)
			} else {
				p.pending[key] = reqs
			}
			return seat
		}
	}
	return -1
}

// dropPending forgets every outstanding ask for a destroyed game.
func (p *RobotPool) dropPending(gameName string) {
	delete(p.pending, strings.ToLower(gameName))
}

// expirePending drops requests older than timeout and returns them so the
// caller can try other robots for the abandoned seats.
func (p *RobotPool) expirePending(timeout time.Duration) []*robotRequest {
	now := time.Now()
	var expired []*robotRequest
	for gname, reqs := range p.pending {
		kept := reqs[:0]
		for _, req := range reqs {
			if now.Sub(req.sent) > timeout {
				expired = append(expired, req)
			} else {
				kept = append(kept, req)
			}
		}
		if len(kept) == 0 {
			delete(p.pending, gname)
		} else {
			p.pending[gname] = kept
		}
	}
	return expired
}

// fillSeats asks robots to occupy the vacant unlocked seats of rm's game.
// Returns how many were asked. Dispatch goroutine only.
func (s *Server) fillSeats(rm *Room, lk RoomLock, want int) int {
	if rm.Game == nil {
		return 0
	}
	seats := rm.Game.VacantUnlockedSeats()
	if want > 0 && len(seats) > want {
		seats = seats[:want]
	}
	if len(seats) == 0 {
		return 0
	}

	// pick takes the room lock itself; release around it. The seat list may
	// be stale after relocking, but robots claim seats on arrival and a seat
	// taken in the meantime simply falls through to the next vacancy.
	opts := rm.Options
	name := rm.Name
	rm.Unlock(lk)
	robots := s.robots.pick(rm, len(seats), s.rng.Intn)
	lk = rm.Lock()

	asked := 0
	for i, robot := range robots {
		if err := s.robots.requestJoin(rm, robot, seats[i], opts); err != nil {
			debugLog.Printf("robot join request for %s failed: %v", name, err)
			continue
		}
		asked++
	}
	return asked
}

// dismissRobot starts the two-phase removal of the robot seated at seat:
// the robot is asked to stand up and leave, and the seat is unlocked so a
// human can take it when the robot complies.
func (s *Server) dismissRobot(rm *Room, lk RoomLock, seat int) bool {
	g := rm.Game
	if g == nil {
		return false
	}
	st, err := g.SeatAt(seat)
	if err != nil || st.Vacant() || !st.Robot {
		return false
	}
	robot, ok := s.registry.Named(st.Player)
	if !ok {
		// Robot connection is gone; free the seat directly.
		g.StandUp(seat)
		g.SetSeatLock(seat, false)
		return true
	}
	g.SetSeatLock(seat, false)
	robot.Send(&protocol.RobotDismissRequest{Game: rm.Name})
	return true
}
