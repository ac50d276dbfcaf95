package server

import (
	"sort"
	"strings"
	"sync"

	"github.com/marchhare/gametable/pkg/game"
	"github.com/marchhare/gametable/pkg/protocol"
)

// Room is a named gathering of connections: a chat channel, or a game room
// carrying a game state. Member and game mutation happens under the room
// mutex; methods taking a RoomLock require the caller to already hold it.
type Room struct {
	Name  string
	mu    sync.Mutex
	owner string
	members map[*Conn]struct{}

	// Game rooms only.
	Game       *game.Game
	MinVersion int
	Options    []protocol.GameOption
	resetVote  *resetVote

	// seatWaiters holds humans waiting for a robot they displaced to give
	// its seat back. startRequested records that a member asked to start
	// while robot seats were still being filled.
	seatWaiters    map[int]*Conn
	startRequested bool
	expiryWarned   bool
}

// RoomLock is proof that the holder locked a specific room. Methods that
// require the lock take it as a parameter so a missing acquisition is a
// compile error rather than a race.
type RoomLock struct{ room *Room }

// Lock acquires the room mutex. Never call while holding the directory
// write path of another room; directory then room is the only valid order.
func (rm *Room) Lock() RoomLock {
	rm.mu.Lock()
	return RoomLock{rm}
}

func (rm *Room) Unlock(lk RoomLock) {
	if lk.room != rm {
		panic("room: unlock with foreign lock token")
	}
	rm.mu.Unlock()
}

func (rm *Room) addMemberLocked(lk RoomLock, c *Conn) bool {
	_ = lk
	if _, ok := rm.members[c]; ok {
		return false
	}
	rm.members[c] = struct{}{}
	return true
}

func (rm *Room) removeMemberLocked(lk RoomLock, c *Conn) bool {
	_ = lk
	if _, ok := rm.members[c]; !ok {
		return false
	}
	delete(rm.members, c)
	return true
}

// HasMemberLocked reports membership under the held lock.
func (rm *Room) HasMemberLocked(lk RoomLock, c *Conn) bool {
	_ = lk
	_, ok := rm.members[c]
	return ok
}

// MembersLocked returns a snapshot of the member set.
func (rm *Room) MembersLocked(lk RoomLock) []*Conn {
	_ = lk
	out := make([]*Conn, 0, len(rm.members))
	for c := range rm.members {
		out = append(out, c)
	}
	return out
}

// MemberNamesLocked returns sorted member names.
func (rm *Room) MemberNamesLocked(lk RoomLock) []string {
	_ = lk
	out := make([]string, 0, len(rm.members))
	for c := range rm.members {
		out = append(out, c.Name())
	}
	sort.Strings(out)
	return out
}

func (rm *Room) EmptyLocked(lk RoomLock) bool {
	_ = lk
	return len(rm.members) == 0
}

// HumanMemberCountLocked counts members that are not robot connections.
// Observers count; a game stays alive for them even with every seat
// robot-held.
func (rm *Room) HumanMemberCountLocked(lk RoomLock) int {
	_ = lk
	n := 0
	for c := range rm.members {
		if !c.Data().IsRobot {
			n++
		}
	}
	return n
}

// OwnerLocked returns the creator's name.
func (rm *Room) OwnerLocked(lk RoomLock) string {
	_ = lk
	return rm.owner
}

// Members locks the room and returns a member snapshot. Convenience for
// callers that need nothing else under the lock.
func (rm *Room) Members() []*Conn {
	lk := rm.Lock()
	defer rm.Unlock(lk)
	return rm.MembersLocked(lk)
}

// Directory is the case-insensitive name index for one kind of room.
// The directory mutex guards only the map; room contents get the room lock.
type Directory struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string]*Room)}
}

// Get returns the room registered under name, case-insensitively.
func (d *Directory) Get(name string) (*Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rm, ok := d.rooms[strings.ToLower(name)]
	return rm, ok
}

// Create registers a new room under name. Returns false if the name is
// taken (case-insensitively).
func (d *Directory) Create(name, owner string) (*Room, bool) {
	key := strings.ToLower(name)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, taken := d.rooms[key]; taken {
		return nil, false
	}
	rm := &Room{
		Name:        name,
		owner:       owner,
		members:     make(map[*Conn]struct{}),
		seatWaiters: make(map[int]*Conn),
	}
	d.rooms[key] = rm
	return rm, true
}

// Remove unregisters the room if it is still the one registered under its
// name. Callers must not hold the room lock.
func (d *Directory) Remove(rm *Room) {
	key := strings.ToLower(rm.Name)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rooms[key] == rm {
		delete(d.rooms, key)
	}
}

// Names returns all room names, sorted.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.rooms))
	for _, rm := range d.rooms {
		out = append(out, rm.Name)
	}
	sort.Strings(out)
	return out
}

// All returns every registered room.
func (d *Directory) All() []*Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Room, 0, len(d.rooms))
	for _, rm := range d.rooms {
		out = append(out, rm)
	}
	return out
}

// Count returns the number of registered rooms.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

// CountOwnedBy returns how many rooms owner created, case-insensitively.
func (d *Directory) CountOwnedBy(owner string) int {
	key := strings.ToLower(owner)
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, rm := range d.rooms {
		if strings.ToLower(rm.owner) == key {
			n++
		}
	}
	return n
}
