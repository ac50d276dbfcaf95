package server

import (
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marchhare/gametable/pkg/protocol"
)

var ErrServerFull = errors.New("connection limit reached")

// SessionData is the opaque per-connection session record: role flags,
// per-session counters, and reconnect bookkeeping. Cross-session statistics
// (wins/losses, creation counters) are copied to the new connection when a
// name is reclaimed.
type SessionData struct {
	IsRobot      bool
	BuiltInRobot bool
	RobotClass   string

	CreatedChannels int
	CreatedGames    int
	Wins            int
	Losses          int

	// Reconnect bookkeeping. ProbeSentAt is nonzero while a liveness probe
	// to this connection awaits an answer; LastPing is the last answered
	// probe.
	ProbeSentAt time.Time
	LastPing    time.Time
}

// Conn is one live client connection, named or not.
type Conn struct {
	ID         uint64
	sc         *SafeConn
	remoteAddr string
	host       string // remote host without port, for origin comparison

	mu        sync.RWMutex
	name      string // empty until authenticated
	version   int    // 0 until reported or guessed
	versKnown bool   // true only for client-reported versions
	connected time.Time
	data      SessionData

	// Dispatch-goroutine-only state; never touched outside the treater.
	versionTimer *time.Timer
	authPending  bool
	authQueue    []protocol.Message
	replacedBy   string // set when another connection reclaimed our name
}

func newConn(id uint64, nc net.Conn) *Conn {
	addr := nc.RemoteAddr().String()
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	return &Conn{
		ID:         id,
		sc:         NewSafeConn(nc),
		remoteAddr: addr,
		host:       host,
		connected:  time.Now(),
	}
}

// Name returns the connection's bound name, empty until authenticated.
func (c *Conn) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Version returns the negotiated version and whether it was client-reported
// (as opposed to assumed on timeout).
func (c *Conn) Version() (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version, c.versKnown
}

func (c *Conn) setVersion(v int, known bool) {
	c.mu.Lock()
	c.version = v
	c.versKnown = known
	c.mu.Unlock()
}

// Host returns the remote host, without port.
func (c *Conn) Host() string { return c.host }

// Data returns a copy of the session record.
func (c *Conn) Data() SessionData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data
}

// UpdateData applies fn to the session record under the connection lock.
func (c *Conn) UpdateData(fn func(*SessionData)) {
	c.mu.Lock()
	fn(&c.data)
	c.mu.Unlock()
}

// Send writes msg to the connection.
func (c *Conn) Send(msg protocol.Message) error {
	return c.sc.WriteMessage(msg)
}

// Registry tracks every live connection, split into unnamed (not yet
// authenticated) and named (bound to a unique player identity). Name keys
// are lowercased: a name may be held by at most one live connection
// regardless of case.
type Registry struct {
	mu      sync.RWMutex
	unnamed map[uint64]*Conn
	named   map[string]*Conn
	max     int
	nextID  uint64
}

// NewRegistry creates a registry capped at max connections (0 = unlimited).
func NewRegistry(max int) *Registry {
	return &Registry{
		unnamed: make(map[uint64]*Conn),
		named:   make(map[string]*Conn),
		max:     max,
	}
}

// Add registers a fresh, unnamed connection.
func (r *Registry) Add(nc net.Conn) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && len(r.unnamed)+len(r.named) >= r.max {
		return nil, ErrServerFull
	}
	id := atomic.AddUint64(&r.nextID, 1)
	c := newConn(id, nc)
	r.unnamed[id] = c
	return c, nil
}

// Bind moves c from the unnamed set to the named map under name. Fails if
// the name (case-insensitive) is already bound to a live connection.
func (r *Registry) Bind(c *Conn, name string) error {
	key := strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.named[key]; taken {
		return errors.New("name already bound")
	}
	delete(r.unnamed, c.ID)
	r.named[key] = c
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
	return nil
}

// Rebind atomically replaces old with new under the same name, as part of a
// reclaim takeover. The old connection keeps its name field for the goodbye
// message but is no longer reachable through the registry.
func (r *Registry) Rebind(old, repl *Conn, name string) {
	key := strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.named[key] == old {
		delete(r.unnamed, repl.ID)
		r.named[key] = repl
		repl.mu.Lock()
		repl.name = name
		repl.mu.Unlock()
	}
}

// Named returns the live connection bound to name, case-insensitively.
func (r *Registry) Named(name string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.named[strings.ToLower(name)]
	return c, ok
}

// Remove drops c from whichever set holds it. Reports whether c was the
// current holder of its name (a reclaimed-away connection is not).
func (r *Registry) Remove(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.unnamed, c.ID)
	name := strings.ToLower(c.Name())
	if name != "" && r.named[name] == c {
		delete(r.named, name)
		return true
	}
	return false
}

// AllNamed returns a snapshot of every named connection.
func (r *Registry) AllNamed() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.named))
	for _, c := range r.named {
		out = append(out, c)
	}
	return out
}

// All returns a snapshot of every connection, named or not.
func (r *Registry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.named)+len(r.unnamed))
	for _, c := range r.named {
		out = append(out, c)
	}
	for _, c := range r.unnamed {
		out = append(out, c)
	}
	return out
}

// Counts returns the number of unnamed and named connections.
func (r *Registry) Counts() (unnamed, named int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.unnamed), len(r.named)
}

// VersionRange returns the minimum and maximum versions across named
// connections, excluding c. Zero results mean no other named connections.
func (r *Registry) VersionRange(exclude *Conn) (min, max int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.named {
		if c == exclude {
			continue
		}
		v, _ := c.Version()
		if v == 0 {
			continue
		}
		if min == 0 || v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
