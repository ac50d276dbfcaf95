package server

import (
	"github.com/marchhare/gametable/pkg/protocol"
)

// broadcastRoom sends msg to every member of rm, minus exclude. The message
// is encoded once and fanned out as a raw line.
func (s *Server) broadcastRoom(rm *Room, msg protocol.Message, exclude *Conn) {
	line, err := msg.Encode()
	if err != nil {
		errorLog.Printf("broadcast encode failed: %v", err)
		return
	}
	for _, c := range rm.Members() {
		if c == exclude {
			continue
		}
		if err := c.sc.WriteLine(line); err != nil {
			debugLog.Printf("broadcast to %s failed: %v", c.Name(), err)
		}
	}
}

// broadcastRoomLocked is broadcastRoom for callers already holding the
// room lock.
func (s *Server) broadcastRoomLocked(rm *Room, lk RoomLock, msg protocol.Message, exclude *Conn) {
	line, err := msg.Encode()
	if err != nil {
		errorLog.Printf("broadcast encode failed: %v", err)
		return
	}
	for _, c := range rm.MembersLocked(lk) {
		if c == exclude {
			continue
		}
		if err := c.sc.WriteLine(line); err != nil {
			debugLog.Printf("broadcast to %s failed: %v", c.Name(), err)
		}
	}
}

// broadcastAll sends msg to every named connection.
func (s *Server) broadcastAll(msg protocol.Message) {
	line, err := msg.Encode()
	if err != nil {
		errorLog.Printf("broadcast encode failed: %v", err)
		return
	}
	for _, c := range s.registry.AllNamed() {
		if err := c.sc.WriteLine(line); err != nil {
			debugLog.Printf("broadcast to %s failed: %v", c.Name(), err)
		}
	}
}

// broadcastVersionRange sends msg to every named connection whose version v
// satisfies lo <= v < hi. hi == 0 means no upper bound. Used for
// announcements that only some client generations can parse.
func (s *Server) broadcastVersionRange(msg protocol.Message, lo, hi int) {
	line, err := msg.Encode()
	if err != nil {
		errorLog.Printf("broadcast encode failed: %v", err)
		return
	}
	for _, c := range s.registry.AllNamed() {
		v, _ := c.Version()
		if v < lo || (hi != 0 && v >= hi) {
			continue
		}
		if err := c.sc.WriteLine(line); err != nil {
			debugLog.Printf("broadcast to %s failed: %v", c.Name(), err)
		}
	}
}
