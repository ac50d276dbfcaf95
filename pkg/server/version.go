package server

import (
	"time"

	"github.com/marchhare/gametable/pkg/protocol"
)

// scheduleVersionGuess arms the per-connection guess timer. A well-behaved
// client reports its version immediately after connecting; if none arrives
// before the timeout we assume VersionFallback so the connection can be
// served, and upgrade later if the client finally reports.
//
// Dispatch goroutine only.
func (s *Server) scheduleVersionGuess(c *Conn) {
	c.versionTimer = time.AfterFunc(s.config.VersionGuessTimeout, func() {
		s.enqueue(func() {
			if _, known := c.Version(); known {
				return
			}
			if v, _ := c.Version(); v != 0 {
				return
			}
			debugLog.Printf("conn %d: no version report, assuming %d", c.ID, protocol.VersionFallback)
			c.setVersion(protocol.VersionFallback, false)
			s.stats.ClientConnected(protocol.VersionFallback)
			s.sendWelcomeListings(c)
		})
	})
}

// handleVersion processes a client's Version report.
//
// A report that contradicts an already-known version means a confused or
// hostile client and ends the connection. The first resolved version, whether
// reported or assumed, triggers the directory listings; a report arriving
// after the guess timer fired upgrades the assumed version and re-sends the
// listings the guessed band withheld or distorted.
func (s *Server) handleVersion(c *Conn, msg *protocol.Version) {
	if c.versionTimer != nil {
		c.versionTimer.Stop()
		c.versionTimer = nil
	}

	cur, known := c.Version()
	if known {
		if cur != msg.Vers {
			errorLog.Printf("conn %d: version changed from %d to %d, dropping", c.ID, cur, msg.Vers)
			c.Send(&protocol.RejectConnection{Reason: "Version already reported"})
			s.dropConn(c)
		}
		return
	}

	guessed := cur
	c.setVersion(msg.Vers, true)
	if guessed != 0 {
		s.stats.ClientDisconnected(guessed)
	}
	s.stats.ClientConnected(msg.Vers)
	debugLog.Printf("conn %d: version %d (build %q)", c.ID, msg.Vers, msg.Build)

	if msg.Vers < protocol.VersionFallback {
		c.Send(&protocol.StatusMessage{
			Status: protocol.StatusVersionTooOld,
			Detail: protocol.VersionFallback,
			Text:   "This server requires a newer client.",
		})
	}

	// A prompt reporter gets its first listings here. A late reporter whose
	// guessed band was wrong gets fresh ones; if the guess was right, the
	// listings sent when the timer fired already match.
	if guessed == 0 || guessed != msg.Vers {
		s.sendWelcomeListings(c)
	}
}

// sendWelcomeListings sends the channel and game directory listings tailored
// to c's current version band.
func (s *Server) sendWelcomeListings(c *Conn) {
	c.Send(&protocol.Channels{Names: s.channels.Names()})
	c.Send(&protocol.Games{Entries: s.gameEntriesFor(c)})
}

// gameEntriesFor builds the game listing c's version can parse: clients at
// or above the unjoinable-marker version see every game with a joinable
// flag, older clients see only the games they could actually join.
func (s *Server) gameEntriesFor(c *Conn) []protocol.GameEntry {
	v, _ := c.Version()
	var entries []protocol.GameEntry
	for _, rm := range s.games.All() {
		joinable := rm.MinVersion <= v
		if !joinable && v < protocol.VersionUnjoinableMarker {
			continue
		}
		entries = append(entries, protocol.GameEntry{Name: rm.Name, Joinable: joinable})
	}
	return entries
}
