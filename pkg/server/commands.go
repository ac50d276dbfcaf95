package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marchhare/gametable/pkg/protocol"
)

const serverName = "Server"

func itoa(n int) string { return strconv.Itoa(n) }

// isDebugUser reports whether name is on the privileged user list.
func (s *Server) isDebugUser(name string) bool {
	for _, u := range s.config.DebugUsers {
		if strings.EqualFold(u, name) {
			return true
		}
	}
	return false
}

// handleCommand intercepts *COMMAND* text typed into a room. Returns false
// when the text is ordinary chat.
func (s *Server) handleCommand(c *Conn, room, text string) bool {
	if !strings.HasPrefix(text, "*") {
		return false
	}
	cmd, rest := text, ""
	if i := strings.Index(text[1:], "*"); i >= 0 {
		cmd = text[:i+2]
		rest = strings.TrimSpace(text[i+2:])
	}

	switch strings.ToUpper(cmd) {
	case "*HELP*":
		s.cmdHelp(c, room)
	case "*WHO*":
		s.cmdWho(c, room)
	case "*STATS*":
		s.cmdStats(c, room)
	case "*ADDTIME*":
		s.cmdAddTime(c, room)
	case "*KILLGAME*":
		if !s.requireDebug(c, room) {
			return true
		}
		s.cmdKillGame(c, room, rest)
	case "*BCAST*":
		if !s.requireDebug(c, room) {
			return true
		}
		s.broadcastAll(&protocol.BroadcastTextMsg{Text: rest})
	case "*RESETBOT*":
		if !s.requireDebug(c, room) {
			return true
		}
		s.cmdResetBot(c, room, rest)
	default:
		return false
	}
	return true
}

func (s *Server) requireDebug(c *Conn, room string) bool {
	if s.isDebugUser(c.Name()) {
		return true
	}
	s.tell(c, room, "You are not authorized to use that command.")
	return false
}

// tell sends a server-voiced text line to one client.
func (s *Server) tell(c *Conn, room, text string) {
	if err := c.Send(&protocol.TextMsg{Room: room, Nickname: serverName, Text: text}); err != nil {
		debugLog.Printf("tell %s failed: %v", c.Name(), err)
	}
}

func (s *Server) cmdHelp(c *Conn, room string) {
	s.tell(c, room, "Commands: *HELP*, *WHO*, *STATS*, *ADDTIME*")
	if s.isDebugUser(c.Name()) {
		s.tell(c, room, "Admin commands: *KILLGAME* name, *BCAST* text, *RESETBOT* name")
	}
}

func (s *Server) cmdWho(c *Conn, room string) {
	rm, isGame := s.games.Get(room)
	if !isGame {
		var ok bool
		rm, ok = s.channels.Get(room)
		if !ok {
			return
		}
	}
	lk := rm.Lock()
	names := rm.MemberNamesLocked(lk)
	rm.Unlock(lk)
	s.tell(c, room, "Members: "+strings.Join(names, ", "))
}

func (s *Server) cmdStats(c *Conn, room string) {
	unnamed, named := s.registry.Counts()
	snap := s.stats.Snapshot()
	s.tell(c, room, fmt.Sprintf("Uptime: %s", time.Since(s.startTime).Round(time.Second)))
	s.tell(c, room, fmt.Sprintf("Connections: %d named, %d connecting", named, unnamed))
	s.tell(c, room, fmt.Sprintf("Games: %d current, %d started, %d finished", s.games.Count(), snap.GamesStarted, snap.GamesFinished))
	s.tell(c, room, fmt.Sprintf("Robots available: %d", s.robots.Size()))
	if versions := snap.ClientVersions; len(versions) > 0 {
		s.tell(c, room, "Client versions: "+versions)
	}
	if rm, ok := s.games.Get(room); ok && rm.Game != nil {
		data := c.Data()
		s.tell(c, room, fmt.Sprintf("Your record: %d wins, %d losses", data.Wins, data.Losses))
		if !rm.Game.Expires().IsZero() {
			s.tell(c, room, fmt.Sprintf("This game expires in %d minutes", int(time.Until(rm.Game.Expires()).Minutes())))
		}
	}
}

// cmdAddTime extends the current game's lifetime by 30 minutes.
func (s *Server) cmdAddTime(c *Conn, room string) {
	rm, ok := s.games.Get(room)
	if !ok || rm.Game == nil {
		s.tell(c, room, "*ADDTIME* works only inside a game.")
		return
	}
	lk := rm.Lock()
	if rm.Game.Practice {
		rm.Unlock(lk)
		s.tell(c, room, "Practice games never expire.")
		return
	}
	rm.Game.AddMinutes(30)
	rm.expiryWarned = false
	mins := int(time.Until(rm.Game.Expires()).Minutes())
	s.broadcastRoomLocked(rm, lk, &protocol.TextMsg{
		Room:     room,
		Nickname: serverName,
		Text:     fmt.Sprintf(">>> Game time extended: %d minutes remaining.", mins),
	}, nil)
	rm.Unlock(lk)
}

// cmdResetBot asks one named robot to restart. The robot is told to
// disconnect and is dropped from the pool; a well-behaved robot runner
// reconnects with a fresh brain shortly after.
func (s *Server) cmdResetBot(c *Conn, room, name string) {
	if name == "" {
		s.tell(c, room, "Usage: *RESETBOT* name")
		return
	}
	robot, ok := s.registry.Named(name)
	if !ok || !robot.Data().BuiltInRobot {
		s.tell(c, room, "No such robot: "+name)
		return
	}
	if err := robot.Send(&protocol.RejectConnection{Reason: "Please restart."}); err != nil {
		debugLog.Printf("resetbot %s: %v", name, err)
	}
	s.robots.Unregister(robot)
	s.metrics.RecordRobotsAvailable(s.robots.Size())
	s.dropConn(robot)
	s.tell(c, room, "Robot "+name+" asked to restart.")
	debugLog.Printf("robot %q reset by %s", name, c.Name())
}

func (s *Server) cmdKillGame(c *Conn, room, name string) {
	if name == "" {
		name = room
	}
	rm, ok := s.games.Get(name)
	if !ok {
		s.tell(c, room, "No such game: "+name)
		return
	}
	s.destroyGame(rm, "This game was ended by an administrator.")
	debugLog.Printf("game %q killed by %s", rm.Name, c.Name())
}
