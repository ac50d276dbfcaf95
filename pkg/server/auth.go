package server

import (
	"regexp"
	"strings"
	"time"

	"github.com/marchhare/gametable/pkg/database"
	"github.com/marchhare/gametable/pkg/protocol"
)

// Names are letters, digits, underscores, hyphens and dots, and must contain
// at least one letter. The separators of the wire format are excluded by
// construction.
var nameRE = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Reserved prefixes belong to server-originated identities.
var reservedPrefixes = []string{"droid ", "robot ", "#", "*"}

const maxAuthQueue = 32

func (s *Server) validateName(name string) bool {
	if name == "" || len(name) > s.config.MaxNicknameLength {
		return false
	}
	if !nameRE.MatchString(name) {
		return false
	}
	hasLetter := false
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return false
	}
	lower := strings.ToLower(name)
	if lower == "server" {
		return false
	}
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(lower, p) {
			return false
		}
	}
	return true
}

// authorize runs the name gate for c wanting nick, then calls then(true)
// once c is bound to a name, or then(false) after a status reject has been
// sent. The continuation may run asynchronously: password verification
// happens off the dispatch goroutine, with c's further messages buffered
// until the verdict re-enters the queue.
//
// Dispatch goroutine only.
func (s *Server) authorize(c *Conn, nick, password string, then func(granted bool)) {
	if cur := c.Name(); cur != "" {
		if strings.EqualFold(cur, nick) {
			then(true)
			return
		}
		c.Send(&protocol.StatusMessage{
			Status: protocol.StatusNameNotAllowed,
			Text:   "You are already connected as " + cur + ".",
		})
		then(false)
		return
	}

	if !s.validateName(nick) {
		c.Send(&protocol.StatusMessage{
			Status: protocol.StatusNameNotAllowed,
			Text:   "That nickname is not allowed.",
		})
		then(false)
		return
	}

	if old, live := s.registry.Named(nick); live {
		s.tryReclaim(c, old, nick, password, then)
		return
	}

	s.checkStoredUser(c, nick, password, then)
}

// tryReclaim decides whether c may take over nick from the live connection
// old. The decision hangs on how long old has been silent: a liveness probe
// is sent on the first attempt, and the takeover is allowed once the probe
// has gone unanswered for the tier timeout. Supplying the account password
// earns the short tier; connecting from old's host earns the medium one.
func (s *Server) tryReclaim(c, old *Conn, nick, password string, then func(granted bool)) {
	if password != "" && s.db != nil {
		s.beginAuthWait(c)
		go func() {
			user, err := s.db.Authenticate(nick, password)
			s.enqueue(func() {
				s.endAuthWait(c)
				if err != nil {
					errorLog.Printf("auth lookup for %q: %v", nick, err)
				}
				tier := s.config.ReclaimDifferentOriginTimeout
				if user != nil {
					tier = s.config.ReclaimPasswordTimeout
				} else if c.Host() == old.Host() {
					tier = s.config.ReclaimSameOriginTimeout
				}
				s.finishReclaim(c, old, nick, tier, then)
				s.drainAuthQueue(c)
			})
		}()
		return
	}

	tier := s.config.ReclaimDifferentOriginTimeout
	if c.Host() == old.Host() {
		tier = s.config.ReclaimSameOriginTimeout
	}
	s.finishReclaim(c, old, nick, tier, then)
}

func (s *Server) finishReclaim(c, old *Conn, nick string, tier time.Duration, then func(granted bool)) {
	// Re-check liveness under dispatch; old may have disconnected while the
	// password was being verified.
	cur, live := s.registry.Named(nick)
	if !live || cur != old {
		s.checkStoredUser(c, nick, "", then)
		return
	}

	// The takeover would land the claimant in old's game rooms; a client
	// too old for any of them cannot resume the session at all.
	if v, _ := c.Version(); v < s.reclaimMinVersion(old) {
		c.Send(&protocol.StatusMessage{
			Status: protocol.StatusVersionTooOld,
			Detail: s.reclaimMinVersion(old),
			Text:   "That session's games need a newer client.",
		})
		then(false)
		return
	}

	data := old.Data()
	now := time.Now()
	if data.ProbeSentAt.IsZero() {
		old.UpdateData(func(d *SessionData) { d.ProbeSentAt = now })
		old.Send(&protocol.ServerPing{IntervalSeconds: int(s.config.PingInterval.Seconds())})
		s.rejectNameInUse(c, tier)
		then(false)
		return
	}

	elapsed := now.Sub(data.ProbeSentAt)
	if elapsed < tier {
		s.rejectNameInUse(c, tier-elapsed)
		then(false)
		return
	}

	s.takeover(c, old, nick)
	then(true)
}

// reclaimMinVersion returns the highest minimum client version among the
// game rooms old belongs to.
func (s *Server) reclaimMinVersion(old *Conn) int {
	need := 0
	for _, rm := range s.games.All() {
		lk := rm.Lock()
		if rm.HasMemberLocked(lk, old) && rm.MinVersion > need {
			need = rm.MinVersion
		}
		rm.Unlock(lk)
	}
	return need
}

func (s *Server) rejectNameInUse(c *Conn, wait time.Duration) {
	secs := int(wait.Seconds())
	if secs < 1 {
		secs = 1
	}
	c.Send(&protocol.StatusMessage{
		Status: protocol.StatusNameInUse,
		Detail: secs,
		Text:   "That nickname is in use. Try again shortly.",
	})
}

// takeover rebinds nick from old to c: registry entry, cross-session
// statistics, and every room membership move over, and old gets a goodbye
// in case it revives.
func (s *Server) takeover(c, old *Conn, nick string) {
	canonical := old.Name()
	s.registry.Rebind(old, c, canonical)

	oldData := old.Data()
	c.UpdateData(func(d *SessionData) {
		d.Wins = oldData.Wins
		d.Losses = oldData.Losses
		d.CreatedChannels = oldData.CreatedChannels
		d.CreatedGames = oldData.CreatedGames
	})

	for _, dir := range []*Directory{s.channels, s.games} {
		for _, rm := range dir.All() {
			lk := rm.Lock()
			if rm.removeMemberLocked(lk, old) {
				rm.addMemberLocked(lk, c)
				if rm.Game != nil {
					c.Send(&protocol.GameState{Game: rm.Name, State: int(rm.Game.State())})
				}
			}
			rm.Unlock(lk)
		}
	}

	old.mu.Lock()
	old.replacedBy = canonical
	old.mu.Unlock()
	old.Send(&protocol.RejectConnection{Reason: "Your session was resumed from another connection."})
	old.sc.Close()

	debugLog.Printf("conn %d reclaimed %q from conn %d", c.ID, canonical, old.ID)
	s.metrics.RecordReclaim()
}

// checkStoredUser handles the no-live-holder path: an account with a
// password must present it, and a stored nickname's canonical case wins
// over whatever case the client typed.
func (s *Server) checkStoredUser(c *Conn, nick, password string, then func(granted bool)) {
	if s.db == nil {
		s.bind(c, nick, then)
		return
	}

	s.beginAuthWait(c)
	go func() {
		user, err := s.db.GetUserByNickname(nick)
		var authed *database.User
		if err == nil && user != nil && user.PasswordHash != "" {
			authed, err = s.db.Authenticate(nick, password)
		}
		s.enqueue(func() {
			s.endAuthWait(c)
			defer s.drainAuthQueue(c)
			switch {
			case err == database.ErrUserNotFound || (err == nil && user == nil):
				if s.config.RequireAccount {
					c.Send(&protocol.StatusMessage{
						Status: protocol.StatusNameNotAllowed,
						Text:   "This server requires a registered account.",
					})
					then(false)
					return
				}
				s.bind(c, nick, then)
			case err != nil:
				// Storage trouble must not lock everyone out.
				errorLog.Printf("user lookup for %q: %v", nick, err)
				s.bind(c, nick, then)
			case user.PasswordHash == "":
				s.bindCanonical(c, nick, user.Nickname, then)
			case authed == nil:
				status := protocol.StatusPasswordWrong
				text := "Incorrect password for " + user.Nickname + "."
				if password == "" {
					status = protocol.StatusPasswordRequired
					text = "That nickname requires a password."
				}
				c.Send(&protocol.StatusMessage{Status: status, Text: text})
				then(false)
			default:
				s.bindCanonical(c, nick, authed.Nickname, then)
			}
		})
	}()
}

// bindCanonical binds c under the stored canonical case of its nickname. A
// client that typed a different case is told the correction if it is new
// enough to apply one, and refused otherwise.
func (s *Server) bindCanonical(c *Conn, typed, canonical string, then func(granted bool)) {
	if typed != canonical {
		v, _ := c.Version()
		if v < protocol.VersionServerRename {
			c.Send(&protocol.StatusMessage{
				Status: protocol.StatusNameNotAllowed,
				Text:   "That nickname is registered as " + canonical + ".",
			})
			then(false)
			return
		}
		c.Send(&protocol.StatusMessage{
			Status: protocol.StatusNameNeedsCaseChange,
			Text:   canonical,
		})
	}
	s.bind(c, canonical, then)
}

func (s *Server) bind(c *Conn, nick string, then func(granted bool)) {
	if err := s.registry.Bind(c, nick); err != nil {
		// Lost a race with another connection wanting the same name.
		s.rejectNameInUse(c, s.config.ReclaimDifferentOriginTimeout)
		then(false)
		return
	}
	debugLog.Printf("conn %d bound to %q", c.ID, nick)
	s.metrics.RecordNamedConnections(s.namedCount())
	then(true)
}

func (s *Server) namedCount() int {
	_, named := s.registry.Counts()
	return named
}

// beginAuthWait marks c as awaiting an auth verdict; messages arriving in
// the meantime are buffered so they are handled in arrival order after the
// verdict.
func (s *Server) beginAuthWait(c *Conn) {
	c.authPending = true
}

func (s *Server) endAuthWait(c *Conn) {
	c.authPending = false
}

// drainAuthQueue replays messages buffered during an auth wait.
func (s *Server) drainAuthQueue(c *Conn) {
	for len(c.authQueue) > 0 && !c.authPending {
		msg := c.authQueue[0]
		c.authQueue = c.authQueue[1:]
		s.handleMessage(c, msg)
	}
}
