package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marchhare/gametable/pkg/database"
	"github.com/marchhare/gametable/pkg/game"
	"github.com/marchhare/gametable/pkg/protocol"
)

var (
	errorLog *log.Logger
	debugLog *log.Logger
)

// Server coordinates every client connection, channel, game room and robot
// on one instance. Nearly all state changes funnel through a single
// dispatch goroutine; reader goroutines only parse and enqueue.
type Server struct {
	config   ServerConfig
	db       *database.DB // nil when no user store is configured
	registry *Registry
	channels *Directory
	games    *Directory
	robots   *RobotPool
	rules    game.Rules
	stats    *Stats
	metrics  *Metrics
	rng      *rand.Rand

	robotCookie string

	queue    chan func()
	shutdown chan struct{}
	wg       sync.WaitGroup

	listener      net.Listener
	httpServer    *http.Server
	metricsServer *http.Server

	startTime time.Time

	mu      sync.Mutex
	started bool
}

// NewServer builds a server from config. dbPath "" runs without a user
// store: no passwords, no persistent win/loss records.
func NewServer(config ServerConfig) (*Server, error) {
	initLoggers()

	var db *database.DB
	if config.DatabasePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.DatabasePath), 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		var err error
		db, err = database.Open(config.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
	}

	cookie := config.RobotCookie
	if cookie == "" {
		cookie = uuid.NewString()
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Server{
		config:      config,
		db:          db,
		registry:    NewRegistry(config.MaxConnections),
		channels:    NewDirectory(),
		games:       NewDirectory(),
		robots:      NewRobotPool(),
		rules:       game.NewBasicRules(rng),
		stats:       NewStats(),
		metrics:     NewMetrics(),
		rng:         rng,
		robotCookie: cookie,
		queue:       make(chan func(), 1024),
		shutdown:    make(chan struct{}),
		startTime:   time.Now(),
	}, nil
}

func initLoggers() {
	if errorLog == nil {
		errorLog = log.New(os.Stderr, "ERROR: ", log.LstdFlags)
	}
	if debugLog == nil {
		debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
	}
}

// EnableDebugLogging turns on the debug log stream.
func EnableDebugLogging(w io.Writer) {
	debugLog = log.New(w, "DEBUG: ", log.LstdFlags)
	debugLog.Println("Debug logging enabled")
}

// RobotCookie returns the cookie robots must present. Printed at startup so
// locally launched robots can pick it up.
func (s *Server) RobotCookie() string { return s.robotCookie }

// Start begins serving: TCP accept loop, websocket endpoint, metrics
// endpoint, dispatch, ping and watchdog loops. Non-blocking.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.TCPPort))
	if err != nil {
		return fmt.Errorf("listen on %d: %w", s.config.TCPPort, err)
	}
	s.listener = ln
	s.started = true

	s.wg.Add(4)
	go s.dispatchLoop()
	go s.acceptLoop()
	go s.pingLoop()
	go s.watchdogLoop()

	if s.config.HTTPPort > 0 {
		s.httpServer = s.startHTTPServer(fmt.Sprintf(":%d", s.config.HTTPPort))
	}
	if s.config.MetricsPort > 0 {
		s.metricsServer = s.startMetricsServer(fmt.Sprintf(":%d", s.config.MetricsPort))
	}

	debugLog.Printf("listening on tcp :%d", s.config.TCPPort)
	return nil
}

// Addr returns the TCP listen address, useful when port 0 was requested.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts the server down and waits for its goroutines.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.shutdown)
	if s.listener != nil {
		s.listener.Close()
	}
	if s.httpServer != nil {
		s.httpServer.Close()
	}
	if s.metricsServer != nil {
		s.metricsServer.Close()
	}
	for _, c := range s.registry.All() {
		c.sc.Close()
	}
	s.wg.Wait()
	if s.db != nil {
		s.db.Close()
	}
}

// enqueue posts fn to the dispatch goroutine. Posting after shutdown is a
// silent no-op.
func (s *Server) enqueue(fn func()) {
	select {
	case s.queue <- fn:
	case <-s.shutdown:
	}
}

func (s *Server) dispatchLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.shutdown:
			return
		case fn := <-s.queue:
			fn()
		}
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			errorLog.Printf("accept: %v", err)
			continue
		}
		s.handleNewConn(nc)
	}
}

// handleNewConn registers nc and starts its reader. Shared by the TCP
// accept loop and the websocket endpoint.
func (s *Server) handleNewConn(nc net.Conn) {
	c, err := s.registry.Add(nc)
	if err != nil {
		line, _ := (&protocol.RejectConnection{Reason: "Server is full."}).Encode()
		nc.Write([]byte(line + "\n"))
		nc.Close()
		return
	}
	s.metrics.RecordConnection()
	debugLog.Printf("conn %d from %s", c.ID, c.remoteAddr)

	s.enqueue(func() {
		s.scheduleVersionGuess(c)
		c.Send(&protocol.Version{Vers: protocol.VersionLatest, Build: "gametable"})
	})

	s.wg.Add(1)
	go s.readLoop(c)
}

// readLoop parses lines off the wire and hands each message to dispatch.
// Protocol errors on a single line are tolerated; framing errors end the
// connection.
func (s *Server) readLoop(c *Conn) {
	defer s.wg.Done()
	r := protocol.NewReader(c.sc.Conn())
	for {
		msg, err := r.ReadMessage()
		if err != nil {
			switch {
			case err == io.EOF:
			case errors.Is(err, protocol.ErrLineTooLong):
				errorLog.Printf("conn %d: line too long, dropping", c.ID)
			case errors.Is(err, protocol.ErrUnknownType),
				errors.Is(err, protocol.ErrBadFieldCount),
				errors.Is(err, protocol.ErrBadFieldValue),
				errors.Is(err, protocol.ErrEmptyLine):
				debugLog.Printf("conn %d: bad message: %v", c.ID, err)
				continue
			default:
				debugLog.Printf("conn %d: read: %v", c.ID, err)
			}
			break
		}
		s.enqueue(func() { s.handleMessage(c, msg) })
	}
	s.enqueue(func() { s.handleDisconnect(c) })
}

// dropConn forcibly ends a connection; the reader noticing the close runs
// the normal disconnect path.
func (s *Server) dropConn(c *Conn) {
	c.sc.Close()
}

// handleDisconnect cleans up after a connection: registry, robot pool,
// room memberships. A connection whose name was reclaimed leaves no
// memberships behind; they moved with the name.
// Dispatch goroutine only.
func (s *Server) handleDisconnect(c *Conn) {
	if c.versionTimer != nil {
		c.versionTimer.Stop()
		c.versionTimer = nil
	}

	held := s.registry.Remove(c)
	s.metrics.RecordDisconnection()
	if v, _ := c.Version(); v != 0 {
		s.stats.ClientDisconnected(v)
	}

	if c.Data().BuiltInRobot {
		s.robots.Unregister(c)
		s.metrics.RecordRobotsAvailable(s.robots.Size())
	}

	if held && c.Name() != "" {
		for _, rm := range s.channels.All() {
			s.leaveChannel(c, rm)
		}
		for _, rm := range s.games.All() {
			s.leaveGame(c, rm)
		}
		s.metrics.RecordNamedConnections(s.namedCount())
	}
	c.sc.Close()
	c.mu.RLock()
	replaced := c.replacedBy
	c.mu.RUnlock()
	if replaced != "" {
		debugLog.Printf("conn %d disconnected, session continues as %q", c.ID, replaced)
	} else {
		debugLog.Printf("conn %d (%s) disconnected", c.ID, c.Name())
	}
}

// pingLoop keeps idle connections verifiably alive. Connections that have
// ignored a probe for two full intervals get dropped.
func (s *Server) pingLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.enqueue(s.pingSweep)
		}
	}
}

func (s *Server) pingSweep() {
	now := time.Now()
	ping := &protocol.ServerPing{IntervalSeconds: int(s.config.PingInterval.Seconds())}
	for _, c := range s.registry.AllNamed() {
		data := c.Data()
		if !data.ProbeSentAt.IsZero() && now.Sub(data.ProbeSentAt) > 2*s.config.PingInterval {
			debugLog.Printf("conn %d (%s) unresponsive, dropping", c.ID, c.Name())
			s.dropConn(c)
			continue
		}
		if data.ProbeSentAt.IsZero() && now.Sub(data.LastPing) >= s.config.PingInterval {
			c.UpdateData(func(d *SessionData) { d.ProbeSentAt = now })
			c.Send(ping)
		}
	}
}
