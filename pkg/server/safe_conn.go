package server

import (
	"net"
	"sync"

	"github.com/marchhare/gametable/pkg/protocol"
)

// SafeConn wraps a net.Conn with automatic write synchronization so that
// handler and broadcast goroutines never interleave partial lines on the
// wire. The raw conn is private: writing a message without the lock is not
// expressible.
type SafeConn struct {
	conn net.Conn
	mu   sync.Mutex // Protects writes to conn
}

// NewSafeConn wraps a net.Conn with write synchronization
func NewSafeConn(conn net.Conn) *SafeConn {
	return &SafeConn{conn: conn}
}

// WriteMessage encodes and sends one protocol line.
func (sc *SafeConn) WriteMessage(msg protocol.Message) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return protocol.WriteMessage(sc.conn, msg)
}

// WriteLine writes a pre-encoded line. Used by broadcast paths that encode
// once per version band and fan the bytes out.
func (sc *SafeConn) WriteLine(line string) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	_, err := sc.conn.Write([]byte(line + "\n"))
	return err
}

// Conn exposes the underlying connection for reading; writes must go
// through the SafeConn methods.
func (sc *SafeConn) Conn() net.Conn {
	return sc.conn
}

// Close closes the underlying connection
func (sc *SafeConn) Close() error {
	return sc.conn.Close()
}

// RemoteAddr returns the remote network address
func (sc *SafeConn) RemoteAddr() net.Addr {
	return sc.conn.RemoteAddr()
}
