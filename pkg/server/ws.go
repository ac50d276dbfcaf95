package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect from arbitrary origins; the name gate is the
	// real admission control.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// startHTTPServer serves the websocket endpoint on addr. Each websocket
// client speaks the same line protocol as TCP clients, one line per text
// frame.
func (s *Server) startHTTPServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errorLog.Printf("http server: %v", err)
		}
	}()
	return srv
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		debugLog.Printf("websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	s.handleNewConn(newWSConn(ws))
}

// wsConn adapts a websocket connection to net.Conn so the rest of the
// server cannot tell transports apart. Reads stitch text frames back into
// a newline-terminated stream; writes split the stream on newlines, one
// frame per line.
type wsConn struct {
	ws      *websocket.Conn
	readBuf []byte

	writeMu sync.Mutex
	pending strings.Builder
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for len(c.readBuf) == 0 {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		if len(data) == 0 {
			continue
		}
		c.readBuf = append(data, '\n')
	}
	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.pending.Write(p)
	buffered := c.pending.String()
	for {
		i := strings.IndexByte(buffered, '\n')
		if i < 0 {
			break
		}
		line := buffered[:i]
		buffered = buffered[i+1:]
		if err := c.ws.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return 0, err
		}
	}
	c.pending.Reset()
	c.pending.WriteString(buffered)
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr                { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr               { return c.ws.RemoteAddr() }
func (c *wsConn) SetDeadline(t time.Time) error      { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
