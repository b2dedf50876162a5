package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/atikulmunna/memlens/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades to WebSocket and streams publications to the
// client. A "tool" query parameter restricts the stream to one tool.
func (s *Server) handleWebSocket(c *gin.Context) {
	// Subscribe before the handshake completes so the client sees every
	// publication made after its dial returns.
	pubs := s.deps.Hub.Subscribe()
	defer s.deps.Hub.Unsubscribe(pubs)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	only := c.Query("tool")

	// Read pump: detect client disconnect.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Write pump: send publications as JSON.
	for {
		select {
		case <-gone:
			return
		case p, ok := <-pubs:
			if !ok {
				return
			}
			if only != "" && p.Tool != only {
				continue
			}
			if err := conn.WriteJSON(p); err != nil {
				logging.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}
