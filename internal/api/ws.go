package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"
)

// snapshotPushInterval is the cadence of portfolio pushes.
const snapshotPushInterval = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handlePortfolioWS upgrades the connection and pushes a portfolio snapshot
// every second until the client departs.
func (s *Server) handlePortfolioWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logs.Warnf("websocket upgrade failed: %+v", err)
		return
	}
	defer conn.Close()

	// Drain client frames so control messages (ping/pong, close) are
	// processed; the push channel itself is one-way.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(snapshotPushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.tracker.Snapshot()); err != nil {
				logs.Debugf("websocket client departed: %v", err)
				return
			}
		}
	}
}
