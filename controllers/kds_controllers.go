package controllers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/floor-ops/kds"
	"github.com/yeremiapane/floor-ops/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboards authenticate with the token query parameter
	},
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

type StreamController struct {
	Hub       *kds.Hub
	Heartbeat time.Duration
}

func NewStreamController(hub *kds.Hub, heartbeat time.Duration) *StreamController {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &StreamController{Hub: hub, Heartbeat: heartbeat}
}

// SSE -> GET /admin/stream
// One event per hub message plus a ping every Heartbeat so proxies keep the
// connection open. The stream ends when the client goes away.
func (sc *StreamController) SSE(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	client := sc.Hub.Register(actor.TenantID, string(actor.Role))
	defer sc.Hub.Unregister(client)

	ticker := time.NewTicker(sc.Heartbeat)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	logger := utils.InfoLogger.WithFields(logrus.Fields{"tenant": actor.TenantID, "role": actor.Role})
	logger.Debug("sse client connected")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, open := <-client.Send:
			if !open {
				return false
			}
			c.SSEvent(msg.Event, msg.Data)
			return true
		case t := <-ticker.C:
			c.SSEvent(kds.EventPing, gin.H{"time": t.UTC()})
			return true
		}
	})

	logger.WithField("dropped", client.Dropped()).Debug("sse client disconnected")
}

// WebSocket -> GET /ws
// Same feed as SSE for dashboards that prefer a socket. Anything the client
// sends is ignored; reading only serves to notice disconnects and pongs.
func (sc *StreamController) WebSocket(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.ErrorLogger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer ws.Close()

	client := sc.Hub.Register(actor.TenantID, string(actor.Role))
	defer sc.Hub.Unregister(client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg, open := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !open {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
