package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/quizdash/quizdash/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// stream upgrades the connection and pushes session snapshots as they land in
// the store. The stream is write-only; commands go through the REST surface.
// A slow client sees the latest snapshot, not a backlog.
func (a *API) stream(c *gin.Context) {
	ctx := c.Request.Context()
	pin := c.Param("pin")

	sess, err := a.store.GetSession(ctx, pin)
	if err != nil {
		abortWithError(c, err)
		return
	}
	asHost := c.GetHeader(headerHostID) == sess.HostID

	co, err := a.coords.Get(ctx, pin)
	if err != nil {
		abortWithError(c, err)
		return
	}
	quiz := co.Quiz()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("api: websocket upgrade failed", "pin", pin, "error", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage, 1)
	done := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for {
			select {
			case <-done:
				return
			case msg := <-send:
				if err := conn.WriteJSON(msg); err != nil {
					slog.Warn("api: websocket write failed", "pin", pin, "error", err)
					return
				}
			}
		}
	}()

	cancel, err := co.SubscribeToGameState(ctx, func(s domain.Session) {
		msg := outboundMessage{
			Type:    "session",
			Payload: stateView(s, quiz, asHost),
		}
		// Latest snapshot wins; a full buffer means the previous one is
		// superseded, not queued behind.
		for {
			select {
			case <-done:
				return
			case send <- msg:
				return
			default:
				select {
				case <-send:
				default:
				}
			}
		}
	})
	if err != nil {
		close(done)
		slog.Warn("api: websocket subscribe failed", "pin", pin, "error", err)
		return
	}
	defer cancel()

	// Drain the read side purely to learn about the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(done)
	cancel()
	<-writerDone
}
