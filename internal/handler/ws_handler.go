package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/middleware"
	"github.com/stemsi/cefr-exam-engine/internal/response"
	ws "github.com/stemsi/cefr-exam-engine/internal/websocket"
)

const clientSendBuffer = 32

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the realtime session channel.
type WSHandler struct {
	hub      *ws.Hub
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *ws.Hub, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:      hub,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions?token=
// Clients join session rooms with {"action":"session:join","ref":"1","session_id":"..."}.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	ws.PrepareConn(conn)

	client := ws.NewClient(claims.UserID, claims.Role, clientSendBuffer)
	wsLog := h.log.With().
		Str("user_id", claims.UserID.String()).
		Str("role", string(claims.Role)).
		Logger()
	wsLog.Info().Msg("Client connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(conn, client, wsLog)
	}()

	ctx := c.Request.Context()
	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionJoin:
			sessionID, err := uuid.Parse(msg.SessionID)
			if err != nil {
				h.hub.Reply(client, ws.AckResponse{Event: ws.EventAck, Ref: msg.Ref, OK: false, Reason: ws.ReasonInvalidID})
				continue
			}
			if ok, reason := h.hub.Join(ctx, client, sessionID, msg.Ref); !ok {
				wsLog.Debug().Str("session_id", sessionID.String()).Str("reason", reason).Msg("Join rejected")
			}
		case ws.ActionPing:
			h.hub.Reply(client, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			h.hub.Reply(client, ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(msg.Action)})
		}
	}

	h.hub.Leave(client)
	<-done
}

// writePump is the only writer on conn. It exits when the client's queue is closed or a write fails.
func (h *WSHandler) writePump(conn *websocket.Conn, client *ws.Client, log zerolog.Logger) {
	ticker := time.NewTicker(ws.PingPeriod())
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.Send():
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				return
			}
			if err := ws.WriteRaw(conn, msg); err != nil {
				log.Debug().Err(err).Msg("write failed")
				conn.Close()
				drainQueue(client)
				return
			}
		case <-ticker.C:
			if err := ws.WritePing(conn); err != nil {
				conn.Close()
				drainQueue(client)
				return
			}
		}
	}
}

// drainQueue discards queued messages until the hub closes the queue.
func drainQueue(client *ws.Client) {
	for range client.Send() {
	}
}
