package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/model"
)

// SessionDirectory is the read model the hub needs for authorization and timer snapshots.
type SessionDirectory interface {
	GetSessionOwner(ctx context.Context, id uuid.UUID) (uuid.UUID, *model.TimerState, error)
	ListTimerStates(ctx context.Context, ids []uuid.UUID) ([]model.TimerState, error)
}

// Client is one authenticated connection. Messages queued on it are written by the connection's pump.
type Client struct {
	UserID uuid.UUID
	Role   model.Role

	send   chan []byte
	rooms  map[uuid.UUID]struct{} // guarded by Hub.mu
	closed bool                   // guarded by Hub.mu
}

// NewClient creates a client with a send queue of the given capacity.
func NewClient(userID uuid.UUID, role model.Role, buffer int) *Client {
	if buffer <= 0 {
		buffer = 32
	}
	return &Client{
		UserID: userID,
		Role:   role,
		send:   make(chan []byte, buffer),
		rooms:  make(map[uuid.UUID]struct{}),
	}
}

// Send returns the queue the write pump drains. It is closed when the client leaves the hub.
func (c *Client) Send() <-chan []byte { return c.send }

func (c *Client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Hub keeps one room per exam session and pushes events and countdown snapshots to its members.
type Hub struct {
	dir          SessionDirectory
	interval     time.Duration
	queryTimeout time.Duration
	log          zerolog.Logger
	now          func() time.Time

	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*Client]struct{}
}

// NewHub creates a hub that ticks every interval.
func NewHub(dir SessionDirectory, interval time.Duration, log zerolog.Logger) *Hub {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Hub{
		dir:          dir,
		interval:     interval,
		queryTimeout: interval,
		log:          log.With().Str("component", "ws_hub").Logger(),
		now:          time.Now,
		rooms:        make(map[uuid.UUID]map[*Client]struct{}),
	}
}

// Join subscribes c to the room of sessionID and queues an ack carrying ref.
// Students may only join their own sessions; supervisors and admins may join
// any. The ack is queued before c becomes a room member, so it always precedes
// the timer snapshot every member receives on success.
func (h *Hub) Join(ctx context.Context, c *Client, sessionID uuid.UUID, ref string) (bool, string) {
	ok, reason := h.join(ctx, c, sessionID, ref)
	if !ok {
		h.Reply(c, AckResponse{Event: EventAck, Ref: ref, OK: false, Reason: reason})
	}
	return ok, reason
}

func (h *Hub) join(ctx context.Context, c *Client, sessionID uuid.UUID, ref string) (bool, string) {
	qctx, cancel := context.WithTimeout(ctx, h.queryTimeout)
	defer cancel()

	owner, state, err := h.dir.GetSessionOwner(qctx, sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ReasonNotFound
	}
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("join lookup failed")
		return false, ReasonError
	}
	if owner != c.UserID && !c.Role.CanObserve() {
		return false, ReasonForbidden
	}

	ack, err := json.Marshal(AckResponse{Event: EventAck, Ref: ref, OK: true})
	if err != nil {
		h.log.Error().Err(err).Msg("encode ack")
		return false, ReasonError
	}

	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return false, ReasonError
	}
	if !c.enqueue(ack) {
		h.log.Debug().Str("user_id", c.UserID.String()).Msg("ack dropped, send queue full")
	}
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[sessionID] = room
	}
	room[c] = struct{}{}
	c.rooms[sessionID] = struct{}{}
	h.mu.Unlock()

	h.broadcastTimer(*state)
	return true, ""
}

// Leave removes c from every room and closes its send queue. Safe to call more than once.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	for id := range c.rooms {
		if room, ok := h.rooms[id]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, id)
			}
		}
	}
	c.rooms = nil
	c.closed = true
	close(c.send)
}

// Reply queues a direct message for c, such as an ack. Dropped if the queue is full.
func (h *Hub) Reply(c *Client, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("encode reply")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c.closed {
		return
	}
	if !c.enqueue(payload) {
		h.log.Debug().Str("user_id", c.UserID.String()).Msg("reply dropped, send queue full")
	}
}

// Notify implements service.Notifier with local delivery.
func (h *Hub) Notify(sessionID uuid.UUID, event model.EventName, data any) {
	payload, err := Encode(event, data)
	if err != nil {
		h.log.Error().Err(err).Str("event", string(event)).Msg("encode event")
		return
	}
	h.Broadcast(sessionID, payload)
}

// Broadcast queues payload for every member of the session room without blocking.
// Members whose queue is full miss this message.
func (h *Hub) Broadcast(sessionID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for c := range h.rooms[sessionID] {
		if !c.enqueue(payload) {
			dropped++
		}
	}
	if dropped > 0 {
		h.log.Debug().
			Str("session_id", sessionID.String()).
			Int("dropped", dropped).
			Msg("send queue full, message dropped")
	}
}

// Members returns the number of clients in a session room.
func (h *Hub) Members(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// Run emits timer snapshots for every joined session until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info().Dur("interval", h.interval).Msg("Timer ticker started")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Timer ticker stopped")
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *Hub) tick(ctx context.Context) {
	ids := h.joinedSessions()
	if len(ids) == 0 {
		return
	}

	qctx, cancel := context.WithTimeout(ctx, h.queryTimeout)
	defer cancel()

	states, err := h.dir.ListTimerStates(qctx, ids)
	if err != nil {
		h.log.Warn().Err(err).Int("sessions", len(ids)).Msg("timer tick skipped")
		return
	}
	for _, st := range states {
		h.broadcastTimer(st)
	}
}

func (h *Hub) joinedSessions() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) broadcastTimer(st model.TimerState) {
	left := 0
	if st.Status == model.SessionStatusActive {
		left = model.SecondsUntil(st.DeadlineAt, h.now())
	}
	h.Notify(st.SessionID, model.EventSessionTimer, model.SessionTimerEvent{
		SessionID:   st.SessionID,
		Step:        st.Step,
		TimeLeftSec: left,
		Status:      st.Status,
	})
}

// Encode builds the wire form of a room event.
func Encode(event model.EventName, data any) ([]byte, error) {
	return json.Marshal(Envelope{Event: string(event), Data: data})
}
