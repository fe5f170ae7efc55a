package websocket

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/config"
	"github.com/stemsi/cefr-exam-engine/internal/model"
)

const publishTimeout = 2 * time.Second

// RedisRelay fans room events out to every instance through Redis PubSub.
// Each instance's Run loop delivers received events to its local hub.
type RedisRelay struct {
	rdb *redis.Client
	hub *Hub
	log zerolog.Logger
}

// NewRedisRelay creates a relay delivering into hub.
func NewRedisRelay(rdb *redis.Client, hub *Hub, log zerolog.Logger) *RedisRelay {
	return &RedisRelay{
		rdb: rdb,
		hub: hub,
		log: log.With().Str("component", "ws_relay").Logger(),
	}
}

// Notify implements service.Notifier. Publishing happens off the caller's goroutine;
// if Redis is unavailable the event is delivered to local members only.
func (r *RedisRelay) Notify(sessionID uuid.UUID, event model.EventName, data any) {
	payload, err := Encode(event, data)
	if err != nil {
		r.log.Error().Err(err).Str("event", string(event)).Msg("encode event")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		channel := config.CacheKey.SessionEventsChannel(sessionID.String())
		if err := r.rdb.Publish(ctx, channel, payload).Err(); err != nil {
			r.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("publish failed, delivering locally")
			r.hub.Broadcast(sessionID, payload)
		}
	}()
}

// Run subscribes to every session channel until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) {
	pubsub := r.rdb.PSubscribe(ctx, config.CacheKey.SessionEventsPattern())
	defer pubsub.Close()

	r.log.Info().Msg("Relay subscribed")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Relay stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.deliver(msg.Channel, msg.Payload)
		}
	}
}

func (r *RedisRelay) deliver(channel, payload string) {
	raw, ok := config.CacheKey.SessionIDFromChannel(channel)
	if !ok {
		return
	}
	sessionID, err := uuid.Parse(raw)
	if err != nil {
		r.log.Warn().Str("channel", channel).Msg("ignoring event for malformed session id")
		return
	}
	r.hub.Broadcast(sessionID, []byte(payload))
}
