package config

import (
	"fmt"
	"strings"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

const sessionEventsPrefix = "exam_session:"
const sessionEventsSuffix = ":events"

// SessionEventsChannel returns the Redis PubSub channel carrying realtime events for one session.
func (r *CacheKeyStruct) SessionEventsChannel(sessionID string) string {
	return sessionEventsPrefix + sessionID + sessionEventsSuffix
}

// SessionEventsPattern returns the PSUBSCRIBE pattern matching every session events channel.
func (r *CacheKeyStruct) SessionEventsPattern() string {
	return sessionEventsPrefix + "*" + sessionEventsSuffix
}

// SessionIDFromChannel extracts the session id from a channel built by SessionEventsChannel.
func (r *CacheKeyStruct) SessionIDFromChannel(channel string) (string, bool) {
	if len(channel) <= len(sessionEventsPrefix)+len(sessionEventsSuffix) ||
		!strings.HasPrefix(channel, sessionEventsPrefix) || !strings.HasSuffix(channel, sessionEventsSuffix) {
		return "", false
	}
	return channel[len(sessionEventsPrefix) : len(channel)-len(sessionEventsSuffix)], true
}

// SweeperLeaseKey returns the key guarding the expiry sweep so one instance runs per tick.
func (r *CacheKeyStruct) SweeperLeaseKey() string {
	return "worker:expiry_sweeper:lease"
}

// RateLimitKey returns the fixed-window counter key for a user and bucket.
func (r *CacheKeyStruct) RateLimitKey(bucket, userID string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", bucket, userID, window)
}

var CacheKey = NewCacheKeyStruct()
