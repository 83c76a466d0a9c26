// Package events publishes pipeline events on Redis pub/sub. Publishing is
// best effort: callers log failures and carry on.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Event types. Each is also the channel it is published on.
const (
	PostingsIngested = "EVENT_POSTINGS_INGESTED"
	PostingsRetired  = "EVENT_POSTINGS_RETIRED"
)

// Publisher emits one event of eventType with the given fields.
type Publisher interface {
	Publish(ctx context.Context, eventType string, fields map[string]any) error
}

// Encode renders fields plus the type as the JSON message body.
func Encode(eventType string, fields map[string]any) ([]byte, error) {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["type"] = eventType
	return json.Marshal(body)
}

// RedisPublisher publishes on the channel named after the event type.
type RedisPublisher struct {
	rdb redis.UniversalClient
}

// NewRedisPublisher wraps an open client.
func NewRedisPublisher(rdb redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, eventType string, fields map[string]any) error {
	msg, err := Encode(eventType, fields)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	if err := p.rdb.Publish(ctx, eventType, msg).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// Nop drops every event. Used when Redis is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, map[string]any) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
	// Fail, when set, is returned by Publish and nothing is recorded.
	Fail error
}

// Recorded is one captured event.
type Recorded struct {
	Type   string
	Fields map[string]any
}

func (r *Recorder) Publish(_ context.Context, eventType string, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	r.events = append(r.events, Recorded{Type: eventType, Fields: fields})
	return nil
}

// Events returns a copy of the captured events.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}
