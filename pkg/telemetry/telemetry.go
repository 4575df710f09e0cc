// Package telemetry publishes session lifecycle events to Redis so an
// operator can watch a loader run from another process. It is purely
// observational: a nil *Publisher is a safe, silent no-op, and every
// call here sits off the steady-state framing path.
package telemetry

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

// EventChannel is the pub/sub channel session lifecycle events are
// published to.
const EventChannel = "sakuraedl:events"

// Publisher publishes JSON-encoded event records to Redis.
type Publisher struct {
	client *redis.Client
	ctx    context.Context
}

// New connects to addr. An empty addr disables telemetry: New
// returns nil, and every Publisher method tolerates a nil receiver.
func New(addr string) *Publisher {
	if addr == "" {
		return nil
	}
	return &Publisher{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ctx:    context.Background(),
	}
}

type eventRecord struct {
	TransferID string `json:"transfer_id"`
	Event      string `json:"event"`
	Detail     string `json:"detail"`
	Timestamp  int64  `json:"timestamp"`
}

// Event publishes one lifecycle event. Failures are logged, never
// returned: telemetry must never fail a loader run.
func (p *Publisher) Event(id xid.ID, event, detail string) {
	if p == nil {
		return
	}
	rec := eventRecord{
		TransferID: id.String(),
		Event:      event,
		Detail:     detail,
		Timestamp:  time.Now().Unix(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		log.Printf("telemetry: failed to marshal event: %v", err)
		return
	}
	if err := p.client.Publish(p.ctx, EventChannel, data).Err(); err != nil {
		log.Printf("telemetry: failed to publish event: %v", err)
	}
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.client.Close()
}
