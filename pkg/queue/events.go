// Package queue: append-only job lifecycle event log, adapted from the
// teacher's EventStore (XADD/XRANGE/XREVRANGE/XREAD). This log is a
// non-authoritative audit trail that /ws streams from; no component in this
// repository calls Append, and JobEvents has no HTTP route — Postgres's
// detalhar_jobs row remains the single source of truth for job state (§3).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventType identifies a job lifecycle event.
type EventType string

const (
	EventJobCreated   EventType = "job.created"
	EventJobQueued    EventType = "job.queued"
	EventJobStarted   EventType = "job.started"
	EventJobStage     EventType = "job.stage"
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"
	EventJobRetried   EventType = "job.retried"
	EventJobReaped    EventType = "job.reaped"
)

// Event is one entry in a job's lifecycle.
type Event struct {
	Type      EventType      `json:"type"`
	JobID     string         `json:"job_id"`
	Timestamp time.Time      `json:"timestamp"`
	Stage     string         `json:"stage,omitempty"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Error     string         `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventLog records job lifecycle events to Redis Streams.
type EventLog struct {
	client    *redis.Client
	keyPrefix string
	maxEvents int64
}

// NewEventLog creates an event log.
func NewEventLog(client *redis.Client) *EventLog {
	return &EventLog{client: client, keyPrefix: "detalhar:events", maxEvents: 100000}
}

// Append records event to both the global stream and the job's own stream.
func (el *EventLog) Append(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("queue: marshal event: %w", err)
	}

	if err := el.client.XAdd(ctx, &redis.XAddArgs{
		Stream: el.keyPrefix + ":all",
		MaxLen: el.maxEvents,
		Values: map[string]any{"data": data},
	}).Err(); err != nil {
		return fmt.Errorf("queue: append global event: %w", err)
	}

	jobKey := fmt.Sprintf("%s:job:%s", el.keyPrefix, event.JobID)
	if err := el.client.XAdd(ctx, &redis.XAddArgs{
		Stream: jobKey,
		MaxLen: 1000,
		Values: map[string]any{"data": data},
	}).Err(); err != nil {
		return fmt.Errorf("queue: append job event: %w", err)
	}
	return nil
}

// JobEvents returns the lifecycle history for one job, oldest first.
func (el *EventLog) JobEvents(ctx context.Context, jobID string) ([]Event, error) {
	key := fmt.Sprintf("%s:job:%s", el.keyPrefix, jobID)
	messages, err := el.client.XRange(ctx, key, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("queue: job events: %w", err)
	}
	return decodeEvents(messages), nil
}

// Subscribe streams new global events to handler until ctx is cancelled,
// feeding the /ws live status hub.
func (el *EventLog) Subscribe(ctx context.Context, handler func(Event)) error {
	key := el.keyPrefix + ":all"
	lastID := "$"

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := el.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{key, lastID},
			Block:   5 * time.Second,
			Count:   100,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return fmt.Errorf("queue: subscribe: %w", err)
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				for _, ev := range decodeEvents([]redis.XMessage{msg}) {
					handler(ev)
				}
			}
		}
	}
}

func decodeEvents(messages []redis.XMessage) []Event {
	events := make([]Event, 0, len(messages))
	for _, msg := range messages {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events
}
