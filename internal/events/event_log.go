package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const streamField = "event"

// EventLog stores the per-ticket event timeline.
type EventLog interface {
	Append(ctx context.Context, event Event) error
	Timeline(ctx context.Context, ticketID string, limit int64) ([]Event, error)
}

// RedisEventLog keeps one capped Redis stream per ticket.
type RedisEventLog struct {
	client redis.Cmdable
	prefix string
	maxLen int64
}

// NewRedisEventLog builds an event log on top of client.
func NewRedisEventLog(client redis.Cmdable, prefix string, maxLen int64) *RedisEventLog {
	if prefix == "" {
		prefix = "ticket-events"
	}
	return &RedisEventLog{client: client, prefix: prefix, maxLen: maxLen}
}

func (l *RedisEventLog) streamKey(ticketID string) string {
	return l.prefix + ":" + ticketID
}

// Append adds event to its ticket's stream, trimming old entries.
func (l *RedisEventLog) Append(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: l.streamKey(event.TicketID),
		Values: map[string]any{streamField: string(data)},
	}
	if l.maxLen > 0 {
		args.MaxLen = l.maxLen
		args.Approx = true
	}
	return l.client.XAdd(ctx, args).Err()
}

// Timeline returns up to limit events, oldest first. A limit of zero returns everything kept.
func (l *RedisEventLog) Timeline(ctx context.Context, ticketID string, limit int64) ([]Event, error) {
	var (
		messages []redis.XMessage
		err      error
	)
	if limit > 0 {
		messages, err = l.client.XRangeN(ctx, l.streamKey(ticketID), "-", "+", limit).Result()
	} else {
		messages, err = l.client.XRange(ctx, l.streamKey(ticketID), "-", "+").Result()
	}
	if err != nil {
		return nil, err
	}

	out := make([]Event, 0, len(messages))
	for _, msg := range messages {
		raw, ok := msg.Values[streamField].(string)
		if !ok {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", msg.ID, err)
		}
		out = append(out, event)
	}
	return out, nil
}

// MemoryEventLog keeps timelines in process memory.
type MemoryEventLog struct {
	mu     sync.RWMutex
	maxLen int
	byID   map[string][]Event
}

func NewMemoryEventLog(maxLen int) *MemoryEventLog {
	return &MemoryEventLog{maxLen: maxLen, byID: make(map[string][]Event)}
}

func (l *MemoryEventLog) Append(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	timeline := append(l.byID[event.TicketID], event)
	if l.maxLen > 0 && len(timeline) > l.maxLen {
		timeline = timeline[len(timeline)-l.maxLen:]
	}
	l.byID[event.TicketID] = timeline
	return nil
}

func (l *MemoryEventLog) Timeline(ctx context.Context, ticketID string, limit int64) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	timeline := l.byID[ticketID]
	if limit > 0 && int64(len(timeline)) > limit {
		timeline = timeline[:limit]
	}
	return append([]Event{}, timeline...), nil
}
