package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/mediaflow/internal/models"
)

// RedisMirror copies run events to Redis so other processes can follow runs:
// each event is PUBLISHed on <prefix><runID> and appended to the list
// <prefix><runID>:events, which keeps the newest MaxEvents entries and expires
// TTL after the last write.
type RedisMirror struct {
	Client    *redis.Client
	Prefix    string
	TTL       time.Duration
	MaxEvents int64
	Logger    *slog.Logger
}

// NewRedisMirror connects and pings; the caller owns Close.
func NewRedisMirror(ctx context.Context, addr, password string, db int, prefix string, ttl time.Duration) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisMirror{Client: client, Prefix: prefix, TTL: ttl}, nil
}

func (m *RedisMirror) Channel(runID string) string { return m.Prefix + runID }

func (m *RedisMirror) ListKey(runID string) string { return m.Prefix + runID + ":events" }

func (m *RedisMirror) Observe(ctx context.Context, ev models.RunEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	pipe := m.Client.Pipeline()
	pipe.Publish(ctx, m.Channel(ev.RunID), b)
	pipe.RPush(ctx, m.ListKey(ev.RunID), b)
	if m.MaxEvents > 0 {
		pipe.LTrim(ctx, m.ListKey(ev.RunID), -m.MaxEvents, -1)
	}
	if m.TTL > 0 {
		pipe.Expire(ctx, m.ListKey(ev.RunID), m.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		m.logger().Warn("redis mirror write failed", "run", ev.RunID, "seq", ev.Seq, "error", err)
	}
}

// History reads back a run's mirrored events in order.
func (m *RedisMirror) History(ctx context.Context, runID string) ([]models.RunEvent, error) {
	raw, err := m.Client.LRange(ctx, m.ListKey(runID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.RunEvent, 0, len(raw))
	for _, s := range raw {
		var ev models.RunEvent
		if err := json.Unmarshal([]byte(s), &ev); err != nil {
			return nil, fmt.Errorf("decode mirrored event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (m *RedisMirror) Close() error { return m.Client.Close() }

func (m *RedisMirror) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
