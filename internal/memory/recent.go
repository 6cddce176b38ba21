package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RecentEntry is the compact projection of a chunk kept in the Redis
// recent-window mirror. Full chunks live in Postgres; this exists so the
// recent layer can serve without a database round trip.
type RecentEntry struct {
	ID         uuid.UUID `json:"id"`
	Content    string    `json:"content"`
	Importance float64   `json:"importance"`
	Speaker    string    `json:"speaker"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecentStore mirrors the last N chunks of each conversation in a Redis
// list with a TTL. It is best-effort: callers fall back to Postgres when
// it is unavailable.
type RecentStore struct {
	client *redis.Client
	window int
	ttl    time.Duration
}

func NewRecentStore(client *redis.Client, window int, ttl time.Duration) *RecentStore {
	if window <= 0 {
		window = 50
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RecentStore{client: client, window: window, ttl: ttl}
}

func recentKey(conversationID uuid.UUID) string {
	return fmt.Sprintf("recent:conversation:%s", conversationID)
}

// Append pushes an entry onto the conversation window, trimming to the
// configured size and refreshing the TTL in one pipeline.
func (s *RecentStore) Append(ctx context.Context, conversationID uuid.UUID, entry RecentEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling recent entry: %w", err)
	}

	key := recentKey(conversationID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.window), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending recent entry: %w", err)
	}
	return nil
}

// Window returns up to limit entries, most recent first.
func (s *RecentStore) Window(ctx context.Context, conversationID uuid.UUID, limit int) ([]RecentEntry, error) {
	if limit <= 0 || limit > s.window {
		limit = s.window
	}

	raw, err := s.client.LRange(ctx, recentKey(conversationID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading recent window: %w", err)
	}

	entries := make([]RecentEntry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var e RecentEntry
		if err := json.Unmarshal([]byte(raw[i]), &e); err != nil {
			// Skip corrupt entries instead of failing the whole window.
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
