package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/evolvian/assistant-platform/pkg/logging"
)

// DefaultCacheTTL bounds how long a session's recent turns stay hot.
const DefaultCacheTTL = 24 * time.Hour

// CachedStore layers a Redis cache over a backing Store. Reads are served
// from the cache when the session is hot; every cache failure falls through
// to the backing store, so a Redis outage degrades latency, never answers.
type CachedStore struct {
	backend Store
	redis   *redis.Client
	ttl     time.Duration
	tracer  trace.Tracer
	logger  *logging.Logger
}

// NewCachedStore wraps backend with a Redis session cache.
func NewCachedStore(backend Store, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedStore {
	if backend == nil {
		panic("history: backend store cannot be nil")
	}
	if client == nil {
		panic("history: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedStore{
		backend: backend,
		redis:   client,
		ttl:     ttl,
		tracer:  otel.Tracer("evolvian.internal.history"),
		logger:  logger.WithComponent("history_cache"),
	}
}

var _ Store = (*CachedStore)(nil)

func sessionKey(tenantID, sessionID string) string {
	return fmt.Sprintf("history:%s:%s", tenantID, sessionID)
}

// Append writes through: the durable row first, then the cache. A cache
// write failure is logged and dropped.
func (s *CachedStore) Append(ctx context.Context, msg Message) error {
	ctx, span := s.tracer.Start(ctx, "history.append")
	defer span.End()

	if err := s.backend.Append(ctx, msg); err != nil {
		span.RecordError(err)
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("failed to encode message for cache", "error", err)
		return nil
	}
	pipe := s.redis.TxPipeline()
	key := sessionKey(msg.TenantID, msg.SessionID)
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		s.logger.Warn("failed to cache message", "session_id", msg.SessionID, "error", err)
	}
	return nil
}

// Recent serves the tail of the session list from Redis when present, and
// falls back to the backing store on a miss or any cache error.
func (s *CachedStore) Recent(ctx context.Context, tenantID, sessionID string, limit int) ([]Message, error) {
	ctx, span := s.tracer.Start(ctx, "history.recent")
	defer span.End()

	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.redis.LRange(ctx, sessionKey(tenantID, sessionID), start, -1).Result()
	if err != nil && err != redis.Nil {
		span.RecordError(err)
		s.logger.Warn("cache read failed, falling back to database", "session_id", sessionID, "error", err)
	}
	if len(raw) > 0 {
		messages := make([]Message, 0, len(raw))
		for _, item := range raw {
			var m Message
			if err := json.Unmarshal([]byte(item), &m); err != nil {
				s.logger.Warn("corrupt cache entry, falling back to database", "session_id", sessionID, "error", err)
				messages = nil
				break
			}
			messages = append(messages, m)
		}
		if messages != nil {
			return messages, nil
		}
	}

	return s.backend.Recent(ctx, tenantID, sessionID, limit)
}

// Count always asks the backing store: the cache holds only the recent tail.
func (s *CachedStore) Count(ctx context.Context, tenantID, sessionID string) (int, error) {
	return s.backend.Count(ctx, tenantID, sessionID)
}
