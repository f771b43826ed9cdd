package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const indexKey = "sessions:active"

// Store keeps sessions in Redis, one key per owner, with the TTL enforced by
// Redis itself. An owner-index set supports the background sweep.
type Store struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewStore(rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl, logger: logger}
}

// TTL returns the configured session lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

func sessionKey(ownerID uuid.UUID) string {
	return "session:" + ownerID.String()
}

// Get returns the owner's session, or (nil, nil) when none exists or the
// TTL has lapsed. A lapsed-but-present session is deleted on sight.
func (s *Store) Get(ctx context.Context, ownerID uuid.UUID) (*Session, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(ownerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.Expired(time.Now()) {
		if err := s.Delete(ctx, ownerID); err != nil {
			s.logger.Warn("delete expired session", "owner_id", ownerID, "error", err)
		}
		return nil, nil
	}
	return &sess, nil
}

// Put stores the session and refreshes its TTL.
func (s *Store) Put(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	key := sessionKey(sess.OwnerID)
	if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	if err := s.rdb.SAdd(ctx, indexKey, sess.OwnerID.String()).Err(); err != nil {
		return fmt.Errorf("index session: %w", err)
	}
	return nil
}

// Delete removes the owner's session. Deleting a missing session is a no-op,
// which keeps the sweep safe to run concurrently with user mutation.
func (s *Store) Delete(ctx context.Context, ownerID uuid.UUID) error {
	if err := s.rdb.Del(ctx, sessionKey(ownerID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := s.rdb.SRem(ctx, indexKey, ownerID.String()).Err(); err != nil {
		return fmt.Errorf("unindex session: %w", err)
	}
	return nil
}

// SweepExpired drops index entries whose session key no longer exists (Redis
// already reclaimed the body via TTL). Idempotent.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	owners, err := s.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list session index: %w", err)
	}
	swept := 0
	for _, owner := range owners {
		id, err := uuid.Parse(owner)
		if err != nil {
			// Malformed index entry, drop it.
			_ = s.rdb.SRem(ctx, indexKey, owner).Err()
			swept++
			continue
		}
		exists, err := s.rdb.Exists(ctx, sessionKey(id)).Result()
		if err != nil {
			return swept, fmt.Errorf("check session %s: %w", owner, err)
		}
		if exists == 0 {
			if err := s.rdb.SRem(ctx, indexKey, owner).Err(); err != nil {
				return swept, fmt.Errorf("unindex session %s: %w", owner, err)
			}
			swept++
		}
	}
	return swept, nil
}
