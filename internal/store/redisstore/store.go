package redisstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

const defaultTTL = 24 * time.Hour

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
	// TTL is refreshed on every write. Zero means 24 hours.
	TTL time.Duration
}

// Store keeps each session as one JSON document plus a code index.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func New(c Config) *Store {
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}

	return &Store{
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    c.TTL,
	}
}

func (s *Store) Create(ctx context.Context, snap domain.SessionSnapshot) (int64, error) {
	snap.Version = 1
	b, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal session: %w", err)
	}

	ok, err := s.redis.SetNX(ctx, s.codeKey(snap.Code), snap.ID, s.ttl).Result()
	if err != nil {
		return 0, fmt.Errorf("reserve code: %w", err)
	}
	if !ok {
		return 0, domain.ErrSessionCodeTaken
	}

	ok, err = s.redis.SetNX(ctx, s.sessionKey(snap.ID), b, s.ttl).Result()
	if err == nil && !ok {
		err = errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("session already exists: id=%s", snap.ID))
	}
	if err != nil {
		// release the code so it can be reused
		if delErr := s.redis.Del(ctx, s.codeKey(snap.Code)).Err(); delErr != nil {
			err = stderrors.Join(err, delErr)
		}
		return 0, fmt.Errorf("insert session: %w", err)
	}

	return snap.Version, nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.SessionSnapshot, error) {
	return s.get(ctx, s.redis, id)
}

func (s *Store) GetByCode(ctx context.Context, code string) (domain.SessionSnapshot, error) {
	id, err := s.redis.Get(ctx, s.codeKey(code)).Result()
	if stderrors.Is(err, redis.Nil) {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("get session code %s: %w", code, err)
	}

	return s.Get(ctx, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Store) get(ctx context.Context, c getter, id string) (domain.SessionSnapshot, error) {
	b, err := c.Get(ctx, s.sessionKey(id)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("get session %s: %w", id, err)
	}

	var snap domain.SessionSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("unmarshal session %s: %w", id, err)
	}

	return snap, nil
}

// Save overwrites the session when the stored version matches snap.Version.
// The check and the write happen in one WATCH/MULTI transaction.
func (s *Store) Save(ctx context.Context, snap domain.SessionSnapshot) (int64, error) {
	key := s.sessionKey(snap.ID)
	expected := snap.Version
	snap.Version++

	b, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal session: %w", err)
	}

	err = s.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := s.get(ctx, tx, snap.ID)
		if err != nil {
			return err
		}

		if cur.Version != expected {
			return domain.ErrConcurrentModification
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, s.ttl)
			pipe.Expire(ctx, s.codeKey(snap.Code), s.ttl)
			return nil
		})
		return err
	}, key)

	if stderrors.Is(err, redis.TxFailedErr) {
		return 0, domain.ErrConcurrentModification
	}
	if err != nil {
		return 0, err
	}

	return snap.Version, nil
}

func (s *Store) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, id)
}

func (s *Store) codeKey(code string) string {
	return fmt.Sprintf("%s:code:%s", s.prefix, code)
}
