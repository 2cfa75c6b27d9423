package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
	defaultTTL      = 24 * time.Hour
	maxWriteRetries = 3
)

// Source is the authoritative ranking, computed from the stored session.
type Source interface {
	GetLeaderboard(ctx context.Context, sessionID string) (*domain.Leaderboard, error)
}

type Config struct {
	EventBus *event.Bus
	Source   Source
	Redis    redis.UniversalClient
	Prefix   string
	TTL      time.Duration
}

// Service caches session leaderboards in Redis and announces changes with
// leaderboard.updated events, at most once per publish interval per session.
type Service struct {
	eb     *event.Bus
	source Source
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	group  singleflight.Group
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		source: c.Source,
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    c.TTL,
	}

	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}

	// one subscription keeps refreshes of a session in event order
	s.eb.SubscribeAll(func(ctx context.Context, e event.Event) error {
		switch e.Name() {
		case domain.EventNamePlayerJoined,
			domain.EventNamePlayerLeft,
			domain.EventNameAnswerSubmitted,
			domain.EventNameSessionCompleted:
			return s.UpdateLeaderboard(ctx, e.(domain.Event))
		}
		return nil
	})

	return s
}

type GetLeaderboardRequest struct {
	SessionID string
	// Limit caps the number of entries, zero means all.
	Limit int
}

// GetLeaderboard returns the ranked active players of a session from the
// cache, loading it from the source on a miss.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	l, ok, err := s.getCached(ctx, req.SessionID, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}
	if ok {
		return l, nil
	}

	v, err, _ := s.group.Do(req.SessionID, func() (any, error) {
		return s.refresh(ctx, req.SessionID)
	})
	if err != nil {
		return nil, err
	}

	full := v.(*domain.Leaderboard)
	return truncate(full, req.Limit), nil
}

// getCached reads the cached ranking. The version key is read before and after
// the entries, a change in between means a concurrent write and counts as a miss.
func (s *Service) getCached(ctx context.Context, sessionID string, limit int) (*domain.Leaderboard, bool, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	vk := s.getVersionKey(sessionID)

	var (
		before *redis.StringCmd
		ids    *redis.StringSliceCmd
	)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		before = pipe.Get(ctx, vk)
		ids = pipe.ZRange(ctx, s.getLeaderboardKey(sessionID), 0, stop)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, err
	}

	version, err := before.Int64()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	l := &domain.Leaderboard{
		SessionID: sessionID,
		Version:   version,
		Entries:   make([]domain.LeaderboardEntry, 0, len(ids.Val())),
	}
	if len(ids.Val()) == 0 {
		return l, true, nil
	}

	var (
		vals  *redis.SliceCmd
		after *redis.StringCmd
	)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		vals = pipe.HMGet(ctx, s.getEntriesKey(sessionID), ids.Val()...)
		after = pipe.Get(ctx, vk)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, err
	}

	if v, err := after.Int64(); err != nil || v != version {
		return nil, false, nil
	}

	for i, v := range vals.Val() {
		raw, ok := v.(string)
		if !ok {
			return nil, false, nil
		}

		var e domain.LeaderboardEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, false, fmt.Errorf("unmarshal entry %s: %w", ids.Val()[i], err)
		}
		l.Entries = append(l.Entries, e)
	}

	return l, true, nil
}

// UpdateLeaderboard reloads the ranking of the event's session into the cache
// and schedules a leaderboard.updated event.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.Event) error {
	sessionID := e.Header().SessionID

	l, err := s.refresh(ctx, sessionID)
	if err != nil {
		return err
	}

	if e.Name() == domain.EventNameSessionCompleted {
		return s.publishLeaderboard(ctx, *l, e.Header().OccurredAt)
	}

	return s.schedulePublishLeaderboard(ctx, *l, e.Header().OccurredAt)
}

func (s *Service) refresh(ctx context.Context, sessionID string) (*domain.Leaderboard, error) {
	l, err := s.source.GetLeaderboard(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: session=%s: %w", sessionID, err)
	}

	if err := s.store(ctx, l); err != nil {
		return nil, fmt.Errorf("update leaderboard: session=%s: %w", sessionID, err)
	}

	return l, nil
}

// store caches the ranking unless the cache already holds one computed from
// the same or a later session version.
func (s *Service) store(ctx context.Context, l *domain.Leaderboard) error {
	members := make([]redis.Z, 0, len(l.Entries))
	fields := make([]any, 0, 2*len(l.Entries))
	for _, entry := range l.Entries {
		b, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}

		members = append(members, redis.Z{Score: float64(entry.Rank), Member: entry.PlayerID})
		fields = append(fields, entry.PlayerID, b)
	}

	lk, ek, vk := s.getLeaderboardKey(l.SessionID), s.getEntriesKey(l.SessionID), s.getVersionKey(l.SessionID)

	write := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, vk).Int64()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		case cur >= l.Version:
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, lk, ek)
			if len(members) > 0 {
				pipe.ZAdd(ctx, lk, members...)
				pipe.HSet(ctx, ek, fields...)
				pipe.Expire(ctx, lk, s.ttl)
				pipe.Expire(ctx, ek, s.ttl)
			}
			pipe.Set(ctx, vk, l.Version, s.ttl)
			return nil
		})
		return err
	}

	var err error
	for range maxWriteRetries {
		err = s.redis.Watch(ctx, write, vk)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}

	return err
}

// schedulePublishLeaderboard publishes the leaderboard changes after a certain interval.
// Instead of publishing leaderboard changes immediately, publishes them after a certain interval.
// Because there are many user's scores updated in a short time, this can reduce the number of published events.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, l domain.Leaderboard, at time.Time) error {
	// This is a simple way to prevent multiple instances of the service from publishing the leaderboard.
	// But it's not perfect and can be improved.
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(l.SessionID), at.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx, l, at)
}

func (s *Service) publishLeaderboard(ctx context.Context, l domain.Leaderboard, at time.Time) error {
	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		EventHeader: domain.EventHeader{SessionID: l.SessionID, OccurredAt: at},
		Leaderboard: l,
	})

	return s.redis.Set(ctx, s.getLeaderboardTimeKey(l.SessionID), at.UnixMilli(), publishInterval).Err()
}

func truncate(l *domain.Leaderboard, limit int) *domain.Leaderboard {
	if limit <= 0 || len(l.Entries) <= limit {
		return l
	}

	return &domain.Leaderboard{
		SessionID: l.SessionID,
		Version:   l.Version,
		Entries:   l.Entries[:limit],
	}
}

func (s *Service) getLeaderboardKey(session string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, session)
}

func (s *Service) getEntriesKey(session string) string {
	return fmt.Sprintf("%s:%s:entries", s.prefix, session)
}

func (s *Service) getVersionKey(session string) string {
	return fmt.Sprintf("%s:%s:version", s.prefix, session)
}

func (s *Service) getLeaderboardTimeKey(session string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, session)
}
