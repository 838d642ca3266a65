package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
	"github.com/victornm/quizbot/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
	defaultLimit    = 10
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
	// Limit is the number of members published on each update.
	Limit int
}

// Service keeps the server-wide XP standings in a Redis sorted set.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
	limit  int
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
		limit:  c.Limit,
	}

	if s.limit <= 0 {
		s.limit = defaultLimit
	}

	s.eb.Subscribe(domain.EventNameXPAdjusted, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventXPAdjusted))
	})

	return s
}

type GetLeaderboardRequest struct {
	// Limit is the number of members returned, all of them when not set.
	Limit int
}

// GetLeaderboard returns members sorted by total XP in descending order.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	stop := int64(req.Limit) - 1
	if req.Limit <= 0 {
		stop = -1
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard is empty"))
	}

	ids := make([]string, 0, len(res))
	for _, z := range res {
		ids = append(ids, z.Member.(string))
	}

	names, err := s.redis.HMGet(ctx, s.getNamesKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("get display names: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for i, z := range res {
		name, _ := names[i].(string)
		entries = append(entries, domain.LeaderboardEntry{
			UserID:      ids[i],
			DisplayName: name,
			XP:          z.Score,
		})
	}

	return &domain.Leaderboard{
		Entries: entries,
	}, nil
}

// UpdateLeaderboard applies the XP adjustment of a member to the leaderboard.
// Adjustments commute, so events handled out of order still add up to the member's total.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventXPAdjusted) error {
	m := e.Member

	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZIncrBy(ctx, s.getLeaderboardKey(), float64(e.Delta), m.UserID)
		p.HSet(ctx, s.getNamesKey(), m.UserID, m.DisplayName)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx)
}

// schedulePublishLeaderboard publishes the leaderboard at most once per interval.
// The first update of a window opens it and publishes when it ends, so every update
// of the window is part of the published leaderboard.
func (s *Service) schedulePublishLeaderboard(ctx context.Context) error {
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(), time.Now().UnixMilli(), 2*publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	select {
	case <-time.After(publishInterval):
	case <-ctx.Done():
		return ctx.Err()
	}

	// Updates seen after this point open the next window.
	if err := s.redis.Del(ctx, s.getLeaderboardTimeKey()).Err(); err != nil {
		return fmt.Errorf("close window: %w", err)
	}

	return s.publishLeaderboard(ctx)
}

func (s *Service) publishLeaderboard(ctx context.Context) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		Limit: s.limit,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: %w", err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) getLeaderboardKey() string {
	return fmt.Sprintf("%s:xp", s.prefix)
}

func (s *Service) getNamesKey() string {
	return fmt.Sprintf("%s:xp:names", s.prefix)
}

func (s *Service) getLeaderboardTimeKey() string {
	return fmt.Sprintf("%s:xp:time", s.prefix)
}
