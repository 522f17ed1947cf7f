// Package leaderboard ranks users and produces bounded window views, and
// keeps a Redis sorted set in sync with score updates for realtime standings
// notifications.
package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quizpath/quizpath/internal/domain"
	"github.com/quizpath/quizpath/internal/errors"
	"github.com/quizpath/quizpath/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
)

// Store provides the per-user aggregates the ranking is computed from. The
// read is not required to be transactionally consistent with in-flight
// submissions.
type Store interface {
	ListUserStats(ctx context.Context) ([]domain.UserStats, error)
}

type Config struct {
	EventBus *event.Bus
	Store    Store
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb     *event.Bus
	store  Store
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		store:  c.Store,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameScoreUpdated, func(ctx context.Context, e event.Event) error {
		return s.SyncScore(ctx, e.(domain.EventScoreUpdated))
	})

	return s
}

type GetWindowRequest struct {
	UserID string
}

// GetWindow ranks all users and returns the window around the requesting
// user: the top entries, the nearby band, the user's 1-based position and the
// total user count.
func (s *Service) GetWindow(ctx context.Context, req GetWindowRequest) (*domain.LeaderboardWindow, error) {
	stats, err := s.store.ListUserStats(ctx)
	if err != nil {
		return nil, err
	}

	entries := Rank(stats, req.UserID)

	target := -1
	for i := range entries {
		if entries[i].UserID == req.UserID {
			target = i
			break
		}
	}
	if target < 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("user not ranked: %s", req.UserID))
	}

	top, nearby := Window(entries, target)
	return &domain.LeaderboardWindow{
		Top:                 top,
		Nearby:              nearby,
		CurrentUserPosition: target + 1,
		TotalUsers:          len(entries),
	}, nil
}

// SyncScore writes the user's new total into the standings sorted set and
// schedules a standings publication.
func (s *Service) SyncScore(ctx context.Context, e domain.EventScoreUpdated) error {
	if err := s.redis.ZAdd(ctx, s.standingsKey(), redis.Z{
		Score:  float64(e.Score),
		Member: e.UserID,
	}).Err(); err != nil {
		return fmt.Errorf("sync score: %w", err)
	}

	return s.schedulePublish(ctx, e)
}

// schedulePublish publishes the standings at most once per publishInterval.
// Many scores update in a short time, and the SetNX gate also keeps multiple
// service instances from publishing the same batch.
func (s *Service) schedulePublish(ctx context.Context, e domain.EventScoreUpdated) error {
	ok, err := s.redis.SetNX(ctx, s.publishTimeKey(), e.UpdateTime.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishStandings(ctx, e)
}

func (s *Service) publishStandings(ctx context.Context, e domain.EventScoreUpdated) error {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.standingsKey(), 0, topSize-1).Result()
	if err != nil {
		return fmt.Errorf("get standings: %w", err)
	}

	standings := make([]domain.RankedScore, 0, len(res))
	for _, z := range res {
		standings = append(standings, domain.RankedScore{
			UserID: z.Member.(string),
			Score:  int(z.Score),
		})
	}

	s.eb.Publish(ctx, domain.EventStandingsUpdated{
		Standings: standings,
	})

	return s.redis.Set(ctx, s.publishTimeKey(), e.UpdateTime.UnixMilli(), publishInterval).Err()
}

func (s *Service) standingsKey() string {
	return fmt.Sprintf("%s:standings", s.prefix)
}

func (s *Service) publishTimeKey() string {
	return fmt.Sprintf("%s:standings:time", s.prefix)
}
