package leaderboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/quizpath/quizpath/internal/domain"
	"github.com/quizpath/quizpath/internal/errors"
	"github.com/quizpath/quizpath/internal/event"
	"github.com/quizpath/quizpath/internal/leaderboard"
)

type storeStub struct {
	stats []domain.UserStats
}

func (s *storeStub) ListUserStats(ctx context.Context) ([]domain.UserStats, error) {
	return s.stats, nil
}

func TestService_GetWindow(t *testing.T) {
	// Ten users scoring 100 down to 10, requesting user in seventh place.
	stats := make([]domain.UserStats, 0, 10)
	for i := 0; i < 10; i++ {
		stats = append(stats, domain.UserStats{
			UserID: string(rune('a' + i)),
			Name:   string(rune('A' + i)),
			Score:  100 - i*10,
		})
	}

	s := makeService(t, withStore(&storeStub{stats: stats}))

	resp, err := s.GetWindow(context.Background(), leaderboard.GetWindowRequest{UserID: "g"})
	require.NoError(t, err)

	require.Equal(t, 7, resp.CurrentUserPosition)
	require.Equal(t, 10, resp.TotalUsers)

	require.Len(t, resp.Top, 3)
	require.Equal(t, "a", resp.Top[0].UserID)
	require.Equal(t, 1, resp.Top[0].Position)

	require.Len(t, resp.Nearby, 7)
	require.Equal(t, 4, resp.Nearby[0].Position)
	require.Equal(t, 10, resp.Nearby[6].Position)
	for _, e := range resp.Nearby {
		require.Equal(t, e.UserID == "g", e.IsCurrentUser)
	}
}

func TestService_GetWindow_UnrankedUser(t *testing.T) {
	s := makeService(t, withStore(&storeStub{stats: []domain.UserStats{
		{UserID: "a", Name: "A", Score: 10},
	}}))

	_, err := s.GetWindow(context.Background(), leaderboard.GetWindowRequest{UserID: "nobody"})
	require.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestService_PublishStandingsUpdated(t *testing.T) {
	type (
		inputs struct {
			receivedEvents []domain.EventScoreUpdated
		}

		outputs struct {
			publishedEvents []domain.EventStandingsUpdated
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"should publish standings.updated after receiving score.updated": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventScoreUpdated{
						{UserID: "u1", Score: 3, UpdateTime: time.Now()},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 standings updated event")
				require.Equal(t, []domain.RankedScore{
					{UserID: "u1", Score: 3},
				}, out.publishedEvents[0].Standings)
			},
		},

		"should publish 1 event after receiving 2 score.updated within the publish interval": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventScoreUpdated{
						{UserID: "u1", Score: 3, UpdateTime: time.Now()},
						{UserID: "u2", Score: 5, UpdateTime: time.Now()},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 standings updated event")
			},
		},

		"should publish the standings known at publish time": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventScoreUpdated{
						{UserID: "u1", Score: 1, UpdateTime: time.Now()},
						{UserID: "u2", Score: 9, UpdateTime: time.Now()},
						{UserID: "u3", Score: 5, UpdateTime: time.Now()},
						{UserID: "u4", Score: 7, UpdateTime: time.Now()},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.NotEmpty(t, out.publishedEvents)
				require.Equal(t, []domain.RankedScore{
					{UserID: "u1", Score: 1},
				}, out.publishedEvents[0].Standings, "the first publication sees only the first score")
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in, out := tt.arrange(), outputs{}

			eb := event.NewBus()

			var mu sync.Mutex
			eb.Subscribe(domain.EventNameStandingsUpdated, func(ctx context.Context, e event.Event) error {
				mu.Lock()
				out.publishedEvents = append(out.publishedEvents, e.(domain.EventStandingsUpdated))
				mu.Unlock()
				return nil
			})

			s := makeService(t,
				withEventBus(eb),
			)

			for _, e := range in.receivedEvents {
				err := s.SyncScore(context.Background(), e)
				require.NoError(t, err)
			}

			eb.Stop()

			tt.assert(t, out)
		})
	}
}

func makeService(t *testing.T, opts ...options) *leaderboard.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		EventBus: event.NewBus(),
		Store:    &storeStub{},
		Redis:    rc,
		Prefix:   "test",
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c)
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}

func withStore(s leaderboard.Store) options {
	return func(c *leaderboard.Config) {
		c.Store = s
	}
}
