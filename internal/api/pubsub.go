package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/quizpath/quizpath/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Standings struct {
		Entries []StandingsEntry `json:"entries"`
	}

	StandingsEntry struct {
		UserID string `json:"user_id"`
		Score  int    `json:"score"`
	}
)

// PublishStandingsUpdated pushes the new standings head to every user that
// appears in it, on their private pub/sub channel.
func (a *API) PublishStandingsUpdated(ctx context.Context, e domain.EventStandingsUpdated) error {
	data := Standings{
		Entries: make([]StandingsEntry, 0, len(e.Standings)),
	}

	for _, s := range e.Standings {
		data.Entries = append(data.Entries, StandingsEntry{
			UserID: s.UserID,
			Score:  s.Score,
		})
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		entry := entry
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.UserID, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:user:%s", a.prefix, user), b).Err()
}
