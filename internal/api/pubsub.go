package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/livequiz/internal/domain"
)

const maxConcurrent = 100

type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// PublishSessionEvent relays a session event to the session channel.
func (a *API) PublishSessionEvent(ctx context.Context, e domain.Event) error {
	return a.publishNotification(ctx, a.sessionChannel(e.Header().SessionID), e.Name(), e)
}

// PublishLeaderboardUpdated sends the new leaderboard to every ranked player.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range e.Leaderboard.Entries {
		eg.Go(func() error {
			return a.publishNotification(ctx, a.playerChannel(entry.PlayerID), e.Name(), e.Leaderboard)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}

func (a *API) sessionChannel(id string) string {
	return fmt.Sprintf("%s:session:%s", a.prefix, id)
}

func (a *API) playerChannel(id string) string {
	return fmt.Sprintf("%s:player:%s", a.prefix, id)
}
