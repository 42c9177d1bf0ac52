package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"lantern-quiz-service/internal/app"
	"lantern-quiz-service/internal/domain"
)

const DefaultChannel = "lantern:winners"

// Relay is a Broadcaster that publishes winner events over Redis pub/sub so
// every instance's local Hub sees every win. Run must be started on each
// instance to feed its Hub.
type Relay struct {
	client  *redis.Client
	channel string
	local   *app.Hub
	log     zerolog.Logger
}

func NewRelay(client *redis.Client, channel string, local *app.Hub, log zerolog.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{client: client, channel: channel, local: local, log: log}
}

// Announce publishes the event. If publishing fails the event is still
// delivered to local subscribers and the error is returned.
func (r *Relay) Announce(ctx context.Context, event domain.WinnerEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal winner event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		_ = r.local.Announce(ctx, event)
		return fmt.Errorf("publish winner event: %w", err)
	}
	return nil
}

// Run forwards published events to the local Hub until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info().Str("channel", r.channel).Msg("winner relay subscribed")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var event domain.WinnerEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.log.Warn().Err(err).Msg("dropping malformed winner event")
				continue
			}
			_ = r.local.Announce(ctx, event)
		}
	}
}
