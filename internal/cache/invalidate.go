package cache

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/auswanderer-plattform/backend/internal/logging"
)

// Invalidator broadcasts AI config cache invalidations to every API instance.
// A nil Redis makes it purely local.
type Invalidator struct {
	redis      *Redis
	channel    string
	instanceID string
	logger     zerolog.Logger
}

// NewInvalidator creates an invalidator publishing on channel
func NewInvalidator(r *Redis, channel string) *Invalidator {
	return &Invalidator{
		redis:      r,
		channel:    channel,
		instanceID: uuid.NewString(),
		logger:     logging.NewLogger("cache.invalidator"),
	}
}

// Broadcast tells the other instances to drop their caches
func (i *Invalidator) Broadcast(ctx context.Context) error {
	if i.redis == nil {
		return nil
	}
	return i.redis.Client.Publish(ctx, i.channel, i.instanceID).Err()
}

// Listen calls onInvalidate for every broadcast from another instance.
// It blocks until ctx is done.
func (i *Invalidator) Listen(ctx context.Context, onInvalidate func()) {
	if i.redis == nil {
		return
	}

	sub := i.redis.Client.Subscribe(ctx, i.channel)
	defer sub.Close()

	i.logger.Info().Str("channel", i.channel).Msg("Listening for cache invalidations")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg.Payload == i.instanceID {
				continue
			}
			i.logger.Debug().Str("from", msg.Payload).Msg("Cache invalidation received")
			onInvalidate()
		}
	}
}
