package realtime

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
)

// Bus carries events between replicas. The local bus short-circuits to the
// hub for single-process deployments; the redis bus publishes through a
// pub/sub channel so every replica's hub sees every event.
type Bus interface {
	Publish(ctx context.Context, event Event) error
}

type LocalBus struct {
	hub *Hub
}

func NewLocalBus(hub *Hub) *LocalBus {
	return &LocalBus{hub: hub}
}

func (b *LocalBus) Publish(_ context.Context, event Event) error {
	b.hub.Publish(event)
	return nil
}

const redisChannel = "mnemos:events"

type RedisBus struct {
	rdb *redis.Client
	hub *Hub
	log *logger.Logger
}

func NewRedisBus(rdb *redis.Client, hub *Hub, log *logger.Logger) *RedisBus {
	return &RedisBus{
		rdb: rdb,
		hub: hub,
		log: log.With("service", "RedisBus"),
	}
}

func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	raw, err := event.Encode()
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, redisChannel, raw).Err()
}

// Run subscribes to the event channel and forwards messages into the local
// hub until ctx is done.
func (b *RedisBus) Run(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, redisChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			event, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				b.log.Warn("Discarding malformed event", "error", err.Error())
				continue
			}
			b.hub.Publish(event)
		}
	}
}
