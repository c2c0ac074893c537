// README: Broadcast bus; in-process fan-out or Redis pub/sub across instances.
package tracking

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"parcel/internal/types"
)

const channelPrefix = "tracking:order:"

// Bus carries encoded outbound messages to every instance that may hold a
// channel for the order.
type Bus interface {
	Publish(ctx context.Context, orderID types.ID, msg []byte) error
	// Run delivers remote publications until ctx is done.
	Run(ctx context.Context) error
}

// LocalBus delivers straight into this process's registry.
type LocalBus struct {
	reg *Registry
}

func NewLocalBus(reg *Registry) *LocalBus {
	return &LocalBus{reg: reg}
}

func (b *LocalBus) Publish(_ context.Context, orderID types.ID, msg []byte) error {
	b.reg.Broadcast(orderID, msg)
	return nil
}

func (b *LocalBus) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// RedisBus publishes on tracking:order:<id>. Every instance, the publisher
// included, receives the message through its pattern subscription and fans it
// out to its own registry.
type RedisBus struct {
	client *redis.Client
	reg    *Registry
	log    *logrus.Entry
}

func NewRedisBus(client *redis.Client, reg *Registry, log *logrus.Entry) *RedisBus {
	return &RedisBus{client: client, reg: reg, log: log.WithField("component", "redis_bus")}
}

func ChannelFor(orderID types.ID) string {
	return channelPrefix + string(orderID)
}

func (b *RedisBus) Publish(ctx context.Context, orderID types.ID, msg []byte) error {
	if err := b.client.Publish(ctx, ChannelFor(orderID), msg).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	b.log.Info("subscribed to tracking channels")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			orderID := strings.TrimPrefix(m.Channel, channelPrefix)
			if orderID == "" || orderID == m.Channel {
				b.log.WithField("channel", m.Channel).Warn("ignoring message on unexpected channel")
				continue
			}
			b.reg.Broadcast(types.ID(orderID), []byte(m.Payload))
		}
	}
}
