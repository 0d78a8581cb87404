package eventbus

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// RedisBridge mirrors domain events to a redis pub/sub channel so external
// observers can follow the room without a websocket of their own.
type RedisBridge struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisBridge(rdb *redis.Client, prefix string) *RedisBridge {
	if prefix == "" {
		prefix = "room_events"
	}
	return &RedisBridge{rdb: rdb, prefix: prefix}
}

func (b *RedisBridge) Publish(event Event) error {
	msg, err := event.ToJSON()
	if err != nil {
		return err
	}
	return b.rdb.Publish(context.Background(), b.channel(event), msg).Err()
}

func (b *RedisBridge) channel(event Event) string {
	return b.prefix + ":" + string(event.RoomID)
}
