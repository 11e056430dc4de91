// Package fanout delivers pokes over Redis pub/sub to clients whose live
// connection is held by another process.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/iudanet/roomsync/pkg/api"
)

const channelPrefix = "roomsync:poke:"

// ChannelFor returns the pub/sub channel carrying pokes for a client
func ChannelFor(clientID string) string {
	return channelPrefix + clientID
}

// Redis publishes pokes to per-client channels. A process holding the
// client's socket subscribes to that channel and forwards frames.
type Redis struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewRedis creates a fanout over the given Redis connection
func NewRedis(rdb *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{rdb: rdb, logger: logger}
}

// Publish sends the poke to the client's channel. Nobody subscribed is not
// an error; the client will catch up through a pull when it reconnects.
func (r *Redis) Publish(ctx context.Context, clientID string, poke *api.Poke) error {
	payload, err := json.Marshal(poke)
	if err != nil {
		return fmt.Errorf("failed to marshal poke: %w", err)
	}

	receivers, err := r.rdb.Publish(ctx, ChannelFor(clientID), payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish poke: %w", err)
	}
	if receivers == 0 {
		r.logger.Debug("poke published with no subscribers",
			"client_id", clientID)
	}
	return nil
}

// Subscribe listens for pokes addressed to clientID and invokes handler for
// each one until ctx is cancelled. Malformed payloads are logged and
// skipped.
func (r *Redis) Subscribe(ctx context.Context, clientID string, handler func(*api.Poke)) error {
	sub := r.rdb.Subscribe(ctx, ChannelFor(clientID))
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var poke api.Poke
			if err := json.Unmarshal([]byte(msg.Payload), &poke); err != nil {
				r.logger.Warn("failed to unmarshal poke payload",
					"client_id", clientID,
					"error", err)
				continue
			}
			handler(&poke)
		}
	}
}
