package configcascade

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Invalidation channel layout. Publishers emit the changed owner id (or ""
// for the admin wildcard) on the channel for the edited tier.
const (
	channelPrefix = "cache:config-cascade:"

	ChannelAdmin       = channelPrefix + TierAdmin
	ChannelUser        = channelPrefix + TierUser
	ChannelChannel     = channelPrefix + TierChannel
	ChannelPersonality = channelPrefix + TierPersonality
)

// PublishInvalidation notifies every process that a tier's overrides
// changed. id is the owner id, empty for admin.
func PublishInvalidation(ctx context.Context, rdb *redis.Client, tier, id string) error {
	if err := rdb.Publish(ctx, channelPrefix+tier, id).Err(); err != nil {
		return fmt.Errorf("configcascade: publish invalidation %s/%s: %w", tier, id, err)
	}
	return nil
}

// ListenInvalidations subscribes to all tier channels and purges matching
// cache entries until ctx is cancelled. Meant to run as a goroutine per
// resolver.
func (r *Resolver) ListenInvalidations(ctx context.Context, rdb *redis.Client) {
	sub := rdb.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			tier := strings.TrimPrefix(msg.Channel, channelPrefix)
			if tier == TierAdmin {
				// Admin overrides feed every resolution.
				r.Invalidate("")
				continue
			}
			r.Invalidate(msg.Payload)
			slog.Debug("config invalidation received", "tier", tier, "id", msg.Payload)
		}
	}
}
