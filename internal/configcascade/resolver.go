package configcascade

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/animus-ai/animus/pkg/types"
)

// Source labels which cascade tier produced a resolved value.
type Source string

const (
	SourceContextOverride Source = "context-override"
	SourceUserDefault     Source = "user-default"
	SourceSystemDefault   Source = "system-default"
)

// Tier names used in storage and invalidation channels.
const (
	TierAdmin       = "admin"
	TierUser        = "user"
	TierChannel     = "channel"
	TierPersonality = "personality"
)

// OverridesStore fetches override rows per tier. Implementations return
// (nil, nil) when the tier has no row.
type OverridesStore interface {
	GetAdmin(ctx context.Context) (*types.ConfigOverrides, error)
	GetUser(ctx context.Context, userID string) (*types.ConfigOverrides, error)
	GetChannel(ctx context.Context, channelID string) (*types.ConfigOverrides, error)
	GetPersonality(ctx context.Context, personalityID string) (*types.ConfigOverrides, error)
}

// Resolved is the cascade output for one (user, context) pair.
type Resolved struct {
	// Params has every field filled from the winning tier or the defaults.
	Params types.LLMParams

	// Source labels the highest tier that contributed anything.
	Source Source

	// SourceName names the contributing override's owner when Source is
	// [SourceContextOverride].
	SourceName string
}

// Defaults returns the hard-coded bottom of the cascade.
func Defaults() types.LLMParams {
	temp := 0.9
	maxTokens := 1024
	return types.LLMParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	}
}

// Resolver walks the cascade with a TTL cache in front of the store.
type Resolver struct {
	store    OverridesStore
	cache    *ttlCache[Resolved]
	defaults types.LLMParams
	log      *slog.Logger
}

// NewResolver constructs a Resolver. ttl <= 0 means [DefaultCacheTTL];
// logger may be nil.
func NewResolver(store OverridesStore, ttl time.Duration, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:    store,
		cache:    newTTLCache[Resolved](ttl),
		defaults: Defaults(),
		log:      logger.With("component", "config-cascade"),
	}
}

// Resolve produces the effective LLM params for a request. contextID is the
// personality id; channelID may be empty for direct messages.
func (r *Resolver) Resolve(ctx context.Context, userID, personalityID, channelID string) (Resolved, error) {
	cacheKey := fmt.Sprintf("%s:%s:%s", userID, personalityID, channelID)
	if cached, ok := r.cache.get(cacheKey); ok {
		return cached, nil
	}

	// Fetch tiers highest-priority first. A missing row contributes
	// nothing; a fetch failure aborts resolution rather than silently
	// resolving with a hole in the cascade.
	type tierFetch struct {
		tier  string
		fetch func() (*types.ConfigOverrides, error)
	}
	fetches := []tierFetch{
		{TierPersonality, func() (*types.ConfigOverrides, error) { return r.store.GetPersonality(ctx, personalityID) }},
		{TierUser, func() (*types.ConfigOverrides, error) { return r.store.GetUser(ctx, userID) }},
		{TierAdmin, func() (*types.ConfigOverrides, error) { return r.store.GetAdmin(ctx) }},
	}
	if channelID != "" {
		fetches = append(fetches[:1], append([]tierFetch{
			{TierChannel, func() (*types.ConfigOverrides, error) { return r.store.GetChannel(ctx, channelID) }},
		}, fetches[1:]...)...)
	}

	resolved := Resolved{Source: SourceSystemDefault}
	params := types.LLMParams{}
	for _, tf := range fetches {
		row, err := tf.fetch()
		if err != nil {
			return Resolved{}, fmt.Errorf("configcascade: resolve %s tier: %w", tf.tier, err)
		}
		if row == nil {
			continue
		}
		params = OverlayParams(params, row.Params)
		if resolved.Source == SourceSystemDefault {
			switch tf.tier {
			case TierPersonality, TierChannel:
				resolved.Source = SourceContextOverride
				resolved.SourceName = row.OwnerID
			case TierUser:
				resolved.Source = SourceUserDefault
			default:
				resolved.Source = SourceSystemDefault
			}
		}
	}
	resolved.Params = OverlayParams(params, r.defaults)

	r.cache.put(cacheKey, resolved)
	return resolved, nil
}

// Invalidate purges cached resolutions whose key mentions id. An empty id
// (admin wildcard) clears the whole cache.
func (r *Resolver) Invalidate(id string) {
	n := r.cache.invalidate(id)
	if n > 0 {
		r.log.Debug("invalidated cached config resolutions", "id", id, "count", n)
	}
}

// Run sweeps expired cache entries until ctx is cancelled.
func (r *Resolver) Run(ctx context.Context, sweepInterval time.Duration) {
	r.cache.run(ctx, sweepInterval)
}
