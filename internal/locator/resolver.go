package locator

import (
	"context"

	"go.uber.org/zap"

	"github.com/mediagate/streamgate/internal/gwerrors"
)

// MsgStore is the collaborator the Resolver consumes to turn a message id
// into a Locator (spec.md §6: "get_file_ids(channel_id, message_id) →
// FileLocator | None"). Defined here, the consumer side, so the concrete
// gotd/td binding in internal/mtproto can satisfy it without an import
// cycle.
type MsgStore interface {
	GetFileIDs(ctx context.Context, channelID int64, messageID int64) (Locator, error)
}

// Resolver maps a message id to a Locator, consulting and populating Cache
// on the way (spec.md §4.1).
type Resolver struct {
	store     MsgStore
	channelID int64
	cache     *Cache
	log       *zap.Logger
}

// NewResolver builds a Resolver bound to one store channel and cache.
func NewResolver(store MsgStore, channelID int64, cache *Cache, log *zap.Logger) *Resolver {
	return &Resolver{
		store:     store,
		channelID: channelID,
		cache:     cache,
		log:       log.Named("Resolver"),
	}
}

// Resolve returns the cached Locator for messageID, or fetches, caches, and
// returns a fresh one on miss. Fails with gwerrors.NotFound when the
// backing message doesn't exist or carries no file.
func (r *Resolver) Resolve(ctx context.Context, messageID int64) (Locator, error) {
	if loc, ok := r.cache.Get(messageID); ok {
		r.log.Debug("cache hit", zap.Int64("messageID", messageID))
		return loc, nil
	}
	r.log.Debug("cache miss, fetching", zap.Int64("messageID", messageID), zap.Int64("channelID", r.channelID))
	loc, err := r.store.GetFileIDs(ctx, r.channelID, messageID)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, gwerrors.NotFound("message %d has no file", messageID)
	}
	r.cache.Set(messageID, loc)
	return loc, nil
}

// Refresh bypasses the cache, evicts any existing entry for messageID, and
// refetches — used on a StaleReference error (spec.md §7, §9 Open
// Question; ported from teacher's RefetchFileFromMessageAndChannel).
func (r *Resolver) Refresh(ctx context.Context, messageID int64) (Locator, error) {
	r.cache.Evict(messageID)
	return r.Resolve(ctx, messageID)
}
