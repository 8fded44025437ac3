// Package engine wires the Location Resolver, Session Pool, Chunk
// Fetcher, Range Streamer, and Worker Load Table into the single
// byte-streaming engine spec.md §2 describes, replacing the teacher's
// module-level singletons (internal/cache.GetCache(), bot.Workers) with
// one explicit value collaborators receive by reference (spec.md §9
// Design Notes).
package engine

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mediagate/streamgate/internal/fetcher"
	"github.com/mediagate/streamgate/internal/locator"
	"github.com/mediagate/streamgate/internal/session"
	"github.com/mediagate/streamgate/internal/streamer"
	"github.com/mediagate/streamgate/internal/worker"
)

// Worker is one engine-managed streaming client: a per-DC session pool
// rooted at a home datacenter.
type Worker struct {
	Pool   *session.Pool
	HomeDC int
}

// Engine owns the FileLocator cache, one Session Pool per worker, and the
// Worker Load Table (spec.md §3 "Ownership").
type Engine struct {
	resolver       *locator.Resolver
	cache          *locator.Cache
	storeChannelID int64
	chunkSize      int64

	workers []*Worker
	loads   *worker.LoadTable

	log  *zap.Logger
	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds an Engine. store resolves messages in storeChannelID to
// Locators — ordinarily the first worker's MsgStore, the way teacher's
// GetDefaultWorker designates one client for channel-scoped operations.
// The cache sweep ticker starts immediately and runs until Close.
func New(store locator.MsgStore, storeChannelID, chunkSize int64, cleanInterval time.Duration, workers []*Worker, log *zap.Logger) *Engine {
	log = log.Named("Engine")
	cache := locator.NewCache()

	e := &Engine{
		resolver:       locator.NewResolver(store, storeChannelID, cache, log),
		cache:          cache,
		storeChannelID: storeChannelID,
		chunkSize:      chunkSize,
		workers:        workers,
		loads:          worker.NewLoadTable(len(workers)),
		log:            log,
		stop:           make(chan struct{}),
	}

	e.wg.Add(1)
	go e.sweepLoop(cleanInterval)

	return e
}

func (e *Engine) sweepLoop(interval time.Duration) {
	defer e.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			e.cache.Sweep()
			e.log.Debug("swept locator cache")
		case <-e.stop:
			return
		}
	}
}

// Close stops the sweep ticker and waits for it to exit.
func (e *Engine) Close() {
	close(e.stop)
	e.wg.Wait()
}

// Resolve maps a message id to its Locator, consulting and populating the
// cache (spec.md §4.1).
func (e *Engine) Resolve(ctx context.Context, messageID int64) (locator.Locator, error) {
	return e.resolver.Resolve(ctx, messageID)
}

// Refresh forces a cache-bypassing re-resolve, used on FILE_REFERENCE_EXPIRED
// recovery (SPEC_FULL.md §10).
func (e *Engine) Refresh(ctx context.Context, messageID int64) (locator.Locator, error) {
	return e.resolver.Refresh(ctx, messageID)
}

// SelectWorker picks the least-loaded worker index (spec.md §4.5).
func (e *Engine) SelectWorker() int {
	return e.loads.Select()
}

// WorkerCount reports how many workers the engine balances across.
func (e *Engine) WorkerCount() int {
	return len(e.workers)
}

// Stream opens a Range Streamer for loc over [rangeStart, rangeEnd] on
// the given worker, dialing or reusing that worker's session for
// loc.DCID() as needed (spec.md §4.2, §4.4).
func (e *Engine) Stream(ctx context.Context, loc locator.Locator, workerIdx int, rangeStart, rangeEnd int64) (io.ReadCloser, error) {
	w := e.workers[workerIdx]
	sess, err := w.Pool.SessionForDC(ctx, loc.DCID())
	if err != nil {
		return nil, err
	}
	return streamer.Stream(ctx, sess.API(), loc, workerIdx, e.loads, rangeStart, rangeEnd, e.chunkSize, e.log)
}

// FetchWhole pulls an entire file in one GetFile call, for Locators that
// are served whole rather than range-streamed — photos, whose FileSize is
// always reported as 0 (SPEC_FULL.md §10 "photo whole-file fetch").
func (e *Engine) FetchWhole(ctx context.Context, loc locator.Locator, workerIdx int, limit int64) ([]byte, error) {
	w := e.workers[workerIdx]
	sess, err := w.Pool.SessionForDC(ctx, loc.DCID())
	if err != nil {
		return nil, err
	}
	e.loads.Inc(workerIdx)
	defer e.loads.Dec(workerIdx)
	return fetcher.Fetch(ctx, sess.API(), locator.InputLocation(loc), 0, limit, e.log)
}
