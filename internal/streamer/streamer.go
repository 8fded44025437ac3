// Package streamer implements the Range Streamer (spec.md §4.4): it turns
// an inclusive byte range over a Locator into an io.ReadCloser that pulls
// fixed-size chunks through internal/fetcher and trims the first and last
// chunk to the requested window, ported from
// original_source/Thunder/utils/custom_dl.py::yield_file. It is the
// Go-native replacement for the teacher's utils.NewTelegramReader call
// site (internal/routes/direct.go), which the retrieval pack never
// actually carried an implementation of.
package streamer

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/mediagate/streamgate/internal/fetcher"
	"github.com/mediagate/streamgate/internal/locator"
	"github.com/mediagate/streamgate/internal/worker"
)

// API is the RPC surface the streamer drives through fetcher.Fetch.
type API interface {
	UploadGetFile(ctx context.Context, request *tg.UploadGetFileRequest) (tg.UploadFileClass, error)
}

// Stream opens a Range Streamer over loc for the inclusive byte range
// [rangeStart, rangeEnd], reading through api. The caller is responsible
// for having already selected workerIdx (worker.LoadTable.Select) and
// resolving loc to an authenticated session for loc.DCID(); Stream
// increments loads at workerIdx immediately and guarantees exactly one
// matching decrement no matter how the returned ReadCloser is driven to
// exit (spec.md §5 "Work-load conservation").
func Stream(ctx context.Context, api API, loc locator.Locator, workerIdx int, loads *worker.LoadTable, rangeStart, rangeEnd, chunkSize int64, log *zap.Logger) (io.ReadCloser, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("streamer: chunk size must be positive, got %d", chunkSize)
	}
	if rangeStart < 0 || rangeEnd < rangeStart {
		return nil, fmt.Errorf("streamer: invalid range [%d, %d]", rangeStart, rangeEnd)
	}

	p := computePlan(rangeStart, rangeEnd, chunkSize)
	loads.Inc(workerIdx)

	r := &reader{
		ctx:       ctx,
		api:       api,
		location:  locator.InputLocation(loc),
		plan:      p,
		workerIdx: workerIdx,
		loads:     loads,
		log:       log.Named("RangeStreamer"),
		current:   1,
		offset:    p.offsetStart,
	}
	return r, nil
}

// reader is the io.ReadCloser returned by Stream. It is not safe for
// concurrent use, matching net/http's sequential ResponseWriter.Write
// consumption of a handler's response body.
type reader struct {
	ctx      context.Context
	api      API
	location tg.InputFileLocationClass
	plan     plan

	workerIdx int
	loads     *worker.LoadTable
	log       *zap.Logger

	current int64 // 1-based index of the next chunk to fetch
	offset  int64 // byte offset of the next chunk to fetch
	buf     []byte
	eof     bool

	once sync.Once
}

func (r *reader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.eof {
			r.release()
			return 0, io.EOF
		}
		if r.current > r.plan.partCount {
			r.eof = true
			r.release()
			return 0, io.EOF
		}
		if err := r.ctx.Err(); err != nil {
			r.eof = true
			r.release()
			return 0, err
		}

		chunk, err := fetcher.Fetch(r.ctx, r.api, r.location, r.offset, r.plan.chunkSize, r.log)
		if err != nil {
			r.eof = true
			r.release()
			return 0, err
		}
		if chunk == nil {
			r.log.Debug("chunk fetch reported eof before plan exhausted",
				zap.Int64("current", r.current), zap.Int64("partCount", r.plan.partCount))
			r.eof = true
			r.release()
			return 0, io.EOF
		}

		r.buf = trim(chunk, r.current, r.plan)
		r.current++
		r.offset += r.plan.chunkSize
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// Close releases this stream's worker-load slot. Safe to call multiple
// times and safe to call after Read has already driven the stream to
// EOF or an error.
func (r *reader) Close() error {
	r.release()
	return nil
}

func (r *reader) release() {
	r.once.Do(func() {
		r.loads.Dec(r.workerIdx)
	})
}

// ContentLength reports the number of bytes the requested range covers,
// for callers that need to set a Content-Length header up front.
func ContentLength(rangeStart, rangeEnd int64) int64 {
	return rangeEnd - rangeStart + 1
}
