// Package fetcher issues the single-chunk GetFile RPC the Range Streamer
// drives in a loop, handling flood-control locally and surfacing typed
// errors for everything else (spec.md §4.3), ported from the inner fetch
// of original_source/Thunder/utils/custom_dl.py::yield_file.
package fetcher

import (
	"context"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"

	"github.com/mediagate/streamgate/internal/gwerrors"
	"github.com/mediagate/streamgate/internal/tgutil"
)

// API is the subset of *tg.Client the fetcher calls, narrowed for testing.
type API interface {
	UploadGetFile(ctx context.Context, request *tg.UploadGetFileRequest) (tg.UploadFileClass, error)
}

// Fetch pulls one chunk at offset (must be a multiple of limit, the
// backend's alignment requirement) with up to limit bytes. A nil, nil
// result signals end of file: either the backend returned an empty chunk,
// or a response type this gateway does not follow (e.g. a CDN redirect,
// see SPEC_FULL.md §11).
func Fetch(ctx context.Context, api API, location tg.InputFileLocationClass, offset, limit int64, log *zap.Logger) ([]byte, error) {
	for {
		resp, err := api.UploadGetFile(ctx, &tg.UploadGetFileRequest{
			Location: location,
			Offset:   offset,
			Limit:    int(limit),
		})
		if err != nil {
			if d, ok := tgutil.FloodWait(err); ok {
				log.Warn("flood wait during fetch", zap.Duration("wait", d), zap.Int64("offset", offset))
				sleep(ctx, d+time.Second)
				continue
			}
			if tgerr.Is(err, "FILE_REFERENCE_EXPIRED") {
				return nil, gwerrors.StaleReference(err)
			}
			return nil, gwerrors.BackendUnavailable(err)
		}

		file, ok := resp.(*tg.UploadFile)
		if !ok {
			log.Debug("unexpected GetFile response type, treating as EOF",
				zap.Int64("offset", offset))
			return nil, nil
		}
		if len(file.Bytes) == 0 {
			return nil, nil
		}
		return file.Bytes, nil
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
