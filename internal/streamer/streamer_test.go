package streamer

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/mediagate/streamgate/internal/locator"
	"github.com/mediagate/streamgate/internal/worker"
)

const chunkSize = 1048576

// fakeAPI serves UploadGetFile from an in-memory file, recording every
// offset it was asked for.
type fakeAPI struct {
	data    []byte
	offsets []int64
}

func (f *fakeAPI) UploadGetFile(_ context.Context, req *tg.UploadGetFileRequest) (tg.UploadFileClass, error) {
	f.offsets = append(f.offsets, req.Offset)
	end := req.Offset + int64(req.Limit)
	if end > int64(len(f.data)) {
		end = int64(len(f.data))
	}
	if req.Offset >= int64(len(f.data)) {
		return &tg.UploadFile{Bytes: nil}, nil
	}
	return &tg.UploadFile{Bytes: f.data[req.Offset:end]}, nil
}

func testLoc() locator.Locator {
	return &locator.Document{DC: 2, MediaID: 1, AccessHash: 1, FileReference: []byte("ref"), Size: 3145728}
}

func TestStreamUnalignedMultiChunk(t *testing.T) {
	data := make([]byte, 3145728) // 3 MiB, large enough for S2's range.
	for i := range data {
		data[i] = byte(i)
	}
	api := &fakeAPI{data: data}
	loads := worker.NewLoadTable(1)
	log := zap.NewNop()

	rc, err := Stream(context.Background(), api, testLoc(), 0, loads, 500, 3145727, chunkSize, log)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if loads.Load(0) != 1 {
		t.Fatalf("load = %d, want 1 immediately after Stream", loads.Load(0))
	}

	out, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := data[500:3145728]
	if !bytes.Equal(out, want) {
		t.Fatalf("emitted %d bytes, want %d bytes matching source range", len(out), len(want))
	}
	if len(api.offsets) != 3 || api.offsets[0] != 0 || api.offsets[1] != 1048576 || api.offsets[2] != 2097152 {
		t.Fatalf("fetch offsets = %v, want [0 1048576 2097152]", api.offsets)
	}
	if loads.Load(0) != 0 {
		t.Fatalf("load = %d, want 0 after full consumption", loads.Load(0))
	}
}

func TestStreamCancellationReleasesLoad(t *testing.T) {
	data := make([]byte, 3145728)
	api := &fakeAPI{data: data}
	loads := worker.NewLoadTable(1)
	log := zap.NewNop()

	ctx, cancel := context.WithCancel(context.Background())
	rc, err := Stream(ctx, api, testLoc(), 0, loads, 500, 3145727, chunkSize, log)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	buf := make([]byte, 1024)
	if _, err := rc.Read(buf); err != nil {
		t.Fatalf("first Read: %v", err)
	}
	fetchesBeforeCancel := len(api.offsets)

	cancel()
	_, _ = rc.Read(buf)
	_ = rc.Close()

	if len(api.offsets) != fetchesBeforeCancel {
		t.Fatalf("issued %d more fetches after cancellation", len(api.offsets)-fetchesBeforeCancel)
	}
	if loads.Load(0) != 0 {
		t.Fatalf("load = %d, want 0 after cancellation", loads.Load(0))
	}
}

func TestStreamRejectsInvalidRange(t *testing.T) {
	loads := worker.NewLoadTable(1)
	log := zap.NewNop()
	if _, err := Stream(context.Background(), &fakeAPI{}, testLoc(), 0, loads, 10, 5, chunkSize, log); err == nil {
		t.Fatal("expected error for rangeEnd < rangeStart")
	}
	if loads.Load(0) != 0 {
		t.Fatalf("load = %d, want 0 on rejected range", loads.Load(0))
	}
}
