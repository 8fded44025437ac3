package fetcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"

	"github.com/mediagate/streamgate/internal/gwerrors"
)

type fakeAPI struct {
	responses []fakeResponse
	calls     atomic.Int32
}

type fakeResponse struct {
	file *tg.UploadFile
	err  error
}

func (f *fakeAPI) UploadGetFile(_ context.Context, _ *tg.UploadGetFileRequest) (tg.UploadFileClass, error) {
	i := int(f.calls.Add(1)) - 1
	r := f.responses[i]
	if r.err != nil {
		return nil, r.err
	}
	if r.file == nil {
		return nil, nil
	}
	return r.file, nil
}

func TestFetchReturnsBytes(t *testing.T) {
	api := &fakeAPI{responses: []fakeResponse{{file: &tg.UploadFile{Bytes: []byte("hello")}}}}
	data, err := Fetch(context.Background(), api, &tg.InputDocumentFileLocation{}, 0, 1024, zap.NewNop())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("data = %q, want %q", data, "hello")
	}
}

func TestFetchEmptyBytesSignalsEOF(t *testing.T) {
	api := &fakeAPI{responses: []fakeResponse{{file: &tg.UploadFile{Bytes: nil}}}}
	data, err := Fetch(context.Background(), api, &tg.InputDocumentFileLocation{}, 0, 1024, zap.NewNop())
	if err != nil || data != nil {
		t.Fatalf("Fetch = (%v, %v), want (nil, nil)", data, err)
	}
}

func TestFetchRetriesOnFloodWait(t *testing.T) {
	api := &fakeAPI{responses: []fakeResponse{
		{err: &tgerr.Error{Type: "FLOOD_WAIT", Argument: 0, Message: "FLOOD_WAIT (0)"}},
		{file: &tg.UploadFile{Bytes: []byte("ok")}},
	}}
	data, err := Fetch(context.Background(), api, &tg.InputDocumentFileLocation{}, 0, 1024, zap.NewNop())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "ok" {
		t.Fatalf("data = %q, want %q", data, "ok")
	}
	if api.calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", api.calls.Load())
	}
}

func TestFetchWrapsNonFloodErrorAsBackendUnavailable(t *testing.T) {
	wantErr := errors.New("connection reset")
	api := &fakeAPI{responses: []fakeResponse{{err: wantErr}}}
	_, err := Fetch(context.Background(), api, &tg.InputDocumentFileLocation{}, 0, 1024, zap.NewNop())
	if !errors.Is(err, gwerrors.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want BackendUnavailable", err)
	}
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want to unwrap to %v", err, wantErr)
	}
}
