package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"

	"github.com/mediagate/streamgate/internal/gwerrors"
)

type fakeTransport struct {
	stopped atomic.Bool
}

func (f *fakeTransport) API() *tg.Client { return &tg.Client{} }
func (f *fakeTransport) Stop() error {
	f.stopped.Store(true)
	return nil
}

type fakeDialer struct {
	dials atomic.Int32
	delay time.Duration
}

func (d *fakeDialer) Dial(ctx context.Context, dcID int) (Transport, error) {
	d.dials.Add(1)
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &fakeTransport{}, nil
}

type fakeAuthorizer struct {
	exportCalls atomic.Int32
}

func (a *fakeAuthorizer) ExportAuthorization(ctx context.Context, dcID int) (int64, []byte, error) {
	a.exportCalls.Add(1)
	return 1, []byte("auth-bytes"), nil
}

func (a *fakeAuthorizer) ImportAuthorization(ctx context.Context, api *tg.Client, id int64, bytes []byte) error {
	return nil
}

func TestSessionForDCReusesHomeTransport(t *testing.T) {
	home := &fakeTransport{}
	pool := NewPool(2, home, &fakeDialer{}, &fakeAuthorizer{}, 3, 0, zap.NewNop())

	sess, err := pool.SessionForDC(context.Background(), 2)
	if err != nil {
		t.Fatalf("SessionForDC: %v", err)
	}
	if sess.DCID() != 2 {
		t.Fatalf("DCID = %d, want 2", sess.DCID())
	}
}

func TestSessionForDCCachesCrossDCSession(t *testing.T) {
	home := &fakeTransport{}
	dialer := &fakeDialer{}
	pool := NewPool(2, home, dialer, &fakeAuthorizer{}, 3, 0, zap.NewNop())

	if _, err := pool.SessionForDC(context.Background(), 4); err != nil {
		t.Fatalf("first SessionForDC: %v", err)
	}
	if _, err := pool.SessionForDC(context.Background(), 4); err != nil {
		t.Fatalf("second SessionForDC: %v", err)
	}
	if dialer.dials.Load() != 1 {
		t.Fatalf("dialed %d times, want 1 (second call should hit the cache)", dialer.dials.Load())
	}
}

func TestSessionForDCCoalescesConcurrentCreation(t *testing.T) {
	home := &fakeTransport{}
	dialer := &fakeDialer{delay: 50 * time.Millisecond}
	pool := NewPool(2, home, dialer, &fakeAuthorizer{}, 3, 0, zap.NewNop())

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := pool.SessionForDC(context.Background(), 4); err != nil {
				t.Errorf("SessionForDC: %v", err)
			}
		}()
	}
	wg.Wait()

	if dialer.dials.Load() != 1 {
		t.Fatalf("dialed %d times under concurrency, want exactly 1", dialer.dials.Load())
	}
}

func TestImportAuthorizationRetriesOnAuthBytesInvalidUntilLimit(t *testing.T) {
	home := &fakeTransport{}
	auth := &countingAuthorizer{}
	pool := NewPool(2, home, &fakeDialer{}, auth, 2, 0, zap.NewNop())

	_, err := pool.SessionForDC(context.Background(), 4)
	if !errors.Is(err, gwerrors.ErrAuthFailed) {
		t.Fatalf("err = %v, want AuthFailed after exhausting retry budget", err)
	}
	if auth.importCalls.Load() != 2 {
		t.Fatalf("import attempted %d times, want 2 (retryLimit)", auth.importCalls.Load())
	}
}

func TestImportAuthorizationRetriesOnFloodWaitWithoutConsumingBudget(t *testing.T) {
	home := &fakeTransport{}
	auth := &floodThenOKAuthorizer{}
	pool := NewPool(2, home, &fakeDialer{}, auth, 1, 0, zap.NewNop())

	sess, err := pool.SessionForDC(context.Background(), 4)
	if err != nil {
		t.Fatalf("SessionForDC: %v, want success after one flood-wait retry", err)
	}
	if sess.DCID() != 4 {
		t.Fatalf("DCID = %d, want 4", sess.DCID())
	}
	if auth.importCalls.Load() != 2 {
		t.Fatalf("import attempted %d times, want 2 (flood wait then success)", auth.importCalls.Load())
	}
}

// TestImportAuthorizationRecoversAfterTwoAuthBytesInvalid exercises the
// named scenario of two AUTH_BYTES_INVALID responses followed by success
// (spec.md §8 S5): the session still gets created within budget and, once
// cached, a second SessionForDC call reuses it without dialing or
// importing again.
func TestImportAuthorizationRecoversAfterTwoAuthBytesInvalid(t *testing.T) {
	home := &fakeTransport{}
	dialer := &fakeDialer{}
	auth := &twoInvalidThenOKAuthorizer{}
	pool := NewPool(2, home, dialer, auth, 3, 0, zap.NewNop())

	sess, err := pool.SessionForDC(context.Background(), 4)
	if err != nil {
		t.Fatalf("SessionForDC: %v, want success on the third import attempt", err)
	}
	if sess.DCID() != 4 {
		t.Fatalf("DCID = %d, want 4", sess.DCID())
	}
	if auth.importCalls.Load() != 3 {
		t.Fatalf("import attempted %d times, want 3 (two AUTH_BYTES_INVALID then success)", auth.importCalls.Load())
	}

	if _, err := pool.SessionForDC(context.Background(), 4); err != nil {
		t.Fatalf("second SessionForDC: %v", err)
	}
	if dialer.dials.Load() != 1 {
		t.Fatalf("dialed %d times, want 1 (second request should reuse the cached session)", dialer.dials.Load())
	}
	if auth.importCalls.Load() != 3 {
		t.Fatalf("import attempted %d times after reuse, want still 3 (no re-authorization)", auth.importCalls.Load())
	}
}

type twoInvalidThenOKAuthorizer struct {
	importCalls atomic.Int32
}

func (a *twoInvalidThenOKAuthorizer) ExportAuthorization(ctx context.Context, dcID int) (int64, []byte, error) {
	return 1, []byte("auth"), nil
}

func (a *twoInvalidThenOKAuthorizer) ImportAuthorization(ctx context.Context, api *tg.Client, id int64, bytes []byte) error {
	if a.importCalls.Add(1) <= 2 {
		return &tgerr.Error{Type: "AUTH_BYTES_INVALID", Message: "AUTH_BYTES_INVALID"}
	}
	return nil
}

type countingAuthorizer struct {
	importCalls atomic.Int32
}

func (a *countingAuthorizer) ExportAuthorization(ctx context.Context, dcID int) (int64, []byte, error) {
	return 1, []byte("auth"), nil
}

func (a *countingAuthorizer) ImportAuthorization(ctx context.Context, api *tg.Client, id int64, bytes []byte) error {
	a.importCalls.Add(1)
	return &tgerr.Error{Type: "AUTH_BYTES_INVALID", Message: "AUTH_BYTES_INVALID"}
}

type floodThenOKAuthorizer struct {
	importCalls atomic.Int32
}

func (a *floodThenOKAuthorizer) ExportAuthorization(ctx context.Context, dcID int) (int64, []byte, error) {
	return 1, []byte("auth"), nil
}

func (a *floodThenOKAuthorizer) ImportAuthorization(ctx context.Context, api *tg.Client, id int64, bytes []byte) error {
	if a.importCalls.Add(1) == 1 {
		return &tgerr.Error{Type: "FLOOD_WAIT", Argument: 0, Message: "FLOOD_WAIT (0)"}
	}
	return nil
}
