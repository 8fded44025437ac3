package locator

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/mediagate/streamgate/internal/gwerrors"
)

type fakeStore struct {
	loc   Locator
	err   error
	calls int
}

func (f *fakeStore) GetFileIDs(_ context.Context, _ int64, _ int64) (Locator, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.loc, nil
}

func TestResolveCachesOnHit(t *testing.T) {
	store := &fakeStore{loc: &Document{DC: 2, MediaID: 5, Size: 10}}
	r := NewResolver(store, 100, NewCache(), zap.NewNop())

	if _, err := r.Resolve(context.Background(), 1); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := r.Resolve(context.Background(), 1); err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("store called %d times, want 1", store.calls)
	}
}

func TestResolveNilLocatorIsNotFound(t *testing.T) {
	store := &fakeStore{loc: nil}
	r := NewResolver(store, 100, NewCache(), zap.NewNop())

	_, err := r.Resolve(context.Background(), 1)
	if !errors.Is(err, gwerrors.ErrNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestResolvePropagatesStoreError(t *testing.T) {
	wantErr := errors.New("backend down")
	store := &fakeStore{err: wantErr}
	r := NewResolver(store, 100, NewCache(), zap.NewNop())

	_, err := r.Resolve(context.Background(), 1)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped %v", err, wantErr)
	}
}

func TestRefreshBypassesCacheAndRefetches(t *testing.T) {
	store := &fakeStore{loc: &Document{DC: 2, MediaID: 5, Size: 10}}
	cache := NewCache()
	r := NewResolver(store, 100, cache, zap.NewNop())

	if _, err := r.Resolve(context.Background(), 1); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := r.Refresh(context.Background(), 1); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if store.calls != 2 {
		t.Fatalf("store called %d times, want 2", store.calls)
	}
}
