package engine

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mediagate/streamgate/internal/locator"
)

type fakeStore struct {
	loc   locator.Locator
	calls int
}

func (f *fakeStore) GetFileIDs(_ context.Context, _ int64, _ int64) (locator.Locator, error) {
	f.calls++
	return f.loc, nil
}

func TestEngineResolveCachesAcrossCalls(t *testing.T) {
	store := &fakeStore{loc: &locator.Document{DC: 2, MediaID: 1, AccessHash: 1, Size: 10}}
	workers := []*Worker{{HomeDC: 2}}

	e := New(store, 100, 1048576, time.Hour, workers, zap.NewNop())
	defer e.Close()

	if _, err := e.Resolve(context.Background(), 7); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := e.Resolve(context.Background(), 7); err != nil {
		t.Fatalf("Resolve (cached): %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("store called %d times, want 1 (second Resolve should hit cache)", store.calls)
	}
}

func TestEngineRefreshBypassesCache(t *testing.T) {
	store := &fakeStore{loc: &locator.Document{DC: 2, MediaID: 1, AccessHash: 1, Size: 10}}
	workers := []*Worker{{HomeDC: 2}}

	e := New(store, 100, 1048576, time.Hour, workers, zap.NewNop())
	defer e.Close()

	if _, err := e.Resolve(context.Background(), 7); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := e.Refresh(context.Background(), 7); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if store.calls != 2 {
		t.Fatalf("store called %d times, want 2 (Refresh must bypass cache)", store.calls)
	}
}

func TestEngineSelectWorkerPicksLeastLoaded(t *testing.T) {
	store := &fakeStore{loc: &locator.Document{DC: 2}}
	workers := []*Worker{{HomeDC: 2}, {HomeDC: 4}}

	e := New(store, 100, 1048576, time.Hour, workers, zap.NewNop())
	defer e.Close()

	e.loads.Inc(0)
	if idx := e.SelectWorker(); idx != 1 {
		t.Fatalf("SelectWorker = %d, want 1 (worker 0 has the higher load)", idx)
	}
}

func TestEngineWorkerCount(t *testing.T) {
	store := &fakeStore{loc: &locator.Document{DC: 2}}
	workers := []*Worker{{HomeDC: 2}, {HomeDC: 4}, {HomeDC: 5}}

	e := New(store, 100, 1048576, time.Hour, workers, zap.NewNop())
	defer e.Close()

	if n := e.WorkerCount(); n != 3 {
		t.Fatalf("WorkerCount = %d, want 3", n)
	}
}
