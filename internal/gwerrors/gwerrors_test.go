package gwerrors

import (
	"errors"
	"testing"
)

func TestNotFoundIsMatchesSentinel(t *testing.T) {
	err := NotFound("message %d missing", 42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("NotFound error does not match ErrNotFound via errors.Is")
	}
	if errors.Is(err, ErrAuthFailed) {
		t.Fatal("NotFound error incorrectly matches ErrAuthFailed")
	}
}

func TestStaleReferenceDistinctFromPlainBackendUnavailable(t *testing.T) {
	stale := StaleReference(errors.New("file_reference expired"))
	plain := BackendUnavailable(errors.New("connection reset"))

	if !errors.Is(stale, ErrStaleReference) {
		t.Fatal("StaleReference error does not match ErrStaleReference")
	}
	if errors.Is(plain, ErrStaleReference) {
		t.Fatal("plain BackendUnavailable incorrectly matches ErrStaleReference")
	}
	if !errors.Is(plain, ErrBackendUnavailable) {
		t.Fatal("plain BackendUnavailable does not match ErrBackendUnavailable")
	}
	// Both are KindBackendUnavailable, but Advisory differs: plain must
	// not satisfy errors.Is against the advisory sentinel and vice versa.
	if errors.Is(stale, ErrBackendUnavailable) {
		t.Fatal("advisory StaleReference incorrectly matches the non-advisory sentinel")
	}
}

func TestIsStaleReference(t *testing.T) {
	if !IsStaleReference(StaleReference(nil)) {
		t.Fatal("IsStaleReference false for a StaleReference error")
	}
	if IsStaleReference(BackendUnavailable(nil)) {
		t.Fatal("IsStaleReference true for a plain BackendUnavailable error")
	}
	if IsStaleReference(errors.New("unrelated")) {
		t.Fatal("IsStaleReference true for an unrelated error")
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := AuthFailed(cause)
	if !errors.Is(err, cause) {
		t.Fatal("AuthFailed error does not unwrap to its cause")
	}
}
