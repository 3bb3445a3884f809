package provisioning

import (
	"context"
	"testing"
	"time"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	lease, err := l.Obtain(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("obtain: %v", err)
	}
	if _, err := l.Obtain(ctx, "k", time.Minute); err != ErrProvisioningInProgress {
		t.Fatalf("expected ErrProvisioningInProgress, got %v", err)
	}
	if _, err := l.Obtain(ctx, "other", time.Minute); err != nil {
		t.Fatalf("independent key should be free: %v", err)
	}
	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := l.Obtain(ctx, "k", time.Minute); err != nil {
		t.Fatalf("released key should be free: %v", err)
	}
}

func TestLocalLocker_ExpiredLeaseDoesNotReleaseNewHolder(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	stale, err := l.Obtain(ctx, "k", time.Nanosecond)
	if err != nil {
		t.Fatalf("obtain: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := l.Obtain(ctx, "k", time.Minute); err != nil {
		t.Fatalf("expired key should be free: %v", err)
	}
	_ = stale.Release(ctx)
	if _, err := l.Obtain(ctx, "k", time.Minute); err != ErrProvisioningInProgress {
		t.Fatalf("new holder must survive a stale release, got %v", err)
	}
}

func TestRouteLockKey(t *testing.T) {
	w := testWindow(t)
	if got := routeLockKey(24, w); got != "la-provision:24:2024-03-14..2024-03-15" {
		t.Fatalf("unexpected lock key %q", got)
	}
}

func TestKeepAlive_HoldsKeyPastTTL(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	lease, err := l.Obtain(ctx, "k", 30*time.Millisecond)
	if err != nil {
		t.Fatalf("obtain: %v", err)
	}
	held := keepAlive(ctx, lease, 30*time.Millisecond)
	time.Sleep(120 * time.Millisecond)

	if _, err := l.Obtain(ctx, "k", time.Minute); err != ErrProvisioningInProgress {
		t.Fatalf("refreshed key should still be held, got %v", err)
	}
	if err := held.Err(); err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	if err := held.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := l.Obtain(ctx, "k", time.Minute); err != nil {
		t.Fatalf("released key should be free: %v", err)
	}
}

func TestKeepAlive_ReportsLostLease(t *testing.T) {
	ctx := context.Background()
	held := keepAlive(ctx, lostLease{}, 3*time.Millisecond)
	defer held.Release(ctx)

	deadline := time.Now().Add(time.Second)
	for held.Err() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := held.Err(); err != ErrLeaseLost {
		t.Fatalf("expected ErrLeaseLost, got %v", err)
	}
}

func TestLocalLease_RefreshAfterTakeover(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	stale, err := l.Obtain(ctx, "k", time.Nanosecond)
	if err != nil {
		t.Fatalf("obtain: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := l.Obtain(ctx, "k", time.Minute); err != nil {
		t.Fatalf("expired key should be free: %v", err)
	}
	if err := stale.Refresh(ctx, time.Minute); err != ErrLeaseLost {
		t.Fatalf("expected ErrLeaseLost, got %v", err)
	}
}
