package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubLock struct {
	free     bool
	err      error
	released int
}

func (l *stubLock) Acquire(context.Context) (bool, error) { return l.free, l.err }
func (l *stubLock) Release(context.Context) error {
	l.released++
	return nil
}

func TestSweep_ReconcilesEveryOverdueOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, u := range []string{"bob", "carol"} {
		if _, err := f.groups.JoinGroup(ctx, u, f.group.ID); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
	}
	f.goal(t, "alice", testToday.AddDays(-1), 1)
	f.goal(t, "bob", testToday.AddDays(-5), 2)
	f.goal(t, "bob", testToday.AddDays(-4), 3)
	f.goal(t, "carol", testToday.AddDays(2), 4)

	lock := &stubLock{free: true}
	res, err := NewSweeper(f.store, f.controller, lock).Sweep(ctx, testToday)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Skipped || res.Users != 2 || res.Applied != 3 {
		t.Fatalf("result = %+v, want 2 users and 3 penalties", res)
	}
	if f.fund(t) != 6 {
		t.Fatalf("fund = %d, want 6", f.fund(t))
	}
	if lock.released != 1 {
		t.Fatalf("lock released %d times, want 1", lock.released)
	}

	res, err = NewSweeper(f.store, f.controller, nil).Sweep(ctx, testToday)
	if err != nil || res.Users != 0 || res.Applied != 0 {
		t.Fatalf("second sweep = %+v, %v; want nothing left", res, err)
	}
}

func TestSweep_SkipsWhenLockHeld(t *testing.T) {
	f := newFixture(t)
	f.goal(t, "alice", testToday.AddDays(-1), 1)

	lock := &stubLock{free: false}
	res, err := NewSweeper(f.store, f.controller, lock).Sweep(context.Background(), testToday)
	if err != nil || !res.Skipped {
		t.Fatalf("result = %+v, %v; want skipped", res, err)
	}
	if f.fund(t) != 0 || lock.released != 0 {
		t.Fatalf("skipped sweep touched state: fund=%d released=%d", f.fund(t), lock.released)
	}
}

func TestSweep_LockError(t *testing.T) {
	f := newFixture(t)
	lock := &stubLock{err: errors.New("redis down")}
	if _, err := NewSweeper(f.store, f.controller, lock).Sweep(context.Background(), testToday); err == nil {
		t.Fatal("expected lock error")
	}
}

func TestSweeperRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.goal(t, "alice", testToday.AddDays(-1), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewSweeper(f.store, f.controller, nil).Run(ctx, time.Hour) }()

	// The startup sweep runs before the first tick.
	deadline := time.Now().Add(2 * time.Second)
	for f.fund(t) != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
	if f.fund(t) != 1 {
		t.Fatalf("fund = %d, want 1 after startup sweep", f.fund(t))
	}

	if err := NewSweeper(f.store, f.controller, nil).Run(context.Background(), 0); err == nil {
		t.Fatal("zero interval should be rejected")
	}
}
