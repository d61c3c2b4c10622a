package sandbox

import (
	"context"
	"errors"
	"testing"
)

func TestRetryOnceSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := retryOnce(context.Background(), "start", "ctr-1", func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryOnceRecoversOnSecondTry(t *testing.T) {
	calls := 0
	err := retryOnce(context.Background(), "start", "ctr-1", func() error {
		calls++
		if calls == 1 {
			return errors.New("container in transition")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryOnceGivesUpAfterSecondFailure(t *testing.T) {
	calls := 0
	boom := errors.New("still broken")
	err := retryOnce(context.Background(), "stop", "ctr-1", func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryOnceHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retryOnce(ctx, "remove", "ctr-1", func() error {
		calls++
		return errors.New("interrupted")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry after cancellation)", calls)
	}
}
