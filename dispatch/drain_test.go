package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestInFlight(t *testing.T) {
	f := newInFlight()

	for range 3 {
		if !f.begin() {
			t.Fatal("exp admission before close")
		}
	}

	if !f.close() {
		t.Fatal("exp first close to report true")
	}
	if f.close() {
		t.Error("exp second close to report false")
	}
	if f.begin() {
		t.Error("exp no admission after close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := f.wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("exp deadline while work is pending, got %v", err)
	}

	var wg sync.WaitGroup
	for range 3 {
		wg.Go(f.end)
	}
	wg.Wait()

	if err := f.wait(t.Context()); err != nil {
		t.Errorf("exp drained, got %v", err)
	}
	if got := f.pending(); got != 0 {
		t.Errorf("exp 0 pending, got %d", got)
	}
}

func TestInFlight_CloseIdle(t *testing.T) {
	f := newInFlight()
	f.close()

	if err := f.wait(t.Context()); err != nil {
		t.Errorf("exp immediate drain, got %v", err)
	}
}
