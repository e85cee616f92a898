package workflow

import (
	"context"
	"testing"
	"time"
)

func TestNextBackoff(t *testing.T) {
	initial := 5 * time.Second
	ceiling := time.Minute
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{5, time.Minute},
		{30, time.Minute},
	}
	for _, tc := range cases {
		if got := NextBackoff(initial, ceiling, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: got %s want %s", tc.attempt, got, tc.want)
		}
	}
	if got := NextBackoff(time.Second, 0, 4); got != 8*time.Second {
		t.Fatalf("uncapped: got %s", got)
	}
}

func TestDispatchOnceWithoutDB(t *testing.T) {
	d := NewAuditOutboxDispatcher(nil, nil)
	if n := d.DispatchOnce(context.Background()); n != 0 {
		t.Fatalf("expected 0; got %d", n)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	d := NewAuditOutboxDispatcher(nil, nil)
	d.PollInterval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
