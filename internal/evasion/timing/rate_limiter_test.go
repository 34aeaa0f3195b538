package timing

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/bl4ck0w1/shadowscan/pkg/models"
)

// fixedSource always returns the same offset into [0, n).
type fixedSource struct{ pick func(n int64) int64 }

func (f fixedSource) Int63n(n int64) int64 { return f.pick(n) }

var (
	lowest  = fixedSource{pick: func(int64) int64 { return 0 }}
	highest = fixedSource{pick: func(n int64) int64 { return n - 1 }}
	middle  = fixedSource{pick: func(n int64) int64 { return n / 2 }}
)

func quietLogger() *logrus.Logger {
	l, _ := test.NewNullLogger()
	return l
}

func TestComputeDelayDefaults(t *testing.T) {
	tests := []struct {
		name string
		src  JitterSource
		want time.Duration
	}{
		{"no jitter", middle, 5000 * time.Millisecond},
		{"minus 25 percent clamped to floor", lowest, 4000 * time.Millisecond},
		{"plus 25 percent", highest, 6250 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter(DefaultConfig(), quietLogger(), WithJitterSource(tt.src))
			if got := rl.ComputeDelay(1); got != tt.want {
				t.Fatalf("ComputeDelay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeDelayAlwaysWithinBand(t *testing.T) {
	for _, rpm := range []int{1, 5, 7, 12, 15, 30, 60, 600} {
		for _, src := range []JitterSource{lowest, middle, highest, CryptoSource()} {
			rl := NewRateLimiter(Config{RequestsPerMinute: rpm, MinDelay: 4 * time.Second, MaxDelay: 8 * time.Second, JitterFraction: 0.25}, quietLogger(), WithJitterSource(src))
			for i := 0; i < 50; i++ {
				d := rl.ComputeDelay(i + 1)
				if d < 4*time.Second || d > 8*time.Second {
					t.Fatalf("rpm=%d: delay %v outside [4s, 8s]", rpm, d)
				}
			}
		}
	}
}

func TestComputeDelayClampsOutsideBand(t *testing.T) {
	slow := NewRateLimiter(Config{RequestsPerMinute: 1, MinDelay: 4 * time.Second, MaxDelay: 8 * time.Second, JitterFraction: 0.25}, quietLogger(), WithJitterSource(lowest))
	if got := slow.ComputeDelay(1); got != 8*time.Second {
		t.Fatalf("slow target: got %v, want ceiling 8s", got)
	}
	fast := NewRateLimiter(Config{RequestsPerMinute: 600, MinDelay: 4 * time.Second, MaxDelay: 8 * time.Second, JitterFraction: 0.25}, quietLogger(), WithJitterSource(highest))
	if got := fast.ComputeDelay(1); got != 4*time.Second {
		t.Fatalf("fast target: got %v, want floor 4s", got)
	}
}

func TestComputeDelayCountsRequests(t *testing.T) {
	rl := NewRateLimiter(DefaultConfig(), quietLogger())
	for i := 1; i <= 7; i++ {
		rl.ComputeDelay(i)
		if got := rl.RequestsIssued(); got != int64(i) {
			t.Fatalf("after %d calls RequestsIssued = %d", i, got)
		}
	}
}

func TestNormalizeConfig(t *testing.T) {
	rl := NewRateLimiter(Config{RequestsPerMinute: -3, MinDelay: 9 * time.Second, MaxDelay: 2 * time.Second, JitterFraction: 4}, quietLogger())
	cfg := rl.Config()
	if cfg.RequestsPerMinute != DefaultRequestsPerMinute {
		t.Errorf("RequestsPerMinute = %d", cfg.RequestsPerMinute)
	}
	if cfg.MaxDelay != cfg.MinDelay {
		t.Errorf("MaxDelay %v should be raised to MinDelay %v", cfg.MaxDelay, cfg.MinDelay)
	}
	if cfg.JitterFraction != 1 {
		t.Errorf("JitterFraction = %v", cfg.JitterFraction)
	}
}

func TestWaitSleepsComputedDelayAndNotifies(t *testing.T) {
	var slept []time.Duration
	var events []models.Event
	rl := NewRateLimiter(DefaultConfig(), quietLogger(),
		WithJitterSource(middle),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}),
		WithObserver(models.ObserverFunc(func(e models.Event) { events = append(events, e) })),
	)

	if err := rl.Wait(context.Background(), 3); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(slept) != 1 || slept[0] != 5*time.Second {
		t.Fatalf("slept %v, want [5s]", slept)
	}
	if len(events) != 1 || events[0].Type != models.EventRateLimit {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Fields["request"] != 3 {
		t.Errorf("request field = %v", events[0].Fields["request"])
	}
}

func TestWaitHonoursCancellation(t *testing.T) {
	rl := NewRateLimiter(DefaultConfig(), quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Wait(ctx, 1); err == nil {
		t.Fatal("expected context error")
	}
	if rl.RequestsIssued() != 1 {
		t.Fatalf("delay computation should still be counted, got %d", rl.RequestsIssued())
	}
}

func TestAchievedRate(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	rl := NewRateLimiter(DefaultConfig(), quietLogger(), WithClock(clock))

	rl.ComputeDelay(1)
	if got := rl.AchievedRate(); got != 60 {
		t.Fatalf("rate with zero elapsed = %v, want 60 (elapsed floored to 1s)", got)
	}

	now = now.Add(30 * time.Second)
	rl.ComputeDelay(2)
	rl.ComputeDelay(3)
	if got := rl.AchievedRate(); got != 6 {
		t.Fatalf("rate = %v, want 6", got)
	}
}

func TestAcquireCountsOutbound(t *testing.T) {
	rl := NewRateLimiter(Config{RequestsPerMinute: 12, MinDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}, quietLogger())
	for i := 0; i < 3; i++ {
		if err := rl.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire: %v", err)
		}
	}
	if rl.Outbound() != 3 {
		t.Fatalf("Outbound = %d", rl.Outbound())
	}
	if rl.RequestsIssued() != 0 {
		t.Fatalf("Acquire must not touch the delay counter, got %d", rl.RequestsIssued())
	}
}

func TestJitterClosedInterval(t *testing.T) {
	if got := Jitter(lowest, 1250); got != -1250 {
		t.Errorf("lowest draw = %d", got)
	}
	if got := Jitter(highest, 1250); got != 1250 {
		t.Errorf("highest draw = %d", got)
	}
	if got := Jitter(nil, 0); got != 0 {
		t.Errorf("zero spread = %d", got)
	}
}

func TestExponentialBackoff(t *testing.T) {
	if d := ExponentialBackoff(middle, 0, time.Second, 10*time.Second); d != time.Second {
		t.Errorf("attempt 0 = %v", d)
	}
	if d := ExponentialBackoff(middle, 2, time.Second, 10*time.Second); d != 4*time.Second {
		t.Errorf("attempt 2 = %v", d)
	}
	if d := ExponentialBackoff(middle, 10, time.Second, 10*time.Second); d != 10*time.Second {
		t.Errorf("capped = %v", d)
	}
}
