package timing

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/bl4ck0w1/shadowscan/pkg/models"
)

const (
	DefaultRequestsPerMinute = 12
	DefaultMinDelay          = 4000 * time.Millisecond
	DefaultMaxDelay          = 8000 * time.Millisecond
	DefaultJitterFraction    = 0.25
)

type Config struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	MinDelay          time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay          time.Duration `yaml:"max_delay" json:"max_delay"`
	JitterFraction    float64       `yaml:"jitter_fraction" json:"jitter_fraction"`
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: DefaultRequestsPerMinute,
		MinDelay:          DefaultMinDelay,
		MaxDelay:          DefaultMaxDelay,
		JitterFraction:    DefaultJitterFraction,
	}
}

func (c Config) normalize() Config {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if c.MinDelay <= 0 {
		c.MinDelay = DefaultMinDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	if c.JitterFraction < 0 {
		c.JitterFraction = 0
	} else if c.JitterFraction > 1 {
		c.JitterFraction = 1
	}
	return c
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RateLimiter paces a single sequential scan. It is owned by one engine and is
// not shared across scans.
type RateLimiter struct {
	cfg      Config
	logger   *logrus.Logger
	observer models.Observer
	source   JitterSource
	sleep    Sleeper
	now      func() time.Time
	budget   *rate.Limiter

	start    time.Time
	issued   atomic.Int64
	outbound atomic.Int64
}

type Option func(*RateLimiter)

func WithJitterSource(src JitterSource) Option {
	return func(rl *RateLimiter) {
		if src != nil {
			rl.source = src
		}
	}
}

func WithSleeper(s Sleeper) Option {
	return func(rl *RateLimiter) {
		if s != nil {
			rl.sleep = s
		}
	}
}

func WithObserver(o models.Observer) Option {
	return func(rl *RateLimiter) {
		if o != nil {
			rl.observer = o
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(rl *RateLimiter) {
		if now != nil {
			rl.now = now
		}
	}
}

// WithBudget replaces the hard request budget, which defaults to one request
// per MinDelay.
func WithBudget(l *rate.Limiter) Option {
	return func(rl *RateLimiter) {
		if l != nil {
			rl.budget = l
		}
	}
}

func NewRateLimiter(cfg Config, logger *logrus.Logger, opts ...Option) *RateLimiter {
	if logger == nil {
		logger = logrus.New()
	}
	cfg = cfg.normalize()
	rl := &RateLimiter{
		cfg:      cfg,
		logger:   logger,
		observer: models.NopObserver(),
		source:   CryptoSource(),
		sleep:    sleepCtx,
		now:      time.Now,
		budget:   rate.NewLimiter(rate.Every(cfg.MinDelay), 1),
	}
	for _, opt := range opts {
		opt(rl)
	}
	rl.start = rl.now()
	return rl
}

func (rl *RateLimiter) BaseDelay() time.Duration {
	return time.Minute / time.Duration(rl.cfg.RequestsPerMinute)
}

// ComputeDelay returns the pause to take after request requestIndex and counts
// it as one issued request. The result always lies within [MinDelay, MaxDelay].
func (rl *RateLimiter) ComputeDelay(requestIndex int) time.Duration {
	rl.issued.Add(1)

	baseMs := int64(60000 / rl.cfg.RequestsPerMinute)
	spread := int64(float64(baseMs) * rl.cfg.JitterFraction)
	d := time.Duration(baseMs+Jitter(rl.source, spread)) * time.Millisecond

	if d < rl.cfg.MinDelay {
		d = rl.cfg.MinDelay
	}
	if d > rl.cfg.MaxDelay {
		d = rl.cfg.MaxDelay
	}

	rl.logger.WithFields(logrus.Fields{
		"request":  requestIndex,
		"delay_ms": d.Milliseconds(),
	}).Debug("computed request delay")
	return d
}

// Wait computes the delay for requestIndex and blocks for exactly that long.
func (rl *RateLimiter) Wait(ctx context.Context, requestIndex int) error {
	d := rl.ComputeDelay(requestIndex)

	ev := models.NewEvent(models.EventRateLimit, "", fmt.Sprintf("Rate limit: %.1f sec (req #%d)", d.Seconds(), requestIndex)).
		With("delay_ms", d.Milliseconds()).
		With("request", requestIndex)
	if rl.Elapsed() >= time.Second {
		ev = ev.With("current_rate", rl.AchievedRate())
	}
	rl.observer.Notify(ev)

	return rl.sleep(ctx, d)
}

// Acquire gates one outbound request against the hard request budget. The
// budget only bites when callers skip the paced delays.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	if err := rl.budget.Wait(ctx); err != nil {
		return err
	}
	rl.outbound.Add(1)
	return nil
}

func (rl *RateLimiter) RequestsIssued() int64 { return rl.issued.Load() }

func (rl *RateLimiter) Outbound() int64 { return rl.outbound.Load() }

func (rl *RateLimiter) TargetRate() int { return rl.cfg.RequestsPerMinute }

func (rl *RateLimiter) Config() Config { return rl.cfg }

func (rl *RateLimiter) StartedAt() time.Time { return rl.start }

func (rl *RateLimiter) Elapsed() time.Duration { return rl.now().Sub(rl.start) }

// AchievedRate is advisory only and never feeds back into ComputeDelay.
func (rl *RateLimiter) AchievedRate() float64 {
	secs := int64(rl.Elapsed() / time.Second)
	if secs < 1 {
		secs = 1
	}
	return float64(rl.issued.Load()*60) / float64(secs)
}
