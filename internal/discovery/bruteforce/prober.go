package bruteforce

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/shadowscan/internal/discovery"
	"github.com/bl4ck0w1/shadowscan/pkg/models"
)

const (
	DefaultTimeout       = 8 * time.Second
	DefaultUserAgent     = "shadowscan/1.0"
	DefaultProgressEvery = 10
)

type Config struct {
	Timeout       time.Duration
	UserAgent     string
	Scheme        string
	ProgressEvery int
}

func DefaultConfig() Config {
	return Config{
		Timeout:       DefaultTimeout,
		UserAgent:     DefaultUserAgent,
		Scheme:        "https",
		ProgressEvery: DefaultProgressEvery,
	}
}

// Prober sends one HEAD request per wordlist candidate.
type Prober struct {
	client   discovery.HTTPDoer
	pacer    discovery.Pacer
	cfg      Config
	logger   *logrus.Logger
	observer models.Observer
}

func NewProber(client discovery.HTTPDoer, pacer discovery.Pacer, cfg Config, logger *logrus.Logger, observer models.Observer) *Prober {
	if logger == nil {
		logger = logrus.New()
	}
	if observer == nil {
		observer = models.NopObserver()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	return &Prober{
		client:   client,
		pacer:    pacer,
		cfg:      cfg,
		logger:   logger,
		observer: observer,
	}
}

// Probe yields one result per candidate in input order. Requests are spaced
// by the pacer between consecutive candidates, never after the last one.
// Iteration stops early when ctx is cancelled.
func (p *Prober) Probe(ctx context.Context, domain string, candidates []string) iter.Seq[models.DiscoveryResult] {
	return func(yield func(models.DiscoveryResult) bool) {
		total := len(candidates)
		found := 0

		for i, word := range candidates {
			if ctx.Err() != nil {
				return
			}

			result := p.probeOne(ctx, word+"."+domain)
			if ctx.Err() != nil && result.StatusCode == 0 {
				// interrupted mid-request, not a real miss
				return
			}
			if result.Found {
				found++
			}
			p.notifyResult(result)

			if !yield(result) {
				return
			}

			tested := i + 1
			if tested%p.cfg.ProgressEvery == 0 {
				p.notifyProgress(tested, total, found)
			}
			if tested < total && p.pacer != nil {
				if err := p.pacer.Wait(ctx, tested+1); err != nil {
					return
				}
			}
		}
	}
}

func (p *Prober) probeOne(ctx context.Context, subdomain string) models.DiscoveryResult {
	result := models.DiscoveryResult{
		Subdomain:       subdomain,
		ResolvedAddress: models.AddressUnknown,
		Source:          models.SourceWordlist,
	}
	target := p.cfg.Scheme + "://" + subdomain

	code, err := p.head(ctx, target)
	if err != nil {
		p.logger.WithFields(logrus.Fields{"subdomain": subdomain}).Debugf("probe failed: %v", err)
		return result
	}
	result.StatusCode = code
	result.Found = code < 400
	return result
}

func (p *Prober) head(ctx context.Context, target string) (int, error) {
	if p.pacer != nil {
		if err := p.pacer.Acquire(ctx); err != nil {
			return 0, &discovery.TransportError{Op: http.MethodHead, URL: target, Err: err}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return 0, &discovery.TransportError{Op: http.MethodHead, URL: target, Err: err}
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, &discovery.TransportError{Op: http.MethodHead, URL: target, Err: err}
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (p *Prober) notifyResult(r models.DiscoveryResult) {
	var msg string
	switch {
	case r.Found:
		msg = fmt.Sprintf("[+] FOUND: %s (HTTP %d)", r.Subdomain, r.StatusCode)
	case r.StatusCode > 0:
		msg = fmt.Sprintf("[-] %s (HTTP %d)", r.Subdomain, r.StatusCode)
	default:
		msg = fmt.Sprintf("[-] %s (no response)", r.Subdomain)
	}
	ev := models.NewEvent(models.EventProbeResult, discovery.PhaseWordlist, msg)
	ev.Result = &r
	p.observer.Notify(ev)
}

func (p *Prober) notifyProgress(tested, total, found int) {
	var elapsed time.Duration
	if p.pacer != nil {
		elapsed = p.pacer.Elapsed()
	}
	percent := float64(tested) * 100 / float64(total)
	ev := models.NewEvent(models.EventProgress, discovery.PhaseWordlist,
		fmt.Sprintf("Progress: %d/%d (%.1f%%) | Found: %d | Elapsed: %s", tested, total, percent, found, elapsed.Round(time.Second))).
		With("tested", tested).
		With("total", total).
		With("percent", percent).
		With("found", found).
		With("elapsed", elapsed)
	p.observer.Notify(ev)
}
