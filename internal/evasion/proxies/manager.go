package proxies

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/shadowscan/internal/discovery"
	"github.com/bl4ck0w1/shadowscan/internal/evasion/fingerprinting"
)

type Proxy struct {
	URL          string
	Latency      time.Duration
	ExitIP       string
	LastChecked  time.Time
	FailureCount int
	LastError    string
}

// ProxyManager picks the first configured proxy whose exit verifies. A scan
// uses a single transport for its whole lifetime.
type ProxyManager struct {
	proxies     []*Proxy
	transport   TransportConfig
	verifier    VerifierConfig
	verifyOpts  []VerifierOption
	fingerprint *fingerprinting.TLSFingerprinter
	logger      *logrus.Logger

	mu     sync.RWMutex
	active *Proxy
}

func NewProxyManager(urls []string, transport TransportConfig, verifier VerifierConfig, logger *logrus.Logger, opts ...VerifierOption) *ProxyManager {
	if logger == nil {
		logger = logrus.New()
	}
	if len(urls) == 0 {
		urls = []string{transport.ProxyURL}
	}
	pm := &ProxyManager{
		transport:   transport,
		verifier:    verifier,
		verifyOpts:  opts,
		fingerprint: fingerprinting.NewTLSFingerprinter(logger),
		logger:      logger,
	}
	for _, u := range urls {
		pm.proxies = append(pm.proxies, &Proxy{URL: u})
	}
	return pm
}

// Select builds a client per candidate and returns the first that passes
// verification. With verification disabled the first candidate that builds
// is returned unchecked.
func (pm *ProxyManager) Select(ctx context.Context, verify bool) (*http.Client, *Proxy, error) {
	var errs []error
	for _, p := range pm.proxies {
		cfg := pm.transport
		cfg.ProxyURL = p.URL

		client, err := NewHTTPClient(cfg, pm.fingerprint, pm.logger)
		if err != nil {
			pm.markFailure(p, err)
			errs = append(errs, fmt.Errorf("%s: %w", p.URL, err))
			continue
		}
		if !verify {
			pm.setActive(p)
			return client, p, nil
		}

		start := time.Now()
		ip, err := NewVerifier(client, pm.verifier, pm.logger, pm.verifyOpts...).Verify(ctx)
		if err != nil {
			pm.markFailure(p, err)
			errs = append(errs, fmt.Errorf("%s: %w", p.URL, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		pm.mu.Lock()
		p.Latency = time.Since(start)
		p.ExitIP = ip
		p.LastChecked = time.Now()
		pm.mu.Unlock()
		pm.setActive(p)
		return client, p, nil
	}

	err := errors.Join(errs...)
	var tue *discovery.TransportUnavailableError
	if errors.As(err, &tue) {
		return nil, nil, err
	}
	return nil, nil, &discovery.TransportUnavailableError{Attempts: len(pm.proxies), Err: err}
}

func (pm *ProxyManager) Active() *Proxy {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.active
}

func (pm *ProxyManager) GetStats() map[string]interface{} {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	details := make([]map[string]interface{}, 0, len(pm.proxies))
	for _, p := range pm.proxies {
		details = append(details, map[string]interface{}{
			"url":        redactRaw(p.URL),
			"failures":   p.FailureCount,
			"last_error": p.LastError,
			"exit_ip":    p.ExitIP,
			"latency":    p.Latency.String(),
		})
	}
	active := ""
	if pm.active != nil {
		active = redactRaw(pm.active.URL)
	}
	return map[string]interface{}{
		"candidates": len(pm.proxies),
		"active":     active,
		"proxies":    details,
	}
}

func (pm *ProxyManager) setActive(p *Proxy) {
	pm.mu.Lock()
	pm.active = p
	pm.mu.Unlock()
	pm.logger.WithField("proxy", redactRaw(p.URL)).Debug("Proxy selected")
}

func (pm *ProxyManager) markFailure(p *Proxy, err error) {
	pm.mu.Lock()
	p.FailureCount++
	p.LastError = err.Error()
	p.LastChecked = time.Now()
	pm.mu.Unlock()
}
