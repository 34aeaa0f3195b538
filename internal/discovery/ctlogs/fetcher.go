package ctlogs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/shadowscan/internal/discovery"
	"github.com/bl4ck0w1/shadowscan/pkg/models"
)

const (
	DefaultEndpoint     = "https://crt.sh/"
	DefaultTimeout      = 15 * time.Second
	DefaultUserAgent    = "shadowscan/1.0"
	DefaultMaxBodyBytes = 64 << 20
)

type Config struct {
	Endpoint     string
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

func DefaultConfig() Config {
	return Config{
		Endpoint:     DefaultEndpoint,
		Timeout:      DefaultTimeout,
		UserAgent:    DefaultUserAgent,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Fetcher performs the single certificate transparency lookup of a scan.
type Fetcher struct {
	client   discovery.HTTPDoer
	pacer    discovery.Pacer
	cfg      Config
	logger   *logrus.Logger
	observer models.Observer
}

func NewFetcher(client discovery.HTTPDoer, pacer discovery.Pacer, cfg Config, logger *logrus.Logger, observer models.Observer) *Fetcher {
	if logger == nil {
		logger = logrus.New()
	}
	if observer == nil {
		observer = models.NopObserver()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Fetcher{
		client:   client,
		pacer:    pacer,
		cfg:      cfg,
		logger:   logger,
		observer: observer,
	}
}

// QueryURL builds the search URL for domain.
func (f *Fetcher) QueryURL(domain string) string {
	q := url.Values{}
	q.Set("q", domain)
	q.Set("output", "json")
	return f.cfg.Endpoint + "?" + q.Encode()
}

// Query asks the log search endpoint for certificates naming domain and
// returns every extracted hostname containing domain as a found result.
// Failures return an empty slice and a TransportError or ParseError.
func (f *Fetcher) Query(ctx context.Context, domain string) ([]models.DiscoveryResult, error) {
	target := f.QueryURL(domain)

	body, err := f.fetch(ctx, target)
	if err != nil {
		f.logger.WithFields(logrus.Fields{"domain": domain, "url": target}).Debugf("CT lookup failed: %v", err)
		return []models.DiscoveryResult{}, err
	}
	f.logger.WithField("bytes", len(body)).Debug("CT response received")

	parser := NewParser(body)
	results := make([]models.DiscoveryResult, 0)
	for name := range parser.Names() {
		if !strings.Contains(name, domain) {
			continue
		}
		result := models.DiscoveryResult{
			Subdomain:       name,
			Found:           true,
			ResolvedAddress: models.AddressFromCert,
			Source:          models.SourceCT,
		}
		results = append(results, result)

		ev := models.NewEvent(models.EventCTResult, discovery.PhaseCT, "[CT] Found: "+name)
		ev.Result = &result
		f.observer.Notify(ev)
	}
	if err := parser.Err(); err != nil {
		f.logger.WithField("domain", domain).Debugf("CT response unparseable: %v", err)
		return []models.DiscoveryResult{}, err
	}

	f.logger.WithFields(logrus.Fields{
		"domain":  domain,
		"entries": parser.Entries(),
		"found":   len(results),
	}).Info("CT lookup complete")
	f.observer.Notify(models.NewEvent(models.EventPhaseDone, discovery.PhaseCT,
		fmt.Sprintf("Found %d subdomain(s) in CT logs", len(results))).With("found", len(results)))
	return results, nil
}

func (f *Fetcher) fetch(ctx context.Context, target string) ([]byte, error) {
	if f.pacer != nil {
		if err := f.pacer.Acquire(ctx); err != nil {
			return nil, &discovery.TransportError{Op: http.MethodGet, URL: target, Err: err}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &discovery.TransportError{Op: http.MethodGet, URL: target, Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &discovery.TransportError{Op: http.MethodGet, URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &discovery.TransportError{
			Op:  http.MethodGet,
			URL: target,
			Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, &discovery.TransportError{Op: http.MethodGet, URL: target, Err: fmt.Errorf("reading body: %w", err)}
	}
	return body, nil
}
