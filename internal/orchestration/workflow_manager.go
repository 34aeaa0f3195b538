package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/shadowscan/internal/discovery"
	"github.com/bl4ck0w1/shadowscan/pkg/models"
)

// ScannerFactory builds a fresh scanner, with its own limiter and store, for
// one domain.
type ScannerFactory func(domain string) (*Scanner, error)

type DomainRun struct {
	Domain  string
	Summary models.ScanSummary
	Err     error
}

// WorkflowManager scans several domains one after another, each with an
// independent scanner.
type WorkflowManager struct {
	factory ScannerFactory
	logger  *logrus.Logger

	mu      sync.RWMutex
	current *Scanner
	runs    []DomainRun
}

func NewWorkflowManager(factory ScannerFactory, logger *logrus.Logger) *WorkflowManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &WorkflowManager{factory: factory, logger: logger}
}

// RunAll stops at the first fatal error or cancellation. Other per-domain
// failures are recorded and the next domain starts.
func (wm *WorkflowManager) RunAll(ctx context.Context, domains []string, candidates []string) ([]DomainRun, error) {
	if len(domains) == 0 {
		return nil, &discovery.ConfigurationError{Reason: "no target domains"}
	}

	for i, domain := range domains {
		if err := ctx.Err(); err != nil {
			return wm.Runs(), err
		}

		scanner, err := wm.factory(domain)
		if err != nil {
			return wm.Runs(), fmt.Errorf("build scanner for %s: %w", domain, err)
		}
		wm.mu.Lock()
		wm.current = scanner
		wm.mu.Unlock()

		wm.logger.WithFields(logrus.Fields{
			"domain":   domain,
			"position": i + 1,
			"of":       len(domains),
		}).Info("Starting domain scan")

		summary, err := scanner.Run(ctx, domain, candidates)
		wm.record(DomainRun{Domain: domain, Summary: summary, Err: err})

		switch {
		case err == nil:
		case discovery.IsFatal(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return wm.Runs(), err
		default:
			wm.logger.WithField("domain", domain).Errorf("Domain scan failed: %v", err)
		}
	}
	return wm.Runs(), nil
}

// Current returns the scanner of the domain in progress, or nil.
func (wm *WorkflowManager) Current() *Scanner {
	wm.mu.RLock()
	defer wm.mu.RUnlock()
	return wm.current
}

func (wm *WorkflowManager) Runs() []DomainRun {
	wm.mu.RLock()
	defer wm.mu.RUnlock()
	out := make([]DomainRun, len(wm.runs))
	copy(out, wm.runs)
	return out
}

func (wm *WorkflowManager) GetStats() map[string]interface{} {
	runs := wm.Runs()
	found, failed := 0, 0
	for _, r := range runs {
		found += r.Summary.Found
		if r.Err != nil {
			failed++
		}
	}
	return map[string]interface{}{
		"domains_scanned": len(runs),
		"domains_failed":  failed,
		"total_found":     found,
	}
}

func (wm *WorkflowManager) record(run DomainRun) {
	wm.mu.Lock()
	wm.runs = append(wm.runs, run)
	wm.mu.Unlock()
}
