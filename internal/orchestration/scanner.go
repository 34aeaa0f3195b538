package orchestration

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/shadowscan/internal/discovery"
	"github.com/bl4ck0w1/shadowscan/internal/storage"
	"github.com/bl4ck0w1/shadowscan/pkg/models"
)

type State int

const (
	StateIdle State = iota
	StateLogging
	StateWordlist
	StateSummarizing
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLogging:
		return "logging"
	case StateWordlist:
		return "wordlist"
	case StateSummarizing:
		return "summarizing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var ErrAlreadyRun = errors.New("scanner has already run")

type CTQuerier interface {
	Query(ctx context.Context, domain string) ([]models.DiscoveryResult, error)
}

type WordlistProber interface {
	Probe(ctx context.Context, domain string, candidates []string) iter.Seq[models.DiscoveryResult]
}

// Limiter is the per-scan request pacer plus the counters the summary reads.
type Limiter interface {
	discovery.Pacer
	RequestsIssued() int64
	Outbound() int64
	AchievedRate() float64
	TargetRate() int
	StartedAt() time.Time
	BaseDelay() time.Duration
}

// Gate decides whether the wordlist phase runs after the CT lookup.
type Gate interface {
	Proceed(ctx context.Context, soFar models.ScanSummary) bool
}

type GateFunc func(ctx context.Context, soFar models.ScanSummary) bool

func (f GateFunc) Proceed(ctx context.Context, soFar models.ScanSummary) bool { return f(ctx, soFar) }

// AlwaysProceed is the non-interactive gate.
var AlwaysProceed Gate = GateFunc(func(context.Context, models.ScanSummary) bool { return true })

// Sink receives the finished scan. Delivery happens once.
type Sink interface {
	Deliver(ctx context.Context, summary models.ScanSummary, results []models.DiscoveryResult) error
}

// Scanner runs one discovery scan: a single CT lookup, then the wordlist
// pass, then the summary. It is strictly sequential and single use.
type Scanner struct {
	ct       CTQuerier
	prober   WordlistProber
	limiter  Limiter
	store    *storage.ResultStore
	gate     Gate
	sink     Sink
	logger   *logrus.Logger
	observer models.Observer

	mu           sync.RWMutex
	state        State
	domain       string
	wordlistSize int
	wordlistRan  bool
}

func NewScanner(ct CTQuerier, prober WordlistProber, limiter Limiter, gate Gate, sink Sink, logger *logrus.Logger, observer models.Observer) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	if observer == nil {
		observer = models.NopObserver()
	}
	if gate == nil {
		gate = AlwaysProceed
	}
	return &Scanner{
		ct:       ct,
		prober:   prober,
		limiter:  limiter,
		store:    storage.NewResultStore(),
		gate:     gate,
		sink:     sink,
		logger:   logger,
		observer: observer,
		state:    StateIdle,
	}
}

// Run scans domain. An empty candidate list aborts before any request. A
// cancelled ctx stops the scan at the next request or delay; the partial
// summary is returned with the context error and nothing is delivered.
func (s *Scanner) Run(ctx context.Context, domain string, candidates []string) (models.ScanSummary, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return models.ScanSummary{}, ErrAlreadyRun
	}
	s.domain = domain
	s.wordlistSize = len(candidates)
	s.mu.Unlock()

	log := s.logger.WithField("domain", domain)

	if len(candidates) == 0 {
		err := &discovery.ConfigurationError{Reason: "candidate list is empty"}
		s.setState(StateAborted)
		s.notifyError("", err)
		log.Error(err)
		return models.ScanSummary{}, err
	}

	s.setState(StateLogging)
	s.observer.Notify(models.NewEvent(models.EventPhaseStarted, discovery.PhaseCT,
		"Querying Certificate Transparency logs for "+domain))

	ctResults, err := s.ct.Query(ctx, domain)
	for _, r := range ctResults {
		s.store.Append(r)
	}
	if err != nil {
		log.Debugf("CT lookup failed, continuing with wordlist: %v", err)
		s.notifyError(discovery.PhaseCT, err)
	}
	if err := s.limiter.Wait(ctx, 1); err != nil {
		return s.abort(ctx, err)
	}

	s.notifyEstimate(len(candidates))
	proceed := s.gate.Proceed(ctx, s.Summary())
	if err := ctx.Err(); err != nil {
		return s.abort(ctx, err)
	}
	if !proceed {
		log.Info("Wordlist phase declined")
		s.observer.Notify(models.NewEvent(models.EventPhaseDone, discovery.PhaseWordlist, "Wordlist scan skipped"))
	} else {
		if err := s.runWordlist(ctx, domain, candidates); err != nil {
			return s.abort(ctx, err)
		}
	}

	s.setState(StateSummarizing)
	summary := s.Summary()
	s.observer.Notify(models.NewEvent(models.EventSummary, discovery.PhaseSummary,
		fmt.Sprintf("Found %d of %d tested", summary.Found, summary.Total)).
		With("found", summary.Found).
		With("total", summary.Total).
		With("requests", summary.TotalRequests).
		With("achieved_rate", summary.AchievedRate))

	if s.sink != nil {
		if err := s.sink.Deliver(ctx, summary, s.store.Results()); err != nil {
			s.setState(StateDone)
			s.notifyError(discovery.PhaseSummary, err)
			return summary, fmt.Errorf("deliver results: %w", err)
		}
	}

	s.setState(StateDone)
	log.WithFields(logrus.Fields{
		"found":    summary.Found,
		"total":    summary.Total,
		"requests": summary.TotalRequests,
		"duration": summary.Duration.Round(time.Second),
	}).Info("Scan completed")
	return summary, nil
}

func (s *Scanner) runWordlist(ctx context.Context, domain string, candidates []string) error {
	s.setState(StateWordlist)
	s.mu.Lock()
	s.wordlistRan = true
	s.mu.Unlock()

	s.observer.Notify(models.NewEvent(models.EventPhaseStarted, discovery.PhaseWordlist,
		fmt.Sprintf("Starting wordlist scan (%d candidates)", len(candidates))))

	for r := range s.prober.Probe(ctx, domain, candidates) {
		s.store.Append(r)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.observer.Notify(models.NewEvent(models.EventPhaseDone, discovery.PhaseWordlist,
		fmt.Sprintf("Wordlist scan complete (%d tested)", len(candidates))))
	return nil
}

func (s *Scanner) abort(ctx context.Context, err error) (models.ScanSummary, error) {
	s.setState(StateAborted)
	summary := s.Summary()
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	s.notifyError("", err)
	s.logger.WithField("domain", summary.Domain).Warnf("Scan interrupted: %v", err)
	return summary, fmt.Errorf("scan interrupted: %w", err)
}

// Summary computes the current view of the scan. It is safe to call while
// Run is in progress.
func (s *Scanner) Summary() models.ScanSummary {
	s.mu.RLock()
	domain, size, ran := s.domain, s.wordlistSize, s.wordlistRan
	s.mu.RUnlock()

	start := s.limiter.StartedAt()
	elapsed := s.limiter.Elapsed()
	return models.ScanSummary{
		Domain:        domain,
		StartTime:     start,
		EndTime:       start.Add(elapsed),
		Duration:      elapsed,
		TotalRequests: s.limiter.Outbound(),
		DelaysApplied: s.limiter.RequestsIssued(),
		AchievedRate:  s.limiter.AchievedRate(),
		TargetRate:    s.limiter.TargetRate(),
		WordlistSize:  size,
		WordlistRan:   ran,
		Found:         s.store.Found(),
		Total:         s.store.Len(),
		FoundBySource: s.store.FoundBySource(),
		Fingerprint:   s.store.Fingerprint(),
	}
}

// Results returns a snapshot of everything recorded so far.
func (s *Scanner) Results() []models.DiscoveryResult {
	return s.store.Results()
}

func (s *Scanner) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Scanner) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Scanner) notifyError(phase string, err error) {
	ev := models.NewEvent(models.EventError, phase, err.Error())
	ev.Err = err
	s.observer.Notify(ev)
}

func (s *Scanner) notifyEstimate(n int) {
	estimate := time.Duration(n) * s.limiter.BaseDelay()
	s.observer.Notify(models.NewEvent(models.EventEstimate, discovery.PhaseWordlist,
		fmt.Sprintf("Estimated time for %d tests: %.1f minutes", n, estimate.Minutes())).
		With("tests", n).
		With("estimate", estimate))
}
