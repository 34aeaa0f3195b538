package bruteforce

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bl4ck0w1/shadowscan/pkg/models"
)

// stubDoer answers by host. Hosts missing from the map time out.
type stubDoer struct {
	mu       sync.Mutex
	statuses map[string]int
	requests []*http.Request
}

func (s *stubDoer) Do(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	code, ok := s.statuses[req.URL.Host]
	if !ok {
		return nil, context.DeadlineExceeded
	}
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    req,
	}, nil
}

type fakePacer struct {
	acquired int
	waited   []int
	waitErr  error
}

func (p *fakePacer) Acquire(context.Context) error { p.acquired++; return nil }

func (p *fakePacer) Wait(_ context.Context, idx int) error {
	p.waited = append(p.waited, idx)
	return p.waitErr
}

func (p *fakePacer) Elapsed() time.Duration { return 3 * time.Second }

func drain(p *Prober, domain string, words []string) []models.DiscoveryResult {
	var out []models.DiscoveryResult
	for r := range p.Probe(context.Background(), domain, words) {
		out = append(out, r)
	}
	return out
}

func TestProbeClassification(t *testing.T) {
	doer := &stubDoer{statuses: map[string]int{
		"www.example.com":  200,
		"mail.example.com": 301,
		"api.example.com":  404,
		"dev.example.com":  503,
	}}
	pacer := &fakePacer{}
	p := NewProber(doer, pacer, DefaultConfig(), nil, nil)

	got := drain(p, "example.com", []string{"www", "mail", "doesnotexist123", "api", "dev"})

	want := []struct {
		sub   string
		found bool
		code  int
	}{
		{"www.example.com", true, 200},
		{"mail.example.com", true, 301},
		{"doesnotexist123.example.com", false, 0},
		{"api.example.com", false, 404},
		{"dev.example.com", false, 503},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		r := got[i]
		if r.Subdomain != w.sub || r.Found != w.found || r.StatusCode != w.code {
			t.Errorf("result[%d] = %+v, want %s found=%v code=%d", i, r, w.sub, w.found, w.code)
		}
		if r.ResolvedAddress != models.AddressUnknown || r.Source != models.SourceWordlist {
			t.Errorf("result[%d] address/source = %q/%q", i, r.ResolvedAddress, r.Source)
		}
	}

	if !slices.Equal(pacer.waited, []int{2, 3, 4, 5}) {
		t.Errorf("waits = %v, want [2 3 4 5]", pacer.waited)
	}
	if pacer.acquired != 5 {
		t.Errorf("acquired = %d, want 5", pacer.acquired)
	}
	for _, req := range doer.requests {
		if req.Method != http.MethodHead || req.URL.Scheme != "https" {
			t.Errorf("request %s %s", req.Method, req.URL)
		}
		if req.UserAgent() != DefaultUserAgent {
			t.Errorf("user agent = %q", req.UserAgent())
		}
	}
}

func TestProbeIsRepeatable(t *testing.T) {
	doer := &stubDoer{statuses: map[string]int{"www.example.com": 200}}
	p := NewProber(doer, &fakePacer{}, DefaultConfig(), nil, nil)
	words := []string{"www", "missing"}

	seq := p.Probe(context.Background(), "example.com", words)
	var first, second []models.DiscoveryResult
	for r := range seq {
		first = append(first, r)
	}
	for r := range seq {
		second = append(second, r)
	}
	if !slices.Equal(first, second) {
		t.Errorf("first = %+v, second = %+v", first, second)
	}
	if len(doer.requests) != 4 {
		t.Errorf("requests = %d, sequence must not memoize", len(doer.requests))
	}
}

func TestProbeEmptyCandidates(t *testing.T) {
	pacer := &fakePacer{}
	p := NewProber(&stubDoer{}, pacer, DefaultConfig(), nil, nil)

	if got := drain(p, "example.com", nil); len(got) != 0 {
		t.Errorf("got %d results", len(got))
	}
	if pacer.acquired != 0 || len(pacer.waited) != 0 {
		t.Errorf("pacer touched: acquired=%d waited=%v", pacer.acquired, pacer.waited)
	}
}

func TestProbeSingleCandidateNoDelay(t *testing.T) {
	pacer := &fakePacer{}
	p := NewProber(&stubDoer{statuses: map[string]int{"a.example.com": 200}}, pacer, DefaultConfig(), nil, nil)
	drain(p, "example.com", []string{"a"})
	if len(pacer.waited) != 0 {
		t.Errorf("waited %v after the last candidate", pacer.waited)
	}
}

func TestProbeProgressEvents(t *testing.T) {
	words := make([]string, 25)
	for i := range words {
		words[i] = "w" + strings.Repeat("x", i)
	}
	var progress []models.Event
	var results int
	obs := models.ObserverFunc(func(e models.Event) {
		switch e.Type {
		case models.EventProgress:
			progress = append(progress, e)
		case models.EventProbeResult:
			results++
		}
	})
	p := NewProber(&stubDoer{statuses: map[string]int{}}, &fakePacer{}, DefaultConfig(), nil, obs)
	drain(p, "example.com", words)

	if results != 25 {
		t.Errorf("probe_result events = %d", results)
	}
	if len(progress) != 2 {
		t.Fatalf("progress events = %d, want 2", len(progress))
	}
	last := progress[1]
	if last.Fields["tested"] != 20 || last.Fields["total"] != 25 || last.Fields["percent"] != 80.0 {
		t.Errorf("progress fields = %v", last.Fields)
	}
	if last.Fields["elapsed"] != 3*time.Second {
		t.Errorf("elapsed = %v", last.Fields["elapsed"])
	}
}

func TestProbeStopsOnCancellation(t *testing.T) {
	pacer := &fakePacer{waitErr: context.Canceled}
	doer := &stubDoer{statuses: map[string]int{"a.example.com": 200, "b.example.com": 200}}
	p := NewProber(doer, pacer, DefaultConfig(), nil, nil)

	got := drain(p, "example.com", []string{"a", "b"})
	if len(got) != 1 || got[0].Subdomain != "a.example.com" {
		t.Errorf("got %+v", got)
	}
	if len(doer.requests) != 1 {
		t.Errorf("requests = %d, want 1", len(doer.requests))
	}
}

func TestProbeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewProber(&stubDoer{}, &fakePacer{}, DefaultConfig(), nil, nil)
	for range p.Probe(ctx, "example.com", []string{"a"}) {
		t.Fatal("yielded after cancellation")
	}
	if errors.Is(ctx.Err(), context.Canceled) == false {
		t.Fatal("context not cancelled")
	}
}
