package discovery

import (
	"context"
	"net/http"
	"time"
)

const (
	PhaseCT       = "certificate_transparency"
	PhaseWordlist = "wordlist"
	PhaseSummary  = "summary"
)

// HTTPDoer is the injected transport. *http.Client satisfies it.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Pacer spaces outbound requests of a single scan.
type Pacer interface {
	Acquire(ctx context.Context) error
	Wait(ctx context.Context, requestIndex int) error
	Elapsed() time.Duration
}
