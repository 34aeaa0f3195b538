package proxies

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/shadowscan/internal/discovery"
	"github.com/bl4ck0w1/shadowscan/internal/evasion/timing"
)

const DefaultCheckURL = "https://check.torproject.org/api/ip"

var ErrNotAnonymized = errors.New("exit is not a Tor relay")

type VerifierConfig struct {
	CheckURL    string
	Attempts    int
	Timeout     time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
	RequireTor  bool
	UserAgent   string
}

func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		CheckURL:    DefaultCheckURL,
		Attempts:    3,
		Timeout:     10 * time.Second,
		BackoffBase: 3 * time.Second,
		BackoffMax:  30 * time.Second,
		RequireTor:  true,
		UserAgent:   "shadowscan/1.0",
	}
}

// checkResponse is the body served by check.torproject.org/api/ip.
type checkResponse struct {
	IsTor bool   `json:"IsTor"`
	IP    string `json:"IP"`
}

// Verifier confirms the transport exits through the anonymizing network
// before any probe is sent.
type Verifier struct {
	client    discovery.HTTPDoer
	cfg       VerifierConfig
	reconnect func(ctx context.Context) error
	sleep     timing.Sleeper
	source    timing.JitterSource
	logger    *logrus.Logger
}

type VerifierOption func(*Verifier)

// WithReconnect runs hook between failed attempts, e.g. to start a local
// Tor daemon.
func WithReconnect(hook func(ctx context.Context) error) VerifierOption {
	return func(v *Verifier) { v.reconnect = hook }
}

func WithVerifierSleeper(s timing.Sleeper) VerifierOption {
	return func(v *Verifier) {
		if s != nil {
			v.sleep = s
		}
	}
}

func NewVerifier(client discovery.HTTPDoer, cfg VerifierConfig, logger *logrus.Logger, opts ...VerifierOption) *Verifier {
	if logger == nil {
		logger = logrus.New()
	}
	def := DefaultVerifierConfig()
	if cfg.CheckURL == "" {
		cfg.CheckURL = def.CheckURL
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = max(def.BackoffMax, cfg.BackoffBase)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	v := &Verifier{
		client: client,
		cfg:    cfg,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		source: timing.CryptoSource(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the exit up to Attempts times. Exhausting the attempts
// returns a TransportUnavailableError.
func (v *Verifier) Verify(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= v.cfg.Attempts; attempt++ {
		ip, err := v.check(ctx)
		if err == nil {
			v.logger.WithField("exit_ip", ip).Info("Anonymizing transport verified")
			return ip, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		v.logger.WithField("attempt", attempt).Warnf("Transport check failed: %v", err)
		if attempt == v.cfg.Attempts {
			break
		}

		if v.reconnect != nil {
			if err := v.reconnect(ctx); err != nil {
				v.logger.Warnf("Reconnect hook failed: %v", err)
			}
		}
		if err := v.sleep(ctx, timing.ExponentialBackoff(v.source, attempt-1, v.cfg.BackoffBase, v.cfg.BackoffMax)); err != nil {
			lastErr = err
			break
		}
	}
	return "", &discovery.TransportUnavailableError{Attempts: v.cfg.Attempts, Err: lastErr}
}

func (v *Verifier) check(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.CheckURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", v.cfg.UserAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", &discovery.TransportError{Op: http.MethodGet, URL: v.cfg.CheckURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &discovery.TransportError{Op: http.MethodGet, URL: v.cfg.CheckURL, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read check response: %w", err)
	}

	var cr checkResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", &discovery.ParseError{Bytes: len(body), Err: err}
	}
	if v.cfg.RequireTor && !cr.IsTor {
		return cr.IP, fmt.Errorf("%w (exit %s)", ErrNotAnonymized, cr.IP)
	}
	return cr.IP, nil
}

// CommandHook returns a reconnect hook that runs command split on whitespace,
// without a shell. An empty command yields nil.
func CommandHook(command string, logger *logrus.Logger) func(ctx context.Context) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil
	}
	if logger == nil {
		logger = logrus.New()
	}
	return func(ctx context.Context) error {
		logger.WithField("command", command).Info("Running reconnect command")
		out, err := exec.CommandContext(ctx, fields[0], fields[1:]...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("%s: %w: %s", fields[0], err, strings.TrimSpace(string(out)))
		}
		return nil
	}
}
