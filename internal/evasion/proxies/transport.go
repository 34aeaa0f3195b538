package proxies

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	xproxy "golang.org/x/net/proxy"

	"github.com/bl4ck0w1/shadowscan/internal/evasion/fingerprinting"
)

const DefaultProxyURL = "socks5h://127.0.0.1:9050"

type TransportConfig struct {
	// ProxyURL selects socks5/socks5h or http/https proxying. Empty means a
	// direct connection.
	ProxyURL string
	// InsecureSkipVerify disables certificate checks. It suits lab targets
	// with self-signed certificates and must stay off against production.
	InsecureSkipVerify  bool
	Fingerprint         string
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
}

func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ProxyURL:            DefaultProxyURL,
		InsecureSkipVerify:  true,
		DialTimeout:         10 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// NewHTTPClient builds the client every scan request goes through. Redirects
// are not followed so a 3xx is reported as is.
func NewHTTPClient(cfg TransportConfig, fp *fingerprinting.TLSFingerprinter, logger *logrus.Logger) (*http.Client, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.TLSHandshakeTimeout <= 0 {
		cfg.TLSHandshakeTimeout = 10 * time.Second
	}

	tr := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
	}
	direct := &net.Dialer{Timeout: cfg.DialTimeout}
	dial := fingerprinting.DialFunc(direct.DialContext)

	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.ProxyURL, err)
		}
		switch strings.ToLower(u.Scheme) {
		case "socks5", "socks5h":
			var auth *xproxy.Auth
			if u.User != nil {
				pw, _ := u.User.Password()
				auth = &xproxy.Auth{User: u.User.Username(), Password: pw}
			}
			d, err := xproxy.SOCKS5("tcp", u.Host, auth, direct)
			if err != nil {
				return nil, fmt.Errorf("socks5 dialer: %w", err)
			}
			cd, ok := d.(xproxy.ContextDialer)
			if !ok {
				return nil, fmt.Errorf("socks5 dialer does not support contexts")
			}
			dial = cd.DialContext
			tr.DialContext = dial
		case "http", "https":
			tr.Proxy = http.ProxyURL(u)
			tr.DialContext = dial
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
		logger.WithField("proxy", redact(u)).Info("Routing requests through proxy")
	} else {
		tr.DialContext = dial
		logger.Warn("No proxy configured, requests leave from this host directly")
	}

	if cfg.Fingerprint != fingerprinting.FingerprintNone {
		if tr.Proxy != nil {
			return nil, fmt.Errorf("TLS fingerprinting is not supported with HTTP proxies")
		}
		if fp == nil {
			fp = fingerprinting.NewTLSFingerprinter(logger)
		}
		dialTLS, err := fp.DialTLSContext(cfg.Fingerprint, dial, cfg.InsecureSkipVerify)
		if err != nil {
			return nil, err
		}
		tr.DialTLSContext = dialTLS
	}

	return &http.Client{
		Transport: tr,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

func redact(u *url.URL) string {
	if u.User == nil {
		return u.String()
	}
	cp := *u
	cp.User = url.User(u.User.Username())
	return cp.String()
}

func redactRaw(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	return redact(u)
}
