package fingerprinting

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"

	utls "github.com/refraction-networking/utls"
	"github.com/sirupsen/logrus"
)

const (
	FingerprintNone       = ""
	FingerprintGolang     = "golang"
	FingerprintRandomized = "randomized"
)

// DialFunc opens the raw connection the TLS session runs over, typically the
// proxy dialer.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

type TLSFingerprinter struct {
	fingerprints map[string]utls.ClientHelloID
	logger       *logrus.Logger
	mu           sync.RWMutex
}

func NewTLSFingerprinter(logger *logrus.Logger) *TLSFingerprinter {
	if logger == nil {
		logger = logrus.New()
	}
	tf := &TLSFingerprinter{
		fingerprints: make(map[string]utls.ClientHelloID),
		logger:       logger,
	}
	tf.initializeFingerprints()
	return tf
}

// Only hellos without ALPN are registered: net/http cannot speak h2 over a
// uTLS connection, so the server must not be offered it.
func (tf *TLSFingerprinter) initializeFingerprints() {
	tf.fingerprints[FingerprintGolang] = utls.HelloGolang
	tf.fingerprints[FingerprintRandomized] = utls.HelloRandomizedNoALPN
}

func (tf *TLSFingerprinter) GetFingerprint(name string) (utls.ClientHelloID, error) {
	tf.mu.RLock()
	fp, ok := tf.fingerprints[name]
	tf.mu.RUnlock()
	if !ok {
		return utls.ClientHelloID{}, fmt.Errorf("fingerprint not found: %s (supported: %s)",
			name, strings.Join(tf.GetFingerprintNames(), ", "))
	}
	return fp, nil
}

func (tf *TLSFingerprinter) GetFingerprintNames() []string {
	tf.mu.RLock()
	defer tf.mu.RUnlock()
	names := make([]string, 0, len(tf.fingerprints))
	for name := range tf.fingerprints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DialTLSContext returns a dial function for http.Transport that performs the
// handshake with the named ClientHello over connections opened by dial.
func (tf *TLSFingerprinter) DialTLSContext(fingerprintName string, dial DialFunc, insecure bool) (DialFunc, error) {
	fp, err := tf.GetFingerprint(fingerprintName)
	if err != nil {
		return nil, err
	}
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}

	return func(ctx context.Context, network, address string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			host = address
		}
		rawConn, err := dial(ctx, network, address)
		if err != nil {
			return nil, fmt.Errorf("dial failed: %w", err)
		}
		cfg := &utls.Config{
			ServerName: host,
			// lab use only; production scans must verify certificates
			InsecureSkipVerify: insecure,
			NextProtos:         []string{"http/1.1"},
		}
		uconn := utls.UClient(rawConn, cfg, fp)
		if err := uconn.HandshakeContext(ctx); err != nil {
			_ = rawConn.Close()
			return nil, fmt.Errorf("utls handshake failed: %w", err)
		}
		tf.logger.WithFields(logrus.Fields{"host": host, "fingerprint": fingerprintName}).Debug("TLS session established")
		return uconn, nil
	}, nil
}
