package timing

import (
	"crypto/rand"
	"math/big"
	mrand "math/rand"
	"time"
)

// JitterSource draws uniform integers in [0, n).
type JitterSource interface {
	Int63n(n int64) int64
}

type cryptoSource struct{}

func (cryptoSource) Int63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	r, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return mrand.Int63n(n)
	}
	return r.Int64()
}

func CryptoSource() JitterSource { return cryptoSource{} }

// Jitter returns a value drawn uniformly from the closed interval [-spread, +spread].
func Jitter(src JitterSource, spread int64) int64 {
	if spread <= 0 {
		return 0
	}
	if src == nil {
		src = cryptoSource{}
	}
	return src.Int63n(2*spread+1) - spread
}

// ExponentialBackoff doubles baseDelay per attempt, capped at maxDelay, with up to
// 30% jitter either way.
func ExponentialBackoff(src JitterSource, attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if baseDelay <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	delay := baseDelay * time.Duration(1<<uint(attempt))
	if maxDelay > 0 && (delay > maxDelay || delay <= 0) {
		delay = maxDelay
	}
	spread := int64(float64(delay) * 0.3)
	delay += time.Duration(Jitter(src, spread))
	if delay < 0 {
		delay = 0
	}
	return delay
}
