package storage

import (
	"fmt"
	"strings"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/bl4ck0w1/shadowscan/pkg/models"
)

const initialCapacity = 100

// ResultStore is the append-only result collection of one scan. Appends come
// from the scan goroutine while an interrupt handler may read a snapshot, so
// access is guarded.
type ResultStore struct {
	mu      sync.RWMutex
	results []models.DiscoveryResult
	found   int
}

func NewResultStore() *ResultStore {
	return &ResultStore{results: make([]models.DiscoveryResult, 0, initialCapacity)}
}

// Append records r. Capacity doubles when exhausted.
func (s *ResultStore) Append(r models.DiscoveryResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.results) == cap(s.results) {
		grown := make([]models.DiscoveryResult, len(s.results), max(initialCapacity, 2*cap(s.results)))
		copy(grown, s.results)
		s.results = grown
	}
	s.results = append(s.results, r)
	if r.Found {
		s.found++
	}
}

// Results returns a copy in insertion order.
func (s *ResultStore) Results() []models.DiscoveryResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.DiscoveryResult, len(s.results))
	copy(out, s.results)
	return out
}

func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

func (s *ResultStore) Cap() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cap(s.results)
}

func (s *ResultStore) Found() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.found
}

// FoundBySource counts found entries per discovery source.
func (s *ResultStore) FoundBySource() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, r := range s.results {
		if r.Found {
			counts[r.Source]++
		}
	}
	return counts
}

// Fingerprint hashes the ordered records. Two runs that observed the same
// outcomes in the same order share a fingerprint.
func (s *ResultStore) Fingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := xxh3.New()
	for _, r := range s.results {
		h.WriteString(strings.Join(r.Record(), ","))
		h.WriteString("\n")
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
