package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/solar-data-aggregation/internal/solar"
)

// MemoryStore is a concurrency-safe in-memory implementation of solar.Store
// and solar.CredentialStore.
type MemoryStore struct {
	mu sync.RWMutex

	// readings ordered by ObservedAt
	readings    []solar.Reading
	credentials []solar.Credential

	// retention configuration
	maxHistory int           // max number of readings kept
	maxAge     time.Duration // optional max age for readings
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		maxHistory: maxHistory,
		maxAge:     maxAge,
	}
}

// SaveReading inserts a reading in observation order and enforces retention.
func (s *MemoryStore) SaveReading(_ context.Context, r solar.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.readings), func(i int) bool {
		return s.readings[i].ObservedAt.After(r.ObservedAt)
	})
	s.readings = append(s.readings, solar.Reading{})
	copy(s.readings[i+1:], s.readings[i:])
	s.readings[i] = r

	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.readings) > s.maxHistory {
		over := len(s.readings) - s.maxHistory
		s.readings = s.readings[over:]
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		i := 0
		for ; i < len(s.readings); i++ {
			if !s.readings[i].ObservedAt.Before(cutoff) {
				break
			}
		}
		if i > 0 {
			s.readings = s.readings[i:]
		}
	}
	return nil
}

// LatestReading returns the most recent reading.
func (s *MemoryStore) LatestReading(_ context.Context) (solar.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.readings) == 0 {
		return solar.Reading{}, solar.ErrNotFound
	}
	return s.readings[len(s.readings)-1], nil
}

// AveragePower averages current power over readings in (from, to].
func (s *MemoryStore) AveragePower(_ context.Context, from, to time.Time) (*float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		sum float64
		n   int
	)
	for _, r := range s.readings {
		if r.ObservedAt.After(from) && !r.ObservedAt.After(to) {
			sum += r.CurrentPowerW
			n++
		}
	}
	if n == 0 {
		return nil, nil
	}
	avg := sum / float64(n)
	return &avg, nil
}

// Buckets groups readings in [from, to) into width-sized buckets.
func (s *MemoryStore) Buckets(_ context.Context, from time.Time, to *time.Time, width time.Duration) ([]solar.HistoryBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return solar.BucketReadings(s.readings, from, to, width), nil
}

// ReadingsBetween returns all readings in [from, to), ascending.
func (s *MemoryStore) ReadingsBetween(_ context.Context, from, to time.Time) ([]solar.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]solar.Reading, 0)
	for _, r := range s.readings {
		if !r.ObservedAt.Before(from) && r.ObservedAt.Before(to) {
			result = append(result, r)
		}
	}
	return result, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// SaveCredential appends an issued credential.
func (s *MemoryStore) SaveCredential(_ context.Context, c solar.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.credentials = append(s.credentials, c)
	return nil
}

// LatestCredential returns the most recently issued credential.
func (s *MemoryStore) LatestCredential(_ context.Context) (solar.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.credentials) == 0 {
		return solar.Credential{}, solar.ErrNotFound
	}
	latest := s.credentials[0]
	for _, c := range s.credentials[1:] {
		if !c.IssuedAt.Before(latest.IssuedAt) {
			latest = c
		}
	}
	return latest, nil
}

// CredentialCount reports how many credentials were ever issued.
func (s *MemoryStore) CredentialCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.credentials)
}

// ReadingCount reports how many readings are held.
func (s *MemoryStore) ReadingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}
