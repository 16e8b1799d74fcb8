// Package local is the in-process cache: one mutex-guarded store holding
// every key type, plus a fan-out broker.
package local

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

const defaultSweep = 30 * time.Second

// Store implements cache.Cache in memory.
type Store struct {
	mu       sync.Mutex
	flags    map[string]time.Time // zero time = no expiry
	values   map[string]string
	hashes   map[string]map[string]int64
	rankings map[string]map[string]float64
	lists    map[string][]string

	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// NewStore creates a Store whose expired flags are swept every interval.
func NewStore(sweep time.Duration) *Store {
	if sweep <= 0 {
		sweep = defaultSweep
	}
	s := &Store{
		flags:    make(map[string]time.Time),
		values:   make(map[string]string),
		hashes:   make(map[string]map[string]int64),
		rankings: make(map[string]map[string]float64),
		lists:    make(map[string][]string),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go s.sweepLoop(sweep)
	return s
}

// Close stops the sweeper.
func (s *Store) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *Store) sweepLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.mu.Lock()
			now := s.now()
			for k, exp := range s.flags {
				if !exp.IsZero() && now.After(exp) {
					delete(s.flags, k)
					delete(s.values, k)
				}
			}
			s.mu.Unlock()
		case <-s.stop:
			return
		}
	}
}

func (s *Store) live(key string) bool {
	exp, ok := s.flags[key]
	if !ok {
		return false
	}
	if !exp.IsZero() && s.now().After(exp) {
		delete(s.flags, key)
		delete(s.values, key)
		return false
	}
	return true
}

// Set stores value under key; ttl <= 0 keeps it until deleted.
func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	s.flags[key] = exp
	s.values[key] = value
	return nil
}

// Exists reports whether key holds any unexpired value.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live(key) {
		return true, nil
	}
	_, h := s.hashes[key]
	_, z := s.rankings[key]
	_, l := s.lists[key]
	return h || z || l, nil
}

// Del removes keys of any type.
func (s *Store) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.flags, k)
		delete(s.values, k)
		delete(s.hashes, k)
		delete(s.rankings, k)
		delete(s.lists, k)
	}
	return nil
}

func (s *Store) HIncrBy(_ context.Context, key, field string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]int64)
		s.hashes[key] = h
	}
	h[field] += n
	return h[field], nil
}

func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.hashes[key]))
	for f, n := range s.hashes[key] {
		out[f] = strconv.FormatInt(n, 10)
	}
	return out, nil
}

func (s *Store) ZAdd(_ context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.rankings[key]
	if !ok {
		z = make(map[string]float64)
		s.rankings[key] = z
	}
	z[member] = score
	return nil
}

// ordered lists members the way ZREVRANGE does: score descending, then
// member descending.
func ordered(z map[string]float64) []string {
	out := make([]string, 0, len(z))
	for m := range z {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if z[out[i]] != z[out[j]] {
			return z[out[i]] > z[out[j]]
		}
		return out[i] > out[j]
	})
	return out
}

func (s *Store) ZTop(_ context.Context, key string, n int64) ([]string, []float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z := s.rankings[key]
	members := ordered(z)
	if n >= 0 && int64(len(members)) > n {
		members = members[:n]
	}
	scores := make([]float64, len(members))
	for i, m := range members {
		scores[i] = z[m]
	}
	return members, scores, nil
}

func (s *Store) ZRevRank(_ context.Context, key, member string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z := s.rankings[key]
	if _, ok := z[member]; !ok {
		return -1, nil
	}
	for i, m := range ordered(z) {
		if m == member {
			return int64(i), nil
		}
	}
	return -1, nil
}

func (s *Store) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rankings[key])), nil
}

// PushCapped prepends value and keeps at most max entries.
func (s *Store) PushCapped(_ context.Context, key, value string, max int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := append([]string{value}, s.lists[key]...)
	if max > 0 && int64(len(l)) > max {
		l = l[:max]
	}
	s.lists[key] = l
	return nil
}

// LRange follows Redis semantics for non-negative start and stop; a
// negative stop means the end of the list.
func (s *Store) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.lists[key]
	n := int64(len(l))
	if start < 0 {
		start = 0
	}
	if start >= n {
		return []string{}, nil
	}
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	out := make([]string, stop-start+1)
	copy(out, l[start:stop+1])
	return out, nil
}
