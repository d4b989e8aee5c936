package aggregate

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"btcpulse/internal/model"
)

var errInjected = errors.New("injected upsert failure")

// memStore is an in-memory SessionProvider.
type memStore struct {
	mu      sync.Mutex
	ticks   []model.Tick
	buckets map[time.Time]model.HourBucket

	upserts   int // UpsertBuckets calls
	failAt    int // fail the failAt-th UpsertBuckets call (1-based), 0 = never
	opened    int
	released  int
	sessionEr error
}

func newMemStore(ticks ...model.Tick) *memStore {
	return &memStore{ticks: ticks, buckets: make(map[time.Time]model.HourBucket)}
}

func (m *memStore) Session(ctx context.Context) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessionEr != nil {
		return nil, m.sessionEr
	}
	m.opened++
	return &memSession{m: m}, nil
}

func (m *memStore) bucket(h time.Time) (model.HourBucket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[h]
	return b, ok
}

type memSession struct{ m *memStore }

func (s *memSession) Release() {
	s.m.mu.Lock()
	s.m.released++
	s.m.mu.Unlock()
}

func (s *memSession) TicksBetween(_ context.Context, from, to time.Time) ([]model.Tick, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.Tick
	for _, t := range s.m.ticks {
		if !t.TS.Before(from) && t.TS.Before(to) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b model.Tick) int { return a.TS.Compare(b.TS) })
	return out, nil
}

func (s *memSession) LatestTick(ctx context.Context) (model.Tick, error) {
	ticks, _ := s.TicksBetween(ctx, time.Time{}, time.Unix(1<<40, 0))
	if len(ticks) == 0 {
		return model.Tick{}, model.ErrNoData
	}
	return ticks[len(ticks)-1], nil
}

func (s *memSession) InsertTick(_ context.Context, t model.Tick) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, old := range s.m.ticks {
		if old.TS.Equal(t.TS) {
			return false, nil
		}
	}
	s.m.ticks = append(s.m.ticks, t)
	return true, nil
}

func (s *memSession) ReplaceTicks(_ context.Context, from, to time.Time, ticks []model.Tick) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	kept := s.m.ticks[:0]
	for _, t := range s.m.ticks {
		if t.TS.Before(from) || !t.TS.Before(to) {
			kept = append(kept, t)
		}
	}
	n := 0
	for _, t := range ticks {
		if !t.TS.Before(from) && t.TS.Before(to) {
			kept = append(kept, t)
			n++
		}
	}
	s.m.ticks = kept
	return n, nil
}

func (s *memSession) MissingHours(_ context.Context, from, to time.Time) ([]time.Time, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	seen := make(map[time.Time]bool)
	var out []time.Time
	for _, t := range s.m.ticks {
		if t.TS.Before(from) || !t.TS.Before(to) {
			continue
		}
		h := t.Hour()
		if _, done := s.m.buckets[h]; done || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return out, nil
}

func (s *memSession) UpsertBuckets(_ context.Context, buckets []model.HourBucket) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.upserts++
	if s.m.failAt > 0 && s.m.upserts == s.m.failAt {
		return errInjected
	}
	for _, b := range buckets {
		s.m.buckets[b.Hour] = b
	}
	return nil
}

func (s *memSession) BucketsBetween(_ context.Context, from, to time.Time) ([]model.HourBucket, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.HourBucket
	for h, b := range s.m.buckets {
		if !h.Before(from) && h.Before(to) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b model.HourBucket) int { return a.Hour.Compare(b.Hour) })
	return out, nil
}

func (s *memSession) DeleteEmptyBuckets(_ context.Context, from, to time.Time) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	live := make(map[time.Time]bool)
	for _, t := range s.m.ticks {
		live[t.Hour()] = true
	}
	n := 0
	for h := range s.m.buckets {
		if !h.Before(from) && h.Before(to) && !live[h] {
			delete(s.m.buckets, h)
			n++
		}
	}
	return n, nil
}
