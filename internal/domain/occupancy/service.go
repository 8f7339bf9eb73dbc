package occupancy

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nir/leitos/internal/domain/ward"
	"github.com/nir/leitos/internal/platform/cache"
	"github.com/nir/leitos/internal/platform/clock"
)

// SnapshotSource is the slice of ward.Repository the read models need.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*ward.Snapshot, error)
}

// Recorder receives occupancy figures each time they are computed.
type Recorder interface {
	ObserveCategory(category string, total, occupied int)
	SetOccupancyRate(rate int)
}

const (
	bedMapKey    = "nir:mapa-leitos"
	dashboardKey = "nir:stats"
)

type Service struct {
	src    SnapshotSource
	clock  clock.Clock
	kv     cache.KVStore
	ttl    time.Duration
	rec    Recorder
	logger zerolog.Logger

	// mu orders cache writes against invalidations. gen is bumped on every
	// invalidation; a read model built from an older generation is not cached.
	mu  sync.Mutex
	gen uint64
}

func NewService(src SnapshotSource, clk clock.Clock) *Service {
	return &Service{src: src, clock: clk, logger: zerolog.Nop()}
}

// SetCache enables read-model caching for ttl. A nil store or zero ttl disables it.
func (s *Service) SetCache(kv cache.KVStore, ttl time.Duration) {
	s.kv = kv
	s.ttl = ttl
}

func (s *Service) SetRecorder(rec Recorder) {
	s.rec = rec
}

func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l.With().Str("component", "occupancy").Logger()
}

func (s *Service) cacheEnabled() bool { return s.kv != nil && s.ttl > 0 }

func (s *Service) BedMap(ctx context.Context) (*BedMap, error) {
	var out BedMap
	if s.fromCache(ctx, bedMapKey, &out) {
		return &out, nil
	}
	gen := s.generation()
	snap, err := s.src.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	m := BuildBedMap(snap, s.clock.Now(), s.clock.Location())
	s.record(m.Categories)
	s.toCache(ctx, bedMapKey, m, gen)
	return m, nil
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	var out Dashboard
	if s.fromCache(ctx, dashboardKey, &out) {
		return &out, nil
	}
	gen := s.generation()
	snap, err := s.src.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	d := BuildDashboard(snap, s.clock.Now(), s.clock.Location())
	s.record(d.Beds)
	s.toCache(ctx, dashboardKey, d, gen)
	return d, nil
}

// Invalidate drops cached read models. It is called after every ward mutation.
func (s *Service) Invalidate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.kv == nil {
		return
	}
	if err := s.kv.Delete(ctx, bedMapKey, dashboardKey); err != nil {
		s.logger.Warn().Err(err).Msg("cache invalidation failed")
	}
}

func (s *Service) record(totals CategoryTotals) {
	if s.rec == nil {
		return
	}
	for _, c := range ward.Categories {
		st := totals[c]
		s.rec.ObserveCategory(c.Slug(), st.Total, st.Occupied)
	}
	total, occupied := totals.Sum()
	s.rec.SetOccupancyRate(OccupancyRate(occupied, total))
}

func (s *Service) fromCache(ctx context.Context, key string, dst interface{}) bool {
	if !s.cacheEnabled() {
		return false
	}
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache entry undecodable")
		return false
	}
	return true
}

func (s *Service) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// toCache stores v unless an invalidation happened after gen was read.
func (s *Service) toCache(ctx context.Context, key string, v interface{}, gen uint64) {
	if !s.cacheEnabled() {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		s.logger.Debug().Str("key", key).Msg("read model superseded, not caching")
		return
	}
	if err := s.kv.Set(ctx, key, string(raw), s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
