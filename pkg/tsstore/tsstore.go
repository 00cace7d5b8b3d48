// Package tsstore is the volatile per-metric time-series store: a
// fixed-capacity ring of points per series, retention-bounded, with
// recency tracked across the whole series set but capped hard at
// max_metrics: once that many distinct series exist, creating another is
// rejected rather than evicting one to make room. It is the storage
// layer C7 (metric storage engine) drains batches into.
package tsstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/telemetry/internal/terr"
	"github.com/Sumatoshi-tech/telemetry/pkg/alg/stats"
	"github.com/Sumatoshi-tech/telemetry/pkg/onlinestats"
	"github.com/Sumatoshi-tech/telemetry/pkg/reduce"
)

// reducer computes AggSum with the widest unrolled lane the running CPU
// supports; AggMin and AggMax go through its plain scalar loops.
var reducer = reduce.New()

// Point is a single (timestamp, value) sample.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// AggregateFunc selects the reduction Aggregate applies over a point range.
type AggregateFunc int

// Supported aggregate functions.
const (
	AggSum AggregateFunc = iota
	AggMean
	AggMin
	AggMax
	AggCount
	AggQuantile
)

// Kind classifies the semantics of a series, mirroring the Observation
// kinds of the ingestion layer.
type Kind int

// Series kinds.
const (
	KindCounter Kind = iota
	KindGauge
	KindHistogram
	KindSummary
	KindTimer
	KindSet
)

// SeriesMeta describes a series' static metadata.
type SeriesMeta struct {
	Name Unit
	Kind Kind
	Unit string
}

// Unit is a type alias identical to string, used for the series name in
// SeriesMeta; tsstore treats it as an opaque string.
type Unit = string

// series is one named time-series: a ring of points plus retention policy.
type series struct {
	name   string
	meta   SeriesMeta
	points []Point // ring buffer, len == capacity once full
	head   int     // index of oldest point
	count  int     // number of valid points
	cap    int

	retention time.Duration

	mu sync.RWMutex

	// LRU linkage, guarded by the owning Store's mu.
	prev, next *series
}

// Config configures a Store.
type Config struct {
	// MaxPoints bounds the per-series ring capacity.
	MaxPoints int

	// RetentionPeriod bounds how long a point is kept regardless of ring
	// capacity. Zero disables retention-based eviction.
	RetentionPeriod time.Duration

	// MaxMetrics bounds the total number of distinct series; creating one
	// past this limit is rejected with resource_exhausted.
	MaxMetrics int
}

func (c Config) validate() error {
	if c.MaxPoints <= 0 {
		return terr.New(terr.KindInvalidConfiguration, "tsstore.New", "max_points must be positive")
	}

	if c.MaxMetrics <= 0 {
		return terr.New(terr.KindInvalidConfiguration, "tsstore.New", "max_metrics must be positive")
	}

	return nil
}

// Store owns a bounded collection of named series, tracking recency
// order but rejecting creation of a new series once MaxMetrics is
// reached rather than evicting an existing one.
type Store struct {
	cfg Config

	mu      sync.RWMutex
	byName  map[string]*series
	lruHead *series // most recently used
	lruTail *series // least recently used

	created        int64
	evictedLRU     int64
	lateArrivals   int64
	pointsDropped  int64
	creationFailed int64
}

// New constructs a Store per cfg.
func New(cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Store{cfg: cfg, byName: make(map[string]*series)}, nil
}

// Write appends a point to the named series, creating the series if this
// is its first observation. Late arrivals (timestamp older than the
// series' last point) are dropped and counted. Returns resource_exhausted
// if creating a new series would exceed MaxMetrics; existing series are
// never evicted to make room.
func (s *Store) Write(name string, meta SeriesMeta, p Point) error {
	s.mu.Lock()
	sr, ok := s.byName[name]

	if !ok {
		var err error

		sr, err = s.createLocked(name, meta)
		if err != nil {
			s.mu.Unlock()

			return err
		}
	}

	s.moveToFrontLocked(sr)
	s.mu.Unlock()

	sr.mu.Lock()
	defer sr.mu.Unlock()

	if sr.count > 0 {
		last := sr.points[(sr.head+sr.count-1)%sr.cap]
		if p.Timestamp.Before(last.Timestamp) {
			s.mu.Lock()
			s.lateArrivals++
			s.mu.Unlock()

			return terr.New(terr.KindInvalidArgument, "tsstore.Write", "point timestamp older than last recorded point")
		}
	}

	sr.push(p)
	sr.evictExpired()

	return nil
}

func (s *Store) createLocked(name string, meta SeriesMeta) (*series, error) {
	if len(s.byName) >= s.cfg.MaxMetrics {
		s.creationFailed++

		return nil, terr.New(terr.KindResourceExhausted, "tsstore.createLocked", "max_metrics reached")
	}

	sr := &series{
		name:      name,
		meta:      meta,
		points:    make([]Point, s.cfg.MaxPoints),
		cap:       s.cfg.MaxPoints,
		retention: s.cfg.RetentionPeriod,
	}

	s.byName[name] = sr
	s.created++

	return sr, nil
}

func (sr *series) push(p Point) {
	if sr.count < sr.cap {
		idx := (sr.head + sr.count) % sr.cap
		sr.points[idx] = p
		sr.count++

		return
	}

	sr.points[sr.head] = p
	sr.head = (sr.head + 1) % sr.cap
}

func (sr *series) evictExpired() {
	if sr.retention <= 0 || sr.count == 0 {
		return
	}

	newest := sr.points[(sr.head+sr.count-1)%sr.cap].Timestamp
	cutoff := newest.Add(-sr.retention)

	for sr.count > 0 {
		oldest := sr.points[sr.head]
		if !oldest.Timestamp.Before(cutoff) {
			break
		}

		sr.head = (sr.head + 1) % sr.cap
		sr.count--
	}
}

// snapshot returns a copy of the series' points in oldest-to-newest order.
func (sr *series) snapshot() []Point {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	out := make([]Point, sr.count)
	for i := range sr.count {
		out[i] = sr.points[(sr.head+i)%sr.cap]
	}

	return out
}

// Latest returns the most recent point for name, or ok=false if the series
// doesn't exist or is empty.
func (s *Store) Latest(name string) (Point, bool) {
	sr := s.lookup(name)
	if sr == nil {
		return Point{}, false
	}

	sr.mu.RLock()
	defer sr.mu.RUnlock()

	if sr.count == 0 {
		return Point{}, false
	}

	return sr.points[(sr.head+sr.count-1)%sr.cap], true
}

// Range returns every point of name falling within [from, to], inclusive.
func (s *Store) Range(name string, from, to time.Time) ([]Point, error) {
	sr := s.lookup(name)
	if sr == nil {
		return nil, terr.New(terr.KindNotFound, "tsstore.Range", "series not found: "+name)
	}

	all := sr.snapshot()

	out := make([]Point, 0, len(all))

	for _, p := range all {
		if (p.Timestamp.Equal(from) || p.Timestamp.After(from)) && (p.Timestamp.Equal(to) || p.Timestamp.Before(to)) {
			out = append(out, p)
		}
	}

	return out, nil
}

// Aggregate reduces the points of name in [from, to] with fn. quantileP is
// used only when fn == AggQuantile.
func (s *Store) Aggregate(name string, from, to time.Time, fn AggregateFunc, quantileP float64) (float64, error) {
	points, err := s.Range(name, from, to)
	if err != nil {
		return 0, err
	}

	if len(points) == 0 {
		return 0, terr.New(terr.KindStorageEmpty, "tsstore.Aggregate", "no points in range for series: "+name)
	}

	switch fn {
	case AggCount:
		return float64(len(points)), nil
	case AggSum:
		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Value
		}

		sum, sumErr := reducer.Sum(values)
		if sumErr != nil {
			return 0, fmt.Errorf("tsstore.Aggregate: %w", sumErr)
		}

		return sum, nil
	case AggMin:
		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Value
		}

		return reducer.Min(values), nil
	case AggMax:
		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Value
		}

		return reducer.Max(values), nil
	case AggMean:
		var w onlinestats.Welford
		for _, p := range points {
			w.Observe(p.Value)
		}

		return w.Mean(), nil
	case AggQuantile:
		return aggregateQuantile(points, quantileP)
	default:
		return 0, terr.New(terr.KindInvalidArgument, "tsstore.Aggregate", "unsupported aggregate function")
	}
}

func aggregateQuantile(points []Point, p float64) (float64, error) {
	if p <= 0 || p >= 1 {
		return 0, terr.New(terr.KindInvalidArgument, "tsstore.Aggregate", "quantile p must be in (0, 1)")
	}

	values := make([]float64, len(points))
	for i, pt := range points {
		values[i] = pt.Value
	}

	return stats.Percentile(values, p), nil
}

func (s *Store) lookup(name string) *series {
	s.mu.Lock()
	sr, ok := s.byName[name]
	if ok {
		s.moveToFrontLocked(sr)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}

	return sr
}

// moveToFrontLocked marks sr most-recently-used. Caller must hold s.mu.
func (s *Store) moveToFrontLocked(sr *series) {
	if s.lruHead == sr {
		return
	}

	s.unlinkLocked(sr)

	sr.prev = nil
	sr.next = s.lruHead

	if s.lruHead != nil {
		s.lruHead.prev = sr
	}

	s.lruHead = sr

	if s.lruTail == nil {
		s.lruTail = sr
	}
}

func (s *Store) unlinkLocked(sr *series) {
	if sr.prev != nil {
		sr.prev.next = sr.next
	}

	if sr.next != nil {
		sr.next.prev = sr.prev
	}

	if s.lruHead == sr {
		s.lruHead = sr.next
	}

	if s.lruTail == sr {
		s.lruTail = sr.prev
	}

	sr.prev, sr.next = nil, nil
}

// Stats is a point-in-time snapshot of store-wide counters.
type Stats struct {
	SeriesCount    int
	Created        int64
	EvictedLRU     int64
	LateArrivals   int64
	PointsDropped  int64
	CreationFailed int64
}

// Snapshot returns current store statistics.
func (s *Store) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		SeriesCount:    len(s.byName),
		Created:        s.created,
		EvictedLRU:     s.evictedLRU,
		LateArrivals:   s.lateArrivals,
		PointsDropped:  s.pointsDropped,
		CreationFailed: s.creationFailed,
	}
}
