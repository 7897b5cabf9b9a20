// Package history keeps bounded per-channel time series for live
// plotting and quick statistics.
package history

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"sealink/hub"
	"sealink/telemetry"
)

// Point is one (timestamp, value) entry in a channel series.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Store holds one bounded ring per channel. Appends evict the oldest
// entry once a ring is full; readers only ever see copies.
type Store struct {
	capacity int

	mu     sync.RWMutex
	series map[string]*ring
}

// NewStore creates a store with the given per-channel capacity.
func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		capacity: capacity,
		series:   make(map[string]*ring),
	}
}

// Append adds a point to a channel, evicting the oldest entry when the
// channel is at capacity.
func (s *Store) Append(channel string, t time.Time, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.series[channel]
	if !ok {
		r = &ring{points: make([]Point, s.capacity)}
		s.series[channel] = r
	}
	r.push(Point{Time: t, Value: v})
}

// Record appends every numeric channel of a sample.
func (s *Store) Record(sample telemetry.Sample) {
	for _, ch := range sample.NumericChannels() {
		s.Append(ch.Name, sample.Time, ch.Value)
	}
}

// Snapshot returns a copy of a channel's points, oldest first. The
// copy is safe to keep while appends continue.
func (s *Store) Snapshot(channel string) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.series[channel]
	if !ok {
		return nil
	}
	return r.snapshot()
}

// Channels returns the known channel names, sorted.
func (s *Store) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear removes a single channel's series.
func (s *Store) Clear(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.series, channel)
}

// ClearAll removes every series.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series = make(map[string]*ring)
}

// Summary describes the current contents of one channel.
type Summary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	P5     float64 `json:"p5"`
	P95    float64 `json:"p95"`
}

// Summarize computes statistics over a channel's retained points.
func (s *Store) Summarize(channel string) (Summary, bool) {
	points := s.Snapshot(channel)
	if len(points) == 0 {
		return Summary{}, false
	}

	values := make([]float64, len(points))
	sum := 0.0
	for i, p := range points {
		values[i] = p.Value
		sum += p.Value
	}
	sort.Float64s(values)

	mean := sum / float64(len(values))
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	stddev := 0.0
	if len(values) > 1 {
		stddev = math.Sqrt(variance / float64(len(values)-1))
	}

	return Summary{
		Count:  len(values),
		Min:    values[0],
		Max:    values[len(values)-1],
		Mean:   mean,
		Median: percentile(values, 50),
		StdDev: stddev,
		P5:     percentile(values, 5),
		P95:    percentile(values, 95),
	}, true
}

// Consume drains a hub subscription into the store until the context
// ends or the subscription closes.
func Consume(ctx context.Context, sub *hub.Subscription, store *Store) {
	for {
		sample, err := sub.Next(ctx)
		if err != nil {
			return
		}
		store.Record(sample)
	}
}

// ring is a fixed-capacity circular buffer of points.
type ring struct {
	points []Point
	start  int
	count  int
}

func (r *ring) push(p Point) {
	if r.count < len(r.points) {
		r.points[(r.start+r.count)%len(r.points)] = p
		r.count++
		return
	}
	r.points[r.start] = p
	r.start = (r.start + 1) % len(r.points)
}

func (r *ring) snapshot() []Point {
	out := make([]Point, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.points[(r.start+i)%len(r.points)]
	}
	return out
}

// percentile computes the p-th percentile of sorted values with linear
// interpolation between ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
