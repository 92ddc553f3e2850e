// Package profile collects and aggregates hierarchical application metrics.
//
// Metrics travel as text lines of whitespace-separated `path=value` tokens,
// where path is one or more non-empty segments joined by ':' and value is a
// decimal number. A path is an independent key: `a` and `a:b` are distinct
// entries. The Aggregator folds samples into per-path count/sum/min/max
// statistics; the Profile type is the producer side used by workers to mark
// values and emit a line for reporting.
package profile

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Sample is a single parsed metric observation. Path is the canonical
// colon-joined key.
type Sample struct {
	Path  string
	Value float64
}

// Aggregate holds the running statistics for one metric path.
type Aggregate struct {
	Path  string  `json:"path"`
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`

	sumsq float64
}

// Mean returns the average of all merged samples.
func (a Aggregate) Mean() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.Sum / float64(a.Count)
}

// StdDev returns the population standard deviation of merged samples.
func (a Aggregate) StdDev() float64 {
	if a.Count == 0 {
		return 0
	}
	mean := a.Mean()
	variance := a.sumsq/float64(a.Count) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// Aggregator accumulates samples per distinct path. Safe for concurrent use;
// the mutex guards only in-memory map updates so critical sections stay short.
type Aggregator struct {
	mu      sync.Mutex
	entries map[string]*Aggregate
	log     *zap.Logger
}

// NewAggregator builds an empty aggregator. A nil logger disables parse
// diagnostics.
func NewAggregator(log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		entries: make(map[string]*Aggregate),
		log:     log,
	}
}

// ParseLine extracts samples from one line of the metrics protocol.
// Malformed tokens (missing '=', non-numeric value, empty path segment) are
// skipped with a warning so the rest of the line still parses.
func (a *Aggregator) ParseLine(line string) []Sample {
	var samples []Sample
	for _, token := range strings.Fields(line) {
		eq := strings.IndexByte(token, '=')
		if eq <= 0 {
			a.log.Warn("skipping malformed metric token", zap.String("token", token))
			continue
		}
		path, raw := token[:eq], token[eq+1:]
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			a.log.Warn("skipping metric token with bad value", zap.String("token", token))
			continue
		}
		if !validPath(path) {
			a.log.Warn("skipping metric token with empty path segment", zap.String("token", token))
			continue
		}
		samples = append(samples, Sample{Path: path, Value: value})
	}
	return samples
}

func validPath(path string) bool {
	for _, segment := range strings.Split(path, ":") {
		if segment == "" {
			return false
		}
	}
	return true
}

// Merge folds one sample into the aggregate for its path. Merging is
// associative and commutative: any ordering of the same sample multiset
// produces the same final aggregates.
func (a *Aggregator) Merge(s Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.entries[s.Path]
	if !ok {
		a.entries[s.Path] = &Aggregate{
			Path:  s.Path,
			Count: 1,
			Sum:   s.Value,
			Min:   s.Value,
			Max:   s.Value,
			sumsq: s.Value * s.Value,
		}
		return
	}
	entry.Count++
	entry.Sum += s.Value
	entry.sumsq += s.Value * s.Value
	if s.Value < entry.Min {
		entry.Min = s.Value
	}
	if s.Value > entry.Max {
		entry.Max = s.Value
	}
}

// Ingest parses a line and merges every valid sample from it.
func (a *Aggregator) Ingest(line string) {
	for _, s := range a.ParseLine(line) {
		a.Merge(s)
	}
}

// Snapshot returns a copy of all aggregates sorted by path. The lock is held
// only while copying, never across callers' use of the result.
func (a *Aggregator) Snapshot() []Aggregate {
	a.mu.Lock()
	out := make([]Aggregate, 0, len(a.entries))
	for _, entry := range a.entries {
		out = append(out, *entry)
	}
	a.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
