// Package metrics is a small in-process counter/timer registry, a
// lightweight stand-in for a full metrics exporter (no Prometheus client
// dependency exists anywhere in the pack). Grounded on
// original_source/worker/metrics.py's incr/observe_ms/snapshot shape:
// tag-qualified metric names, logged as structured events rather than
// scraped.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bobmcallan/docworker/internal/common"
)

// Timer is the aggregate state of an observed duration metric.
type Timer struct {
	Count int64
	SumMS float64
	MinMS float64
	MaxMS float64
}

// Snapshot is a point-in-time copy of the registry's state.
type Snapshot struct {
	Counters map[string]int64
	Timers   map[string]Timer
}

// Registry is a concurrency-safe counter/timer registry. The zero value
// is not usable; construct with New.
type Registry struct {
	mu       sync.Mutex
	counters map[string]int64
	timers   map[string]Timer
	logger   *common.Logger
}

// New constructs an empty Registry. A nil logger is replaced with a
// silent one.
func New(logger *common.Logger) *Registry {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Registry{
		counters: make(map[string]int64),
		timers:   make(map[string]Timer),
		logger:   logger,
	}
}

func taggedName(name string, tags map[string]string) string {
	if len(tags) == 0 {
		return name
	}
	keys := make([]string, 0, len(tags))
	for k, v := range tags {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return name
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, tags[k]))
	}
	return name + "|" + strings.Join(parts, "|")
}

// Incr increments a named counter by amount, tagged by an optional set
// of key/value pairs merged into the metric's name.
func (r *Registry) Incr(name string, amount int64, tags map[string]string) {
	metric := taggedName(name, tags)
	r.mu.Lock()
	r.counters[metric] += amount
	total := r.counters[metric]
	r.mu.Unlock()

	r.logger.Info().
		Str("event", "metric_counter_update").
		Str("metric_name", metric).
		Str("metric_type", "counter").
		Int64("delta", amount).
		Int64("total", total).
		Msg("metric counter update")
}

// ObserveMS records a duration-in-milliseconds observation against a
// named timer, tagged like Incr.
func (r *Registry) ObserveMS(name string, durationMS float64, tags map[string]string) {
	if durationMS < 0 {
		durationMS = 0
	}
	metric := taggedName(name, tags)

	r.mu.Lock()
	t, ok := r.timers[metric]
	if !ok {
		t = Timer{Count: 1, SumMS: durationMS, MinMS: durationMS, MaxMS: durationMS}
	} else {
		t.Count++
		t.SumMS += durationMS
		if durationMS < t.MinMS {
			t.MinMS = durationMS
		}
		if durationMS > t.MaxMS {
			t.MaxMS = durationMS
		}
	}
	r.timers[metric] = t
	r.mu.Unlock()

	r.logger.Info().
		Str("event", "metric_timer_observe").
		Str("metric_name", metric).
		Str("metric_type", "timer_ms").
		Float64("value_ms", durationMS).
		Msg("metric timer observe")
}

// Snapshot returns a deep copy of the registry's current state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	counters := make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		counters[k] = v
	}
	timers := make(map[string]Timer, len(r.timers))
	for k, v := range r.timers {
		timers[k] = v
	}
	return Snapshot{Counters: counters, Timers: timers}
}
