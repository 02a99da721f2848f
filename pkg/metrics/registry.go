// Copyright 2026 The Arkouda Server Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics implements the thread-safe counter and timer store shared
// by the dispatch loop and the metrics sub-service.
package metrics

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Category groups metrics for snapshot reporting.
type Category string

const (
	// CategoryRequest counts requests per command.
	CategoryRequest Category = "request"
	// CategoryResponseTime aggregates handler latency per command.
	CategoryResponseTime Category = "response_time"
	// CategorySystem carries memory and process-level gauges.
	CategorySystem Category = "system"
	// CategoryServer carries server-wide counters such as connections.
	CategoryServer Category = "server"
)

// Metric is one snapshot row. Partition is -1 for server-wide metrics.
type Metric struct {
	Name      string    `json:"name"`
	Category  Category  `json:"category"`
	Partition int       `json:"partition"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type timing struct {
	count   int64
	totalNs int64
	maxNs   int64
}

// Registry holds named counters and timers. Updates are atomic per key;
// reads return snapshot copies. Safe for concurrent use by the main loop and
// the metrics sub-service.
type Registry struct {
	mu       sync.Mutex
	counters map[Category]map[string]int64
	gauges   map[string]float64
	timings  map[string]*timing
}

// NewRegistry builds an empty metric registry.
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[Category]map[string]int64),
		gauges:   make(map[string]float64),
		timings:  make(map[string]*timing),
	}
}

// Inc adds delta to the named counter in cat.
func (r *Registry) Inc(cat Category, name string, delta int64) {
	r.mu.Lock()
	byName := r.counters[cat]
	if byName == nil {
		byName = make(map[string]int64)
		r.counters[cat] = byName
	}
	byName[name] += delta
	r.mu.Unlock()
}

// SetGauge records a point-in-time system value.
func (r *Registry) SetGauge(name string, value float64) {
	r.mu.Lock()
	r.gauges[name] = value
	r.mu.Unlock()
}

// RecordTime adds one latency sample for the named command.
func (r *Registry) RecordTime(name string, elapsed time.Duration) {
	ns := elapsed.Nanoseconds()
	r.mu.Lock()
	t := r.timings[name]
	if t == nil {
		t = &timing{}
		r.timings[name] = t
	}
	t.count++
	t.totalNs += ns
	if ns > t.maxNs {
		t.maxNs = ns
	}
	r.mu.Unlock()
}

// Counter returns the current value of one counter.
func (r *Registry) Counter(cat Category, name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[cat][name]
}

// TimingCount returns the number of samples recorded for name.
func (r *Registry) TimingCount(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.timings[name]; t != nil {
		return t.count
	}
	return 0
}

// Snapshot returns a copy of every metric, grouped by category and sorted by
// name within each.
func (r *Registry) Snapshot() []Metric {
	now := time.Now().UTC()
	r.mu.Lock()
	out := make([]Metric, 0, len(r.gauges)+len(r.timings))
	for cat, byName := range r.counters {
		for name, v := range byName {
			out = append(out, Metric{Name: name, Category: cat, Partition: -1, Timestamp: now, Value: float64(v)})
		}
	}
	for name, v := range r.gauges {
		out = append(out, Metric{Name: name, Category: CategorySystem, Partition: -1, Timestamp: now, Value: v})
	}
	for name, t := range r.timings {
		avg := 0.0
		if t.count > 0 {
			avg = float64(t.totalNs) / float64(t.count) / 1e6
		}
		out = append(out, Metric{Name: name + "_avg_ms", Category: CategoryResponseTime, Partition: -1, Timestamp: now, Value: avg})
		out = append(out, Metric{Name: name + "_max_ms", Category: CategoryResponseTime, Partition: -1, Timestamp: now, Value: float64(t.maxNs) / 1e6})
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// SnapshotJSON serializes the snapshot for the metrics command.
func (r *Registry) SnapshotJSON() (string, error) {
	bytes, err := json.Marshal(r.Snapshot())
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
