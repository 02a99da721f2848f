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

package metrics

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestCounters(t *testing.T) {
	r := NewRegistry()
	if got := r.Counter(CategoryRequest, "create"); got != 0 {
		t.Fatalf("fresh counter = %d", got)
	}
	r.Inc(CategoryRequest, "create", 1)
	r.Inc(CategoryRequest, "create", 2)
	r.Inc(CategoryServer, "connections", 1)
	if got := r.Counter(CategoryRequest, "create"); got != 3 {
		t.Fatalf("create counter = %d, want 3", got)
	}
	if got := r.Counter(CategoryServer, "connections"); got != 1 {
		t.Fatalf("connections counter = %d, want 1", got)
	}
	if got := r.Counter(CategoryRequest, "connections"); got != 0 {
		t.Fatalf("category bleed: %d", got)
	}
}

func TestTimings(t *testing.T) {
	r := NewRegistry()
	r.RecordTime("gather", 2*time.Millisecond)
	r.RecordTime("gather", 4*time.Millisecond)
	if got := r.TimingCount("gather"); got != 2 {
		t.Fatalf("timing count = %d, want 2", got)
	}
	if got := r.TimingCount("noop"); got != 0 {
		t.Fatalf("unrecorded timing count = %d", got)
	}

	byName := make(map[string]Metric)
	for _, m := range r.Snapshot() {
		byName[m.Name] = m
	}
	avg, ok := byName["gather_avg_ms"]
	if !ok {
		t.Fatal("no gather_avg_ms row")
	}
	if avg.Category != CategoryResponseTime {
		t.Fatalf("avg category = %s", avg.Category)
	}
	if avg.Value != 3.0 {
		t.Fatalf("avg = %v ms, want 3", avg.Value)
	}
	max, ok := byName["gather_max_ms"]
	if !ok {
		t.Fatal("no gather_max_ms row")
	}
	if max.Value != 4.0 {
		t.Fatalf("max = %v ms, want 4", max.Value)
	}
}

func TestGauges(t *testing.T) {
	r := NewRegistry()
	r.SetGauge("memory_used_bytes", 1024)
	r.SetGauge("memory_used_bytes", 2048)
	var found bool
	for _, m := range r.Snapshot() {
		if m.Name == "memory_used_bytes" {
			found = true
			if m.Category != CategorySystem || m.Value != 2048 {
				t.Fatalf("gauge row = %+v", m)
			}
			if m.Partition != -1 {
				t.Fatalf("partition = %d", m.Partition)
			}
		}
	}
	if !found {
		t.Fatal("gauge missing from snapshot")
	}
}

func TestSnapshotJSON(t *testing.T) {
	r := NewRegistry()
	r.Inc(CategoryRequest, "noop", 5)
	s, err := r.SnapshotJSON()
	if err != nil {
		t.Fatalf("snapshot json: %v", err)
	}
	var rows []Metric
	if err := json.Unmarshal([]byte(s), &rows); err != nil {
		t.Fatalf("parse snapshot: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "noop" || rows[0].Value != 5 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Inc(CategoryRequest, "noop", 1)
				r.RecordTime("noop", time.Microsecond)
			}
		}()
	}
	wg.Wait()
	if got := r.Counter(CategoryRequest, "noop"); got != 800 {
		t.Fatalf("counter = %d, want 800", got)
	}
	if got := r.TimingCount("noop"); got != 800 {
		t.Fatalf("timing count = %d, want 800", got)
	}
}
