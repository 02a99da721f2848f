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

package symbol

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hokiegeek2/arkouda/pkg/protocol"
)

// Table is the process-wide symbol table. Entry mutation happens only on the
// dispatch path; reads may come concurrently from the metrics endpoint, so
// the name map is guarded. The table doubles as the memory gate for every
// buffer allocation derived from client input.
type Table struct {
	mu        sync.RWMutex
	entries   map[string]Object
	durable   map[string]struct{}
	nextID    atomic.Uint64
	limit     int64
	used      atomic.Int64
	nameStore NameStore
}

// Option configures a Table.
type Option func(*Table)

// WithMemoryLimit caps live buffer bytes; allocations past the cap fail with
// OutOfMemoryError instead of allocating. Zero means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(t *Table) { t.limit = bytes }
}

// WithNameStore mirrors durable registrations into store.
func WithNameStore(store NameStore) Option {
	return func(t *Table) { t.nameStore = store }
}

// NewTable builds an empty symbol table.
func NewTable(opts ...Option) *Table {
	t := &Table{
		entries:   make(map[string]Object),
		durable:   make(map[string]struct{}),
		nameStore: NewMemoryNameStore(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Reserve implements array.MemoryGate.
func (t *Table) Reserve(bytes int64) error {
	if bytes < 0 {
		return fmt.Errorf("%w: negative reservation %d", protocol.ErrOutOfBounds, bytes)
	}
	next := t.used.Add(bytes)
	if t.limit > 0 && next > t.limit {
		t.used.Add(-bytes)
		return fmt.Errorf("%w: %d bytes requested, %d of %d in use", protocol.ErrOutOfMemory, bytes, next-bytes, t.limit)
	}
	return nil
}

// Release implements array.MemoryGate.
func (t *Table) Release(bytes int64) {
	t.used.Add(-bytes)
}

// MemUsed reports live buffer bytes.
func (t *Table) MemUsed() int64 { return t.used.Load() }

// MemLimit reports the configured ceiling; zero means unlimited.
func (t *Table) MemLimit() int64 { return t.limit }

// Create stores obj under a generated session name and returns the name.
// Generated names are unique for the process lifetime.
func (t *Table) Create(obj Object) string {
	name := fmt.Sprintf("id_%d", t.nextID.Add(1))
	t.mu.Lock()
	t.entries[name] = obj
	t.mu.Unlock()
	return name
}

// Bind stores obj under an explicit name. Used by checkpoint restore to
// rebuild durable bindings; Create remains the path for session names.
func (t *Table) Bind(name string, obj Object, durable bool) {
	t.mu.Lock()
	t.entries[name] = obj
	if durable {
		t.durable[name] = struct{}{}
	}
	t.mu.Unlock()
}

// Lookup resolves name, verifying the entry's variant when want is non-empty.
func (t *Table) Lookup(name string, want Kind) (Object, error) {
	t.mu.RLock()
	obj, ok := t.entries[name]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", protocol.ErrNotFound, name)
	}
	if want != "" && obj.Kind() != want {
		return nil, fmt.Errorf("%w: %q is %s, expected %s", protocol.ErrTypeMismatch, name, obj.Kind(), want)
	}
	return obj, nil
}

// Delete destroys the entry bound to name, dropping its buffer reference.
func (t *Table) Delete(ctx context.Context, name string) error {
	t.mu.Lock()
	obj, ok := t.entries[name]
	if ok {
		delete(t.entries, name)
		delete(t.durable, name)
	}
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", protocol.ErrNotFound, name)
	}
	obj.release()
	return nil
}

// Clear destroys all session-scoped entries. Durable (registered) names
// survive a clear.
func (t *Table) Clear(ctx context.Context) int {
	t.mu.Lock()
	var victims []Object
	for name, obj := range t.entries {
		if _, registered := t.durable[name]; registered {
			continue
		}
		victims = append(victims, obj)
		delete(t.entries, name)
	}
	t.mu.Unlock()
	for _, obj := range victims {
		obj.release()
	}
	return len(victims)
}

// Register binds the entry at name to the durable, client-chosen userName.
// Both names refer to the same underlying buffers (shared by refcount).
func (t *Table) Register(ctx context.Context, name, userName string) error {
	if userName == "" {
		return fmt.Errorf("%w: empty registration name", protocol.ErrNotFound)
	}
	t.mu.Lock()
	obj, ok := t.entries[name]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %q", protocol.ErrNotFound, name)
	}
	if prev, taken := t.entries[userName]; taken {
		t.mu.Unlock()
		if prev != obj {
			return fmt.Errorf("%w: name %q already bound", protocol.ErrTypeMismatch, userName)
		}
		// Already registered under this name; no new reference to take.
		return nil
	}
	obj.retain()
	t.entries[userName] = obj
	t.durable[userName] = struct{}{}
	t.mu.Unlock()

	return t.nameStore.Put(ctx, RegisteredName{
		Name:         userName,
		Kind:         string(obj.Kind()),
		DType:        string(obj.DType()),
		RegisteredAt: time.Now().UTC(),
	})
}

// Attach resolves a durable name registered earlier.
func (t *Table) Attach(ctx context.Context, userName string) (Object, error) {
	t.mu.RLock()
	obj, ok := t.entries[userName]
	_, registered := t.durable[userName]
	t.mu.RUnlock()
	if !ok || !registered {
		return nil, fmt.Errorf("%w: no registered entry %q", protocol.ErrNotFound, userName)
	}
	return obj, nil
}

// Unregister removes a durable name, dropping its shared reference.
func (t *Table) Unregister(ctx context.Context, userName string) error {
	t.mu.Lock()
	obj, ok := t.entries[userName]
	_, registered := t.durable[userName]
	if ok && registered {
		delete(t.entries, userName)
		delete(t.durable, userName)
	}
	t.mu.Unlock()
	if !ok || !registered {
		return fmt.Errorf("%w: no registered entry %q", protocol.ErrNotFound, userName)
	}
	obj.release()
	return t.nameStore.Delete(ctx, userName)
}

// EntryInfo is one row of an info listing.
type EntryInfo struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	DType      string `json:"dtype"`
	Desc       string `json:"desc"`
	Registered bool   `json:"registered"`
}

// Info lists all entries in name order.
func (t *Table) Info() []EntryInfo {
	t.mu.RLock()
	out := make([]EntryInfo, 0, len(t.entries))
	for name, obj := range t.entries {
		_, registered := t.durable[name]
		out = append(out, EntryInfo{
			Name:       name,
			Kind:       string(obj.Kind()),
			DType:      string(obj.DType()),
			Desc:       obj.Describe(),
			Registered: registered,
		})
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RegisteredNames lists the durable names in name order.
func (t *Table) RegisteredNames() []string {
	t.mu.RLock()
	out := make([]string, 0, len(t.durable))
	for name := range t.durable {
		out = append(out, name)
	}
	t.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Size returns the number of live names (durable names included).
func (t *Table) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
