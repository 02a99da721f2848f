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

// Package array implements the partitioned buffer and segmented array engine.
// A Buffer is one logical contiguous sequence split into contiguous
// partitions; data-parallel operations fork one goroutine per partition and
// join before any step that depends on global completion.
package array

import (
	"context"
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"github.com/hokiegeek2/arkouda/pkg/protocol"
)

// MemoryGate bounds allocations whose size derives from user input. Reserve
// fails rather than allocate past the ceiling; Release returns the bytes.
type MemoryGate interface {
	Reserve(bytes int64) error
	Release(bytes int64)
}

// nopGate admits everything. Used when no ceiling is configured.
type nopGate struct{}

func (nopGate) Reserve(int64) error { return nil }
func (nopGate) Release(int64)       {}

// NopGate returns a gate with no ceiling.
func NopGate() MemoryGate { return nopGate{} }

// Partition is one contiguous index range [Start, End) of a Buffer.
type Partition struct {
	Start int
	End   int
}

// Buffer is a logical contiguous buffer of length Len() distributed across
// partitions. The partition count is fixed at construction and independent of
// the element count.
type Buffer[T any] struct {
	parts [][]T
	pmap  []Partition
	n     int
	gate  MemoryGate
	refs  *atomic.Int32
	bytes int64
}

func elemBytes[T any]() int64 {
	var zero T
	return int64(unsafe.Sizeof(zero))
}

func partitionBounds(n, numParts int) []Partition {
	if numParts < 1 {
		numParts = 1
	}
	if numParts > n && n > 0 {
		numParts = n
	}
	if n == 0 {
		return []Partition{{Start: 0, End: 0}}
	}
	pmap := make([]Partition, numParts)
	base := n / numParts
	extra := n % numParts
	start := 0
	for p := 0; p < numParts; p++ {
		size := base
		if p < extra {
			size++
		}
		pmap[p] = Partition{Start: start, End: start + size}
		start += size
	}
	return pmap
}

// New allocates a zeroed buffer of n elements over numParts partitions,
// reserving its footprint through gate.
func New[T any](n, numParts int, gate MemoryGate) (*Buffer[T], error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", protocol.ErrOutOfBounds, n)
	}
	if gate == nil {
		gate = NopGate()
	}
	bytes := int64(n) * elemBytes[T]()
	if err := gate.Reserve(bytes); err != nil {
		return nil, err
	}
	pmap := partitionBounds(n, numParts)
	parts := make([][]T, len(pmap))
	for p, bounds := range pmap {
		parts[p] = make([]T, bounds.End-bounds.Start)
	}
	refs := &atomic.Int32{}
	refs.Store(1)
	return &Buffer[T]{parts: parts, pmap: pmap, n: n, gate: gate, refs: refs, bytes: bytes}, nil
}

// FromSlice builds a buffer from data, re-partitioning over numParts.
func FromSlice[T any](data []T, numParts int, gate MemoryGate) (*Buffer[T], error) {
	b, err := New[T](len(data), numParts, gate)
	if err != nil {
		return nil, err
	}
	b.CopyIn(0, data)
	return b, nil
}

// Retain adds a shared reference: another registry name now owns this buffer.
func (b *Buffer[T]) Retain() *Buffer[T] {
	b.refs.Add(1)
	return b
}

// Release drops one reference and returns the footprint to the gate when the
// last reference goes away.
func (b *Buffer[T]) Release() {
	if b.refs.Add(-1) == 0 {
		b.gate.Release(b.bytes)
		b.parts = nil
	}
}

// Len returns the logical element count.
func (b *Buffer[T]) Len() int { return b.n }

// Bytes returns the buffer footprint in bytes, counted once across all names
// sharing it.
func (b *Buffer[T]) Bytes() int64 { return b.bytes }

// NumPartitions returns the partition count.
func (b *Buffer[T]) NumPartitions() int { return len(b.pmap) }

// PartitionMap returns the [start,end) bounds of every partition.
func (b *Buffer[T]) PartitionMap() []Partition { return b.pmap }

func (b *Buffer[T]) locate(i int) (part, off int) {
	// Partitions are near-uniform, so direct computation lands at most one
	// partition away from the right one.
	if len(b.pmap) == 1 {
		return 0, i
	}
	p := i * len(b.pmap) / b.n
	for p > 0 && i < b.pmap[p].Start {
		p--
	}
	for p < len(b.pmap)-1 && i >= b.pmap[p].End {
		p++
	}
	return p, i - b.pmap[p].Start
}

// At returns element i. The caller is responsible for bounds validation at
// the operation level; At panics on truly impossible indices.
func (b *Buffer[T]) At(i int) T {
	p, off := b.locate(i)
	return b.parts[p][off]
}

// Set writes element i.
func (b *Buffer[T]) Set(i int, v T) {
	p, off := b.locate(i)
	b.parts[p][off] = v
}

// Range copies elements [lo, hi) into one local slice, crossing partition
// boundaries as needed.
func (b *Buffer[T]) Range(lo, hi int) []T {
	if hi < lo {
		return nil
	}
	out := make([]T, hi-lo)
	b.copyRange(lo, hi, out)
	return out
}

func (b *Buffer[T]) copyRange(lo, hi int, dst []T) {
	for p, bounds := range b.pmap {
		if bounds.End <= lo || bounds.Start >= hi {
			continue
		}
		from := max(lo, bounds.Start)
		to := min(hi, bounds.End)
		copy(dst[from-lo:to-lo], b.parts[p][from-bounds.Start:to-bounds.Start])
	}
}

// CopyIn writes data starting at logical offset.
func (b *Buffer[T]) CopyIn(offset int, data []T) {
	lo := offset
	hi := offset + len(data)
	for p, bounds := range b.pmap {
		if bounds.End <= lo || bounds.Start >= hi {
			continue
		}
		from := max(lo, bounds.Start)
		to := min(hi, bounds.End)
		copy(b.parts[p][from-bounds.Start:to-bounds.Start], data[from-lo:to-lo])
	}
}

// ToSlice materializes the whole buffer locally.
func (b *Buffer[T]) ToSlice() []T {
	return b.Range(0, b.n)
}

// ForEachPartition runs fn over every partition concurrently and joins before
// returning. fn receives the partition index, its global start offset, and
// its local data. This is the fork-join primitive: any step depending on
// global completion runs only after ForEachPartition returns.
func (b *Buffer[T]) ForEachPartition(ctx context.Context, fn func(p, start int, data []T) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for p := range b.parts {
		p := p
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return fn(p, b.pmap[p].Start, b.parts[p])
		})
	}
	return g.Wait()
}
