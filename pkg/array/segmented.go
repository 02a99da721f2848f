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

package array

import (
	"context"
	"fmt"

	"github.com/hokiegeek2/arkouda/pkg/protocol"
)

// Segmented is an ordered sequence of N variable-length records stored
// columnar: Segments holds the start offset of each record into the flat
// Values buffer. Instances are immutable once constructed; every operation
// below produces a new instance.
type Segmented[T any] struct {
	Segments *Buffer[int64]
	Values   *Buffer[T]
	lengths  *Buffer[int64]
}

// GatherStrategy selects how Gather moves record bytes into the output.
type GatherStrategy int

const (
	// GatherLocal copies each record's range directly, index by index.
	GatherLocal GatherStrategy = iota
	// GatherLocalizedSlice materializes a local view of each record's source
	// range, then copies element by element from the view.
	GatherLocalizedSlice
	// GatherScan reconstructs the source index of every destination element
	// via a parallel prefix sum, then gathers in one bulk parallel pass.
	GatherScan
)

// NewSegmented binds segments and values as a segmented array, taking
// ownership of both buffers. The segments must be non-decreasing, start at or
// above zero, and stay within the values buffer; violations fail with
// ErrOutOfBounds. Lengths are derived eagerly.
func NewSegmented[T any](ctx context.Context, segments *Buffer[int64], values *Buffer[T], gate MemoryGate) (*Segmented[T], error) {
	n := segments.Len()
	m := int64(values.Len())
	if n > 0 {
		if first := segments.At(0); first < 0 {
			return nil, fmt.Errorf("%w: segments[0] = %d", protocol.ErrOutOfBounds, first)
		}
		if last := segments.At(n - 1); last > m {
			return nil, fmt.Errorf("%w: segments[%d] = %d exceeds values length %d", protocol.ErrOutOfBounds, n-1, last, m)
		}
	}
	// Monotonicity check is data-parallel; each partition also checks its
	// seam against the previous partition's last offset.
	err := segments.ForEachPartition(ctx, func(p, start int, data []int64) error {
		prev := int64(0)
		if start > 0 {
			prev = segments.At(start - 1)
		}
		for i, v := range data {
			if v < prev {
				return fmt.Errorf("%w: segments[%d] = %d decreases below %d", protocol.ErrOutOfBounds, start+i, v, prev)
			}
			prev = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	lengths, err := New[int64](n, segments.NumPartitions(), gate)
	if err != nil {
		return nil, err
	}
	err = segments.ForEachPartition(ctx, func(p, start int, data []int64) error {
		local := make([]int64, len(data))
		for i := range data {
			gi := start + i
			end := m
			if gi < n-1 {
				end = segments.At(gi + 1)
			}
			local[i] = end - data[i]
		}
		lengths.CopyIn(start, local)
		return nil
	})
	if err != nil {
		lengths.Release()
		return nil, err
	}
	return &Segmented[T]{Segments: segments, Values: values, lengths: lengths}, nil
}

// FromStrings builds a segmented byte array from whole strings.
func FromStrings(ctx context.Context, strs []string, numParts int, gate MemoryGate) (*Segmented[uint8], error) {
	offsets := make([]int64, len(strs))
	var total int64
	for i, s := range strs {
		offsets[i] = total
		total += int64(len(s))
	}
	flat := make([]uint8, 0, total)
	for _, s := range strs {
		flat = append(flat, s...)
	}
	segments, err := FromSlice(offsets, numParts, gate)
	if err != nil {
		return nil, err
	}
	values, err := FromSlice(flat, numParts, gate)
	if err != nil {
		segments.Release()
		return nil, err
	}
	return NewSegmented(ctx, segments, values, gate)
}

// Retain adds a shared reference on all owned buffers.
func (s *Segmented[T]) Retain() {
	s.Segments.Retain()
	s.Values.Retain()
	s.lengths.Retain()
}

// Release drops the array's references on all owned buffers.
func (s *Segmented[T]) Release() {
	s.Segments.Release()
	s.Values.Release()
	s.lengths.Release()
}

// Len returns the record count N.
func (s *Segmented[T]) Len() int { return s.Segments.Len() }

// ValuesLen returns the flat element count M.
func (s *Segmented[T]) ValuesLen() int { return s.Values.Len() }

// Lengths returns the derived per-record lengths.
func (s *Segmented[T]) Lengths() *Buffer[int64] { return s.lengths }

// Bytes returns the total footprint of the three buffers.
func (s *Segmented[T]) Bytes() int64 {
	return s.Segments.Bytes() + s.Values.Bytes() + s.lengths.Bytes()
}

func (s *Segmented[T]) segEnd(i int) int64 {
	if i < s.Len()-1 {
		return s.Segments.At(i + 1)
	}
	return int64(s.Values.Len())
}

// Index returns a copy of record i's elements.
func (s *Segmented[T]) Index(i int) ([]T, error) {
	if i < 0 || i >= s.Len() {
		return nil, fmt.Errorf("%w: index %d not in [0, %d)", protocol.ErrOutOfBounds, i, s.Len())
	}
	start := s.Segments.At(i)
	return s.Values.Range(int(start), int(s.segEnd(i))), nil
}

// Slice returns a new segmented array covering records [lo, hi] inclusive.
// The result's offsets are re-based to zero. hi < lo yields an empty array.
func (s *Segmented[T]) Slice(ctx context.Context, lo, hi int, gate MemoryGate) (*Segmented[T], error) {
	if s.Len() == 0 || hi < lo {
		return emptySegmented[T](ctx, s.Segments.NumPartitions(), gate)
	}
	if lo < 0 || hi >= s.Len() {
		return nil, fmt.Errorf("%w: slice [%d, %d] not in [0, %d)", protocol.ErrOutOfBounds, lo, hi, s.Len())
	}
	base := s.Segments.At(lo)
	end := s.segEnd(hi)
	values, err := FromSlice(s.Values.Range(int(base), int(end)), s.Values.NumPartitions(), gate)
	if err != nil {
		return nil, err
	}
	rebased := make([]int64, hi-lo+1)
	for i := range rebased {
		rebased[i] = s.Segments.At(lo+i) - base
	}
	segments, err := FromSlice(rebased, s.Segments.NumPartitions(), gate)
	if err != nil {
		values.Release()
		return nil, err
	}
	return NewSegmented(ctx, segments, values, gate)
}

// Gather produces a new segmented array holding records iv[0], iv[1], ... in
// that order. Repeats and arbitrary order are permitted. smallHint selects
// the localized-slice strategy for multi-partition gathers of small result
// sets; a single partition always uses the local strategy.
func (s *Segmented[T]) Gather(ctx context.Context, iv []int64, smallHint bool, gate MemoryGate) (*Segmented[T], error) {
	strategy := GatherScan
	if s.Values.NumPartitions() == 1 {
		strategy = GatherLocal
	} else if smallHint {
		strategy = GatherLocalizedSlice
	}
	return s.GatherWith(ctx, iv, strategy, gate)
}

// GatherWith is Gather with an explicit strategy. All strategies produce
// identical output for the same index sequence.
func (s *Segmented[T]) GatherWith(ctx context.Context, iv []int64, strategy GatherStrategy, gate MemoryGate) (*Segmented[T], error) {
	n := int64(s.Len())
	for k, idx := range iv {
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("%w: gather index %d at position %d not in [0, %d)", protocol.ErrOutOfBounds, idx, k, n)
		}
	}
	if len(iv) == 0 {
		return emptySegmented[T](ctx, s.Segments.NumPartitions(), gate)
	}

	// Record boundaries and destination offsets for every requested index.
	left := make([]int64, len(iv))
	right := make([]int64, len(iv))
	for k, idx := range iv {
		left[k] = s.Segments.At(int(idx))
		right[k] = s.segEnd(int(idx))
	}
	glens, err := New[int64](len(iv), s.Segments.NumPartitions(), gate)
	if err != nil {
		return nil, err
	}
	for k := range iv {
		glens.Set(k, right[k]-left[k])
	}
	destOff, total, err := ExclusiveScan(ctx, glens, gate)
	if err != nil {
		glens.Release()
		return nil, err
	}

	values, err := New[T](int(total), s.Values.NumPartitions(), gate)
	if err != nil {
		glens.Release()
		destOff.Release()
		return nil, err
	}

	switch strategy {
	case GatherLocal:
		err = s.gatherDirect(iv, left, right, destOff, values, false)
	case GatherLocalizedSlice:
		err = s.gatherDirect(iv, left, right, destOff, values, true)
	case GatherScan:
		err = s.gatherScan(ctx, left, right, destOff, total, values, gate)
	default:
		err = fmt.Errorf("unknown gather strategy %d", strategy)
	}
	if err != nil {
		glens.Release()
		destOff.Release()
		values.Release()
		return nil, err
	}
	return &Segmented[T]{Segments: destOff, Values: values, lengths: glens}, nil
}

// gatherDirect issues one range fetch per requested record. With localized
// set, the source range is first materialized as a local view and copied
// element by element; otherwise the range is copied in directly.
func (s *Segmented[T]) gatherDirect(iv []int64, left, right []int64, destOff *Buffer[int64], values *Buffer[T], localized bool) error {
	for k := range iv {
		dst := destOff.At(k)
		if localized {
			view := s.Values.Range(int(left[k]), int(right[k]))
			for j, v := range view {
				values.Set(int(dst)+j, v)
			}
			continue
		}
		values.CopyIn(int(dst), s.Values.Range(int(left[k]), int(right[k])))
	}
	return nil
}

// gatherScan reconstructs the source index of every destination element via
// an inclusive prefix sum, then gathers in one parallel pass. The seed array
// holds 1 everywhere; each destination-record boundary is overwritten with
// the signed jump from the end of the previously gathered record to the start
// of the next, so the running sum walks the source cursor exactly.
func (s *Segmented[T]) gatherScan(ctx context.Context, left, right []int64, destOff *Buffer[int64], total int64, values *Buffer[T], gate MemoryGate) error {
	srcIdx, err := New[int64](int(total), values.NumPartitions(), gate)
	if err != nil {
		return err
	}
	defer srcIdx.Release()

	err = srcIdx.ForEachPartition(ctx, func(_, _ int, data []int64) error {
		for i := range data {
			data[i] = 1
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Empty records occupy no destination elements, so their boundaries write
	// nothing; the jump for the next non-empty record spans back to the end
	// of the last record that produced output.
	first := true
	var prevEnd int64
	for k := range left {
		if right[k] == left[k] {
			continue
		}
		if first {
			srcIdx.Set(int(destOff.At(k)), left[k])
			first = false
		} else {
			srcIdx.Set(int(destOff.At(k)), left[k]-(prevEnd-1))
		}
		prevEnd = right[k]
	}

	if _, err := InclusiveScanInPlace(ctx, srcIdx); err != nil {
		return err
	}

	// Bulk elementwise gather; no further cross-partition coordination.
	return values.ForEachPartition(ctx, func(_, start int, data []T) error {
		for i := range data {
			data[i] = s.Values.At(int(srcIdx.At(start + i)))
		}
		return nil
	})
}

// Compress keeps the records whose mask entry is true, in original order.
// The mask must have exactly N entries.
func (s *Segmented[T]) Compress(ctx context.Context, mask []bool, gate MemoryGate) (*Segmented[T], error) {
	if len(mask) != s.Len() {
		return nil, fmt.Errorf("%w: mask length %d does not match %d records", protocol.ErrOutOfBounds, len(mask), s.Len())
	}
	flags, err := New[int64](len(mask), s.Segments.NumPartitions(), gate)
	if err != nil {
		return nil, err
	}
	defer flags.Release()
	err = flags.ForEachPartition(ctx, func(_, start int, data []int64) error {
		for i := range data {
			if mask[start+i] {
				data[i] = 1
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	positions, survivors, err := ExclusiveScan(ctx, flags, gate)
	if err != nil {
		return nil, err
	}
	defer positions.Release()
	if survivors == 0 {
		return emptySegmented[T](ctx, s.Segments.NumPartitions(), gate)
	}
	iv := make([]int64, survivors)
	for i, keep := range mask {
		if keep {
			iv[positions.At(i)] = int64(i)
		}
	}
	return s.Gather(ctx, iv, false, gate)
}

// NonEmptyMask returns one flag per record, true where the record has
// nonzero length.
func (s *Segmented[T]) NonEmptyMask(ctx context.Context, gate MemoryGate) (*Buffer[bool], error) {
	mask, err := New[bool](s.Len(), s.Segments.NumPartitions(), gate)
	if err != nil {
		return nil, err
	}
	err = s.lengths.ForEachPartition(ctx, func(_, start int, data []int64) error {
		local := make([]bool, len(data))
		for i, v := range data {
			local[i] = v > 0
		}
		mask.CopyIn(start, local)
		return nil
	})
	if err != nil {
		mask.Release()
		return nil, err
	}
	return mask, nil
}

// NonEmptyCount reduces the non-empty mask to a count.
func (s *Segmented[T]) NonEmptyCount(ctx context.Context) (int64, error) {
	counts := make([]int64, s.lengths.NumPartitions())
	err := s.lengths.ForEachPartition(ctx, func(p, _ int, data []int64) error {
		var c int64
		for _, v := range data {
			if v > 0 {
				c++
			}
		}
		counts[p] = c
		return nil
	})
	if err != nil {
		return 0, err
	}
	var total int64
	for _, c := range counts {
		total += c
	}
	return total, nil
}

func emptySegmented[T any](ctx context.Context, numParts int, gate MemoryGate) (*Segmented[T], error) {
	segments, err := New[int64](0, numParts, gate)
	if err != nil {
		return nil, err
	}
	values, err := New[T](0, numParts, gate)
	if err != nil {
		segments.Release()
		return nil, err
	}
	return NewSegmented(ctx, segments, values, gate)
}
