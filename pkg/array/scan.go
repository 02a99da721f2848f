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

import "context"

// InclusiveScanInPlace replaces each element with the cumulative sum up to
// and including it. Two parallel passes with a barrier between: local scans
// per partition, then a fixup adding each partition's running base.
func InclusiveScanInPlace(ctx context.Context, b *Buffer[int64]) (total int64, err error) {
	sums := make([]int64, b.NumPartitions())
	err = b.ForEachPartition(ctx, func(p, _ int, data []int64) error {
		var acc int64
		for i, v := range data {
			acc += v
			data[i] = acc
		}
		sums[p] = acc
		return nil
	})
	if err != nil {
		return 0, err
	}

	// Serial over partitions only; partition counts are small.
	bases := make([]int64, len(sums))
	var acc int64
	for p, s := range sums {
		bases[p] = acc
		acc += s
	}

	err = b.ForEachPartition(ctx, func(p, _ int, data []int64) error {
		base := bases[p]
		if base == 0 {
			return nil
		}
		for i := range data {
			data[i] += base
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return acc, nil
}

// ExclusiveScan returns a new buffer where element i holds the sum of
// elements [0, i) of b, plus the inclusive total.
func ExclusiveScan(ctx context.Context, b *Buffer[int64], gate MemoryGate) (*Buffer[int64], int64, error) {
	out, err := New[int64](b.Len(), b.NumPartitions(), gate)
	if err != nil {
		return nil, 0, err
	}
	err = b.ForEachPartition(ctx, func(p, start int, data []int64) error {
		out.CopyIn(start, data)
		return nil
	})
	if err != nil {
		out.Release()
		return nil, 0, err
	}
	total, err := InclusiveScanInPlace(ctx, out)
	if err != nil {
		out.Release()
		return nil, 0, err
	}
	// Capture each partition's incoming boundary value before the shift; the
	// shift pass overwrites the element it would read across the boundary.
	boundary := make([]int64, out.NumPartitions())
	for p, bounds := range out.PartitionMap() {
		if bounds.Start > 0 && bounds.End > bounds.Start {
			boundary[p] = out.At(bounds.Start - 1)
		}
	}

	// Shift right by one: exclusive[i] = inclusive[i-1], exclusive[0] = 0.
	err = out.ForEachPartition(ctx, func(p, start int, data []int64) error {
		for i := len(data) - 1; i > 0; i-- {
			data[i] = data[i-1]
		}
		if len(data) > 0 {
			data[0] = boundary[p]
		}
		return nil
	})
	if err != nil {
		out.Release()
		return nil, 0, err
	}
	return out, total, nil
}
