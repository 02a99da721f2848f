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

package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hokiegeek2/arkouda/pkg/array"
	"github.com/hokiegeek2/arkouda/pkg/protocol"
	"github.com/hokiegeek2/arkouda/pkg/symbol"
)

func wrapStr(s *array.Segmented[uint8]) symbol.Object { return symbol.NewSegString(s) }
func wrapInt(s *array.Segmented[int64]) symbol.Object { return symbol.NewSegInt64(s) }

// withSeg resolves name as a segmented entry and dispatches on its value
// dtype. Registry entries are a closed union, so the two cases are
// exhaustive.
func (rt *Runtime) withSeg(name string,
	fnStr func(*array.Segmented[uint8]) (string, error),
	fnInt func(*array.Segmented[int64]) (string, error)) (Result, error) {
	obj, err := rt.Table.Lookup(name, symbol.KindSegmented)
	if err != nil {
		return Result{}, err
	}
	var body string
	switch v := obj.(type) {
	case *symbol.SegmentedArray[uint8]:
		body, err = fnStr(v.Seg)
	case *symbol.SegmentedArray[int64]:
		body, err = fnInt(v.Seg)
	default:
		return Result{}, fmt.Errorf("%w: %q has unexpected value dtype %s", protocol.ErrTypeMismatch, name, obj.DType())
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Body: body}, nil
}

// handleSegArray binds two flat array entries as a new segmented entry. The
// component buffers are shared by reference, not copied.
func (rt *Runtime) handleSegArray(ctx context.Context, req *Request) (Result, error) {
	args, err := needArgs(req, 2)
	if err != nil {
		return Result{}, err
	}
	segObj, err := rt.Table.Lookup(args[0], symbol.KindArray)
	if err != nil {
		return Result{}, err
	}
	segments, ok := segObj.(*symbol.TypedArray[int64])
	if !ok {
		return Result{}, fmt.Errorf("%w: segments %q must be int64, got %s", protocol.ErrTypeMismatch, args[0], segObj.DType())
	}
	valObj, err := rt.Table.Lookup(args[1], symbol.KindArray)
	if err != nil {
		return Result{}, err
	}
	var entry symbol.Object
	switch v := valObj.(type) {
	case *symbol.TypedArray[uint8]:
		seg, err := bindSegmented(ctx, rt, segments.Data, v.Data)
		if err != nil {
			return Result{}, err
		}
		entry = symbol.NewSegString(seg)
	case *symbol.TypedArray[int64]:
		seg, err := bindSegmented(ctx, rt, segments.Data, v.Data)
		if err != nil {
			return Result{}, err
		}
		entry = symbol.NewSegInt64(seg)
	default:
		return Result{}, fmt.Errorf("%w: values %q must be uint8 or int64, got %s", protocol.ErrTypeMismatch, args[1], valObj.DType())
	}
	name := rt.Table.Create(entry)
	return Result{Body: created(name, entry)}, nil
}

func bindSegmented[T any](ctx context.Context, rt *Runtime, segments *array.Buffer[int64], values *array.Buffer[T]) (*array.Segmented[T], error) {
	segments.Retain()
	values.Retain()
	seg, err := array.NewSegmented(ctx, segments, values, rt.Table)
	if err != nil {
		segments.Release()
		values.Release()
		return nil, err
	}
	return seg, nil
}

func (rt *Runtime) handleSegmentedIndex(ctx context.Context, req *Request) (Result, error) {
	args, err := needArgs(req, 2)
	if err != nil {
		return Result{}, err
	}
	i, err := strconv.Atoi(args[1])
	if err != nil {
		return Result{}, fmt.Errorf("%w: bad index %q", protocol.ErrDecode, args[1])
	}
	return rt.withSeg(args[0],
		func(s *array.Segmented[uint8]) (string, error) {
			rec, err := s.Index(i)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("item str %d %q", i, string(rec)), nil
		},
		func(s *array.Segmented[int64]) (string, error) {
			rec, err := s.Index(i)
			if err != nil {
				return "", err
			}
			parts := make([]string, len(rec))
			for j, v := range rec {
				parts[j] = strconv.FormatInt(v, 10)
			}
			return fmt.Sprintf("item int64 %d [%s]", i, strings.Join(parts, " ")), nil
		})
}

func (rt *Runtime) handleSegmentedSlice(ctx context.Context, req *Request) (Result, error) {
	args, err := needArgs(req, 3)
	if err != nil {
		return Result{}, err
	}
	lo, err := strconv.Atoi(args[1])
	if err != nil {
		return Result{}, fmt.Errorf("%w: bad slice bound %q", protocol.ErrDecode, args[1])
	}
	hi, err := strconv.Atoi(args[2])
	if err != nil {
		return Result{}, fmt.Errorf("%w: bad slice bound %q", protocol.ErrDecode, args[2])
	}
	return rt.withSeg(args[0],
		func(s *array.Segmented[uint8]) (string, error) {
			return segSlice(ctx, rt, s, lo, hi, wrapStr)
		},
		func(s *array.Segmented[int64]) (string, error) {
			return segSlice(ctx, rt, s, lo, hi, wrapInt)
		})
}

func segSlice[T any](ctx context.Context, rt *Runtime, s *array.Segmented[T], lo, hi int, wrap func(*array.Segmented[T]) symbol.Object) (string, error) {
	out, err := s.Slice(ctx, lo, hi, rt.Table)
	if err != nil {
		return "", err
	}
	entry := wrap(out)
	return created(rt.Table.Create(entry), entry), nil
}

// handleSegmentedGather materializes records iv[0], iv[1], ... in order,
// where iv is a registered int64 array. The optional third argument hints
// that the result is small enough for the localized-slice strategy.
func (rt *Runtime) handleSegmentedGather(ctx context.Context, req *Request) (Result, error) {
	args, err := needArgs(req, 2)
	if err != nil {
		return Result{}, err
	}
	ivObj, err := rt.Table.Lookup(args[1], symbol.KindArray)
	if err != nil {
		return Result{}, err
	}
	ivArr, ok := ivObj.(*symbol.TypedArray[int64])
	if !ok {
		return Result{}, fmt.Errorf("%w: index vector %q must be int64, got %s", protocol.ErrTypeMismatch, args[1], ivObj.DType())
	}
	iv := ivArr.Data.ToSlice()
	smallHint := false
	if len(args) > 2 {
		smallHint, err = strconv.ParseBool(args[2])
		if err != nil {
			return Result{}, fmt.Errorf("%w: bad hint %q", protocol.ErrDecode, args[2])
		}
	}
	return rt.withSeg(args[0],
		func(s *array.Segmented[uint8]) (string, error) {
			return segGather(ctx, rt, s, iv, smallHint, wrapStr)
		},
		func(s *array.Segmented[int64]) (string, error) {
			return segGather(ctx, rt, s, iv, smallHint, wrapInt)
		})
}

func segGather[T any](ctx context.Context, rt *Runtime, s *array.Segmented[T], iv []int64, smallHint bool, wrap func(*array.Segmented[T]) symbol.Object) (string, error) {
	out, err := s.Gather(ctx, iv, smallHint, rt.Table)
	if err != nil {
		return "", err
	}
	entry := wrap(out)
	return created(rt.Table.Create(entry), entry), nil
}

func (rt *Runtime) handleSegmentedCompress(ctx context.Context, req *Request) (Result, error) {
	args, err := needArgs(req, 2)
	if err != nil {
		return Result{}, err
	}
	maskObj, err := rt.Table.Lookup(args[1], symbol.KindArray)
	if err != nil {
		return Result{}, err
	}
	maskArr, ok := maskObj.(*symbol.TypedArray[bool])
	if !ok {
		return Result{}, fmt.Errorf("%w: mask %q must be bool, got %s", protocol.ErrTypeMismatch, args[1], maskObj.DType())
	}
	mask := maskArr.Data.ToSlice()
	return rt.withSeg(args[0],
		func(s *array.Segmented[uint8]) (string, error) {
			return segCompress(ctx, rt, s, mask, wrapStr)
		},
		func(s *array.Segmented[int64]) (string, error) {
			return segCompress(ctx, rt, s, mask, wrapInt)
		})
}

func segCompress[T any](ctx context.Context, rt *Runtime, s *array.Segmented[T], mask []bool, wrap func(*array.Segmented[T]) symbol.Object) (string, error) {
	out, err := s.Compress(ctx, mask, rt.Table)
	if err != nil {
		return "", err
	}
	entry := wrap(out)
	return created(rt.Table.Create(entry), entry), nil
}

// handleSegmentedLengths exposes the derived lengths as a new int64 entry
// sharing the underlying buffer.
func (rt *Runtime) handleSegmentedLengths(ctx context.Context, req *Request) (Result, error) {
	args, err := needArgs(req, 1)
	if err != nil {
		return Result{}, err
	}
	export := func(lengths *array.Buffer[int64]) (string, error) {
		lengths.Retain()
		entry := symbol.NewInt64Array(lengths)
		return created(rt.Table.Create(entry), entry), nil
	}
	return rt.withSeg(args[0],
		func(s *array.Segmented[uint8]) (string, error) { return export(s.Lengths()) },
		func(s *array.Segmented[int64]) (string, error) { return export(s.Lengths()) })
}

func (rt *Runtime) handleSegmentedNonEmpty(ctx context.Context, req *Request) (Result, error) {
	args, err := needArgs(req, 1)
	if err != nil {
		return Result{}, err
	}
	nonEmpty := func(mask *array.Buffer[bool], count int64) (string, error) {
		entry := symbol.NewBoolArray(mask)
		return fmt.Sprintf("%s nonempty %d", created(rt.Table.Create(entry), entry), count), nil
	}
	return rt.withSeg(args[0],
		func(s *array.Segmented[uint8]) (string, error) {
			mask, err := s.NonEmptyMask(ctx, rt.Table)
			if err != nil {
				return "", err
			}
			count, err := s.NonEmptyCount(ctx)
			if err != nil {
				mask.Release()
				return "", err
			}
			return nonEmpty(mask, count)
		},
		func(s *array.Segmented[int64]) (string, error) {
			mask, err := s.NonEmptyMask(ctx, rt.Table)
			if err != nil {
				return "", err
			}
			count, err := s.NonEmptyCount(ctx)
			if err != nil {
				mask.Release()
				return "", err
			}
			return nonEmpty(mask, count)
		})
}

// handleSegmentedComponents registers the segments, values, and lengths
// buffers as three new flat entries, each a shared reference.
func (rt *Runtime) handleSegmentedComponents(ctx context.Context, req *Request) (Result, error) {
	args, err := needArgs(req, 1)
	if err != nil {
		return Result{}, err
	}
	return rt.withSeg(args[0],
		func(s *array.Segmented[uint8]) (string, error) {
			s.Values.Retain()
			return segComponents(rt, s.Segments, s.Lengths(), symbol.NewUint8Array(s.Values)), nil
		},
		func(s *array.Segmented[int64]) (string, error) {
			s.Values.Retain()
			return segComponents(rt, s.Segments, s.Lengths(), symbol.NewInt64Array(s.Values)), nil
		})
}

func segComponents(rt *Runtime, segments, lengths *array.Buffer[int64], valEntry symbol.Object) string {
	segments.Retain()
	lengths.Retain()
	segEntry := symbol.NewInt64Array(segments)
	lenEntry := symbol.NewInt64Array(lengths)
	parts := []string{
		created(rt.Table.Create(segEntry), segEntry),
		created(rt.Table.Create(valEntry), valEntry),
		created(rt.Table.Create(lenEntry), lenEntry),
	}
	return strings.Join(parts, "+")
}
