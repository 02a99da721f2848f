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

// Package symbol implements the process-wide object registry: named, owned
// array objects shared between commands by reference count.
package symbol

import (
	"fmt"

	"github.com/hokiegeek2/arkouda/pkg/array"
)

// Kind discriminates the registry's closed set of entry variants.
type Kind string

const (
	KindScalar    Kind = "scalar"
	KindArray     Kind = "array"
	KindSegmented Kind = "segarray"
)

// DType names an element type.
type DType string

const (
	Int64   DType = "int64"
	Float64 DType = "float64"
	Bool    DType = "bool"
	Uint8   DType = "uint8"
	Str     DType = "str"
)

// ParseDType validates a client-supplied dtype token.
func ParseDType(s string) (DType, error) {
	switch DType(s) {
	case Int64, Float64, Bool, Uint8, Str:
		return DType(s), nil
	}
	return "", fmt.Errorf("unsupported dtype %q", s)
}

// Object is the closed union of registry entry variants. New dtypes are new
// type parameters on the existing variants, not new implementations.
type Object interface {
	Kind() Kind
	DType() DType
	// Bytes is the entry's buffer footprint; shared buffers are counted on
	// the buffer, not per name.
	Bytes() int64
	// Describe renders "kind dtype size..." for replies and info listings.
	Describe() string
	retain()
	release()
	sealed()
}

// Scalar is a single typed value, kept in its reply rendering.
type Scalar struct {
	DT    DType
	Value string
}

func (s *Scalar) Kind() Kind       { return KindScalar }
func (s *Scalar) DType() DType     { return s.DT }
func (s *Scalar) Bytes() int64     { return int64(len(s.Value)) }
func (s *Scalar) Describe() string { return fmt.Sprintf("%s %s %s", KindScalar, s.DT, s.Value) }
func (s *Scalar) retain()          {}
func (s *Scalar) release()         {}
func (s *Scalar) sealed()          {}

// TypedArray is a flat partitioned array of one dtype.
type TypedArray[T any] struct {
	DT   DType
	Data *array.Buffer[T]
}

func (a *TypedArray[T]) Kind() Kind   { return KindArray }
func (a *TypedArray[T]) DType() DType { return a.DT }
func (a *TypedArray[T]) Bytes() int64 { return a.Data.Bytes() }
func (a *TypedArray[T]) Describe() string {
	return fmt.Sprintf("%s %s %d", KindArray, a.DT, a.Data.Len())
}
func (a *TypedArray[T]) retain()  { a.Data.Retain() }
func (a *TypedArray[T]) release() { a.Data.Release() }
func (a *TypedArray[T]) sealed()  {}

// NewInt64Array wraps an int64 buffer as a registry entry.
func NewInt64Array(data *array.Buffer[int64]) *TypedArray[int64] {
	return &TypedArray[int64]{DT: Int64, Data: data}
}

// NewFloat64Array wraps a float64 buffer as a registry entry.
func NewFloat64Array(data *array.Buffer[float64]) *TypedArray[float64] {
	return &TypedArray[float64]{DT: Float64, Data: data}
}

// NewBoolArray wraps a bool buffer as a registry entry.
func NewBoolArray(data *array.Buffer[bool]) *TypedArray[bool] {
	return &TypedArray[bool]{DT: Bool, Data: data}
}

// NewUint8Array wraps a byte buffer as a registry entry.
func NewUint8Array(data *array.Buffer[uint8]) *TypedArray[uint8] {
	return &TypedArray[uint8]{DT: Uint8, Data: data}
}

// SegmentedArray is a segmented (variable-length-record) entry. The value
// dtype is Str for byte records and the element dtype for nested arrays.
type SegmentedArray[T any] struct {
	DT  DType
	Seg *array.Segmented[T]
}

func (a *SegmentedArray[T]) Kind() Kind   { return KindSegmented }
func (a *SegmentedArray[T]) DType() DType { return a.DT }
func (a *SegmentedArray[T]) Bytes() int64 { return a.Seg.Bytes() }
func (a *SegmentedArray[T]) Describe() string {
	return fmt.Sprintf("%s %s %d %d", KindSegmented, a.DT, a.Seg.Len(), a.Seg.ValuesLen())
}
func (a *SegmentedArray[T]) retain()  { a.Seg.Retain() }
func (a *SegmentedArray[T]) release() { a.Seg.Release() }
func (a *SegmentedArray[T]) sealed()  {}

// NewSegString wraps a byte-valued segmented array as a registry entry.
func NewSegString(seg *array.Segmented[uint8]) *SegmentedArray[uint8] {
	return &SegmentedArray[uint8]{DT: Str, Seg: seg}
}

// NewSegInt64 wraps an int64-valued segmented array as a registry entry.
func NewSegInt64(seg *array.Segmented[int64]) *SegmentedArray[int64] {
	return &SegmentedArray[int64]{DT: Int64, Seg: seg}
}
