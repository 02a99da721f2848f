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

package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hokiegeek2/arkouda/pkg/array"
	"github.com/hokiegeek2/arkouda/pkg/symbol"
)

// manifestEntry describes one checkpointed registry entry. Scalars inline
// their value; array entries point at raw little-endian data objects.
type manifestEntry struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	DType string `json:"dtype"`
	N     int    `json:"n"`
	M     int    `json:"m,omitempty"`
	Value string `json:"value,omitempty"`
}

type manifest struct {
	SavedAt time.Time       `json:"saved_at"`
	Entries []manifestEntry `json:"entries"`
}

// Save uploads every registered entry of table under namespace. The manifest
// is written last so a partial upload never looks complete.
func Save(ctx context.Context, store Store, namespace string, table *symbol.Table) (int, error) {
	names := table.RegisteredNames()
	entries := make([]manifestEntry, 0, len(names))
	for _, name := range names {
		obj, err := table.Lookup(name, "")
		if err != nil {
			return 0, err
		}
		entry, err := saveEntry(ctx, store, namespace, name, obj)
		if err != nil {
			return 0, fmt.Errorf("checkpoint %q: %w", name, err)
		}
		entries = append(entries, entry)
	}
	body, err := json.Marshal(manifest{SavedAt: time.Now().UTC(), Entries: entries})
	if err != nil {
		return 0, err
	}
	if err := store.UploadObject(ctx, manifestKey(namespace), body); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func saveEntry(ctx context.Context, store Store, namespace, name string, obj symbol.Object) (manifestEntry, error) {
	entry := manifestEntry{Name: name, Kind: string(obj.Kind()), DType: string(obj.DType())}
	switch v := obj.(type) {
	case *symbol.Scalar:
		entry.Value = v.Value
		return entry, nil
	case *symbol.TypedArray[int64]:
		entry.N = v.Data.Len()
		return entry, store.UploadObject(ctx, dataKey(namespace, name, "data"), array.EncodeInt64s(v.Data.ToSlice()))
	case *symbol.TypedArray[float64]:
		entry.N = v.Data.Len()
		return entry, store.UploadObject(ctx, dataKey(namespace, name, "data"), array.EncodeFloat64s(v.Data.ToSlice()))
	case *symbol.TypedArray[bool]:
		entry.N = v.Data.Len()
		return entry, store.UploadObject(ctx, dataKey(namespace, name, "data"), array.EncodeBools(v.Data.ToSlice()))
	case *symbol.TypedArray[uint8]:
		entry.N = v.Data.Len()
		return entry, store.UploadObject(ctx, dataKey(namespace, name, "data"), v.Data.ToSlice())
	case *symbol.SegmentedArray[uint8]:
		entry.N = v.Seg.Len()
		entry.M = v.Seg.ValuesLen()
		if err := store.UploadObject(ctx, dataKey(namespace, name, "segments"), array.EncodeInt64s(v.Seg.Segments.ToSlice())); err != nil {
			return entry, err
		}
		return entry, store.UploadObject(ctx, dataKey(namespace, name, "values"), v.Seg.Values.ToSlice())
	case *symbol.SegmentedArray[int64]:
		entry.N = v.Seg.Len()
		entry.M = v.Seg.ValuesLen()
		if err := store.UploadObject(ctx, dataKey(namespace, name, "segments"), array.EncodeInt64s(v.Seg.Segments.ToSlice())); err != nil {
			return entry, err
		}
		return entry, store.UploadObject(ctx, dataKey(namespace, name, "values"), array.EncodeInt64s(v.Seg.Values.ToSlice()))
	default:
		return entry, fmt.Errorf("unsupported entry variant %T", obj)
	}
}

// Load restores the namespace's manifest into table, binding every entry
// under its registered name. Returns the number of restored entries.
func Load(ctx context.Context, store Store, namespace string, table *symbol.Table, numParts int) (int, error) {
	body, err := store.DownloadObject(ctx, manifestKey(namespace))
	if err != nil {
		return 0, err
	}
	var m manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return 0, fmt.Errorf("parse manifest: %w", err)
	}
	restored := 0
	for _, entry := range m.Entries {
		obj, err := loadEntry(ctx, store, namespace, entry, table, numParts)
		if err != nil {
			return restored, fmt.Errorf("restore %q: %w", entry.Name, err)
		}
		table.Bind(entry.Name, obj, true)
		restored++
	}
	return restored, nil
}

func loadEntry(ctx context.Context, store Store, namespace string, entry manifestEntry, gate array.MemoryGate, numParts int) (symbol.Object, error) {
	if symbol.Kind(entry.Kind) == symbol.KindScalar {
		return &symbol.Scalar{DT: symbol.DType(entry.DType), Value: entry.Value}, nil
	}

	if symbol.Kind(entry.Kind) == symbol.KindSegmented {
		segBytes, err := store.DownloadObject(ctx, dataKey(namespace, entry.Name, "segments"))
		if err != nil {
			return nil, err
		}
		valBytes, err := store.DownloadObject(ctx, dataKey(namespace, entry.Name, "values"))
		if err != nil {
			return nil, err
		}
		segments, err := array.FromSlice(array.DecodeInt64s(segBytes), numParts, gate)
		if err != nil {
			return nil, err
		}
		switch symbol.DType(entry.DType) {
		case symbol.Str:
			values, err := array.FromSlice(valBytes, numParts, gate)
			if err != nil {
				segments.Release()
				return nil, err
			}
			seg, err := array.NewSegmented(ctx, segments, values, gate)
			if err != nil {
				segments.Release()
				values.Release()
				return nil, err
			}
			return symbol.NewSegString(seg), nil
		case symbol.Int64:
			values, err := array.FromSlice(array.DecodeInt64s(valBytes), numParts, gate)
			if err != nil {
				segments.Release()
				return nil, err
			}
			seg, err := array.NewSegmented(ctx, segments, values, gate)
			if err != nil {
				segments.Release()
				values.Release()
				return nil, err
			}
			return symbol.NewSegInt64(seg), nil
		default:
			segments.Release()
			return nil, fmt.Errorf("unsupported segmented dtype %q", entry.DType)
		}
	}

	data, err := store.DownloadObject(ctx, dataKey(namespace, entry.Name, "data"))
	if err != nil {
		return nil, err
	}
	switch symbol.DType(entry.DType) {
	case symbol.Int64:
		buf, err := array.FromSlice(array.DecodeInt64s(data), numParts, gate)
		if err != nil {
			return nil, err
		}
		return symbol.NewInt64Array(buf), nil
	case symbol.Float64:
		buf, err := array.FromSlice(array.DecodeFloat64s(data), numParts, gate)
		if err != nil {
			return nil, err
		}
		return symbol.NewFloat64Array(buf), nil
	case symbol.Bool:
		buf, err := array.FromSlice(array.DecodeBools(data), numParts, gate)
		if err != nil {
			return nil, err
		}
		return symbol.NewBoolArray(buf), nil
	case symbol.Uint8:
		buf, err := array.FromSlice(data, numParts, gate)
		if err != nil {
			return nil, err
		}
		return symbol.NewUint8Array(buf), nil
	default:
		return nil, fmt.Errorf("unsupported dtype %q", entry.DType)
	}
}
