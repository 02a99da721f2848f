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
	"errors"
	"fmt"
	"testing"

	"github.com/hokiegeek2/arkouda/pkg/array"
	"github.com/hokiegeek2/arkouda/pkg/protocol"
)

func newInt64Entry(t *testing.T, tbl *Table, data []int64) *TypedArray[int64] {
	t.Helper()
	buf, err := array.FromSlice(data, 2, tbl)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	return NewInt64Array(buf)
}

func TestCreateGeneratesUniqueNames(t *testing.T) {
	tbl := NewTable()
	seen := make(map[string]struct{})
	for i := 0; i < 10; i++ {
		name := tbl.Create(&Scalar{DT: Int64, Value: fmt.Sprint(i)})
		if _, dup := seen[name]; dup {
			t.Fatalf("duplicate generated name %q", name)
		}
		seen[name] = struct{}{}
	}
	if tbl.Size() != 10 {
		t.Fatalf("size = %d, want 10", tbl.Size())
	}
}

func TestLookupErrors(t *testing.T) {
	tbl := NewTable()
	name := tbl.Create(newInt64Entry(t, tbl, []int64{1, 2, 3}))

	if _, err := tbl.Lookup("no_such", ""); !errors.Is(err, protocol.ErrNotFound) {
		t.Fatalf("missing name: got %v", err)
	}
	if _, err := tbl.Lookup(name, KindSegmented); !errors.Is(err, protocol.ErrTypeMismatch) {
		t.Fatalf("wrong kind: got %v", err)
	}
	obj, err := tbl.Lookup(name, KindArray)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if obj.DType() != Int64 {
		t.Fatalf("dtype = %s", obj.DType())
	}
}

func TestDeleteReleasesMemory(t *testing.T) {
	tbl := NewTable()
	name := tbl.Create(newInt64Entry(t, tbl, []int64{1, 2, 3, 4}))
	if tbl.MemUsed() != 32 {
		t.Fatalf("used = %d, want 32", tbl.MemUsed())
	}
	if err := tbl.Delete(context.Background(), name); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if tbl.MemUsed() != 0 {
		t.Fatalf("used after delete = %d", tbl.MemUsed())
	}
	if err := tbl.Delete(context.Background(), name); !errors.Is(err, protocol.ErrNotFound) {
		t.Fatalf("double delete: got %v", err)
	}
}

func TestClearSkipsDurable(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable()
	tbl.Create(&Scalar{DT: Int64, Value: "1"})
	tbl.Create(&Scalar{DT: Int64, Value: "2"})
	keep := tbl.Create(newInt64Entry(t, tbl, []int64{9}))
	if err := tbl.Register(ctx, keep, "precious"); err != nil {
		t.Fatalf("register: %v", err)
	}

	cleared := tbl.Clear(ctx)
	if cleared != 3 {
		t.Fatalf("cleared %d entries, want 3", cleared)
	}
	if _, err := tbl.Attach(ctx, "precious"); err != nil {
		t.Fatalf("durable name lost after clear: %v", err)
	}
	if tbl.MemUsed() == 0 {
		t.Fatal("durable entry's buffer was released")
	}
}

func TestRegisterAttachUnregister(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryNameStore()
	tbl := NewTable(WithNameStore(store))
	name := tbl.Create(newInt64Entry(t, tbl, []int64{1, 2}))

	if err := tbl.Register(ctx, name, "mine"); err != nil {
		t.Fatalf("register: %v", err)
	}
	names, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 1 || names[0].Name != "mine" {
		t.Fatalf("name store contents: %+v", names)
	}

	obj, err := tbl.Attach(ctx, "mine")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if obj.Kind() != KindArray {
		t.Fatalf("attached kind = %s", obj.Kind())
	}

	if err := tbl.Unregister(ctx, "mine"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if _, err := tbl.Attach(ctx, "mine"); !errors.Is(err, protocol.ErrNotFound) {
		t.Fatalf("attach after unregister: got %v", err)
	}
	names, err = store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("name store not emptied: %+v", names)
	}
}

func TestRegisterErrors(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable()
	a := tbl.Create(&Scalar{DT: Int64, Value: "1"})
	b := tbl.Create(&Scalar{DT: Int64, Value: "2"})

	if err := tbl.Register(ctx, "missing", "x"); !errors.Is(err, protocol.ErrNotFound) {
		t.Fatalf("missing source: got %v", err)
	}
	if err := tbl.Register(ctx, a, ""); !errors.Is(err, protocol.ErrNotFound) {
		t.Fatalf("empty user name: got %v", err)
	}
	if err := tbl.Register(ctx, a, "shared"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := tbl.Register(ctx, b, "shared"); !errors.Is(err, protocol.ErrTypeMismatch) {
		t.Fatalf("name collision: got %v", err)
	}
	// Re-registering the same object under the same name is idempotent.
	if err := tbl.Register(ctx, a, "shared"); err != nil {
		t.Fatalf("re-register: %v", err)
	}
}

func TestRegisterSharesBuffer(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable()
	name := tbl.Create(newInt64Entry(t, tbl, []int64{1, 2, 3}))
	if err := tbl.Register(ctx, name, "kept"); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Deleting the session name must not free the buffer while the durable
	// name still refers to it.
	if err := tbl.Delete(ctx, name); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if tbl.MemUsed() != 24 {
		t.Fatalf("used = %d, want 24", tbl.MemUsed())
	}
	obj, err := tbl.Attach(ctx, "kept")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	arr, ok := obj.(*TypedArray[int64])
	if !ok {
		t.Fatalf("attached entry has type %T", obj)
	}
	if got := arr.Data.At(2); got != 3 {
		t.Fatalf("data[2] = %d", got)
	}

	if err := tbl.Unregister(ctx, "kept"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if tbl.MemUsed() != 0 {
		t.Fatalf("used after last release = %d", tbl.MemUsed())
	}
}

func TestReregisterKeepsOneSharedReference(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable()
	name := tbl.Create(newInt64Entry(t, tbl, []int64{1, 2, 3}))

	if err := tbl.Register(ctx, name, "shared"); err != nil {
		t.Fatalf("register: %v", err)
	}
	// A repeat registration binds no new name and must not take another
	// reference on the buffer.
	if err := tbl.Register(ctx, name, "shared"); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	if err := tbl.Unregister(ctx, "shared"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if err := tbl.Delete(ctx, name); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if used := tbl.MemUsed(); used != 0 {
		t.Fatalf("used after releasing both names = %d, want 0", used)
	}
}

func TestMemoryLimit(t *testing.T) {
	tbl := NewTable(WithMemoryLimit(64))
	if _, err := array.FromSlice(make([]int64, 4), 2, tbl); err != nil {
		t.Fatalf("within limit: %v", err)
	}
	_, err := array.FromSlice(make([]int64, 8), 2, tbl)
	if !errors.Is(err, protocol.ErrOutOfMemory) {
		t.Fatalf("over limit: got %v", err)
	}
	if tbl.MemUsed() != 32 {
		t.Fatalf("failed allocation changed accounting: used = %d", tbl.MemUsed())
	}
	if tbl.MemLimit() != 64 {
		t.Fatalf("limit = %d", tbl.MemLimit())
	}
}

func TestInfoListsEntries(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable()
	name := tbl.Create(newInt64Entry(t, tbl, []int64{1, 2, 3}))
	if err := tbl.Register(ctx, name, "reg"); err != nil {
		t.Fatalf("register: %v", err)
	}

	rows := tbl.Info()
	if len(rows) != 2 {
		t.Fatalf("info rows = %d, want 2", len(rows))
	}
	byName := make(map[string]EntryInfo)
	for _, r := range rows {
		byName[r.Name] = r
	}
	if !byName["reg"].Registered {
		t.Fatal("durable entry not flagged registered")
	}
	if byName[name].Registered {
		t.Fatal("session entry flagged registered")
	}
	if byName[name].Desc != "array int64 3" {
		t.Fatalf("desc = %q", byName[name].Desc)
	}

	regs := tbl.RegisteredNames()
	if len(regs) != 1 || regs[0] != "reg" {
		t.Fatalf("registered names = %v", regs)
	}
}
