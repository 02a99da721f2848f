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
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hokiegeek2/arkouda/pkg/array"
	"github.com/hokiegeek2/arkouda/pkg/checkpoint"
	"github.com/hokiegeek2/arkouda/pkg/metrics"
	"github.com/hokiegeek2/arkouda/pkg/protocol"
	"github.com/hokiegeek2/arkouda/pkg/symbol"
)

// Config is the server's client-visible configuration, returned by getconfig.
type Config struct {
	ServerName     string `json:"serverName"`
	Version        string `json:"version"`
	Addr           string `json:"addr"`
	MetricsAddr    string `json:"metricsAddr,omitempty"`
	NumPartitions  int    `json:"numPartitions"`
	MaxMemoryBytes int64  `json:"maxMemoryBytes"`
	Authenticate   bool   `json:"authenticate"`
}

// Runtime is the process-wide state handed to every handler: the object
// registry, the metric store, and the optional external collaborators. Tests
// construct isolated runtimes.
type Runtime struct {
	Table        *symbol.Table
	Metrics      *metrics.Registry
	Config       Config
	Checkpoints  checkpoint.Store
	CheckpointNS string
	Logger       *slog.Logger
}

// RegisterBuiltins populates reg with the full builtin command surface.
// Called once at startup; duplicate names panic.
func RegisterBuiltins(reg *CommandRegistry, rt *Runtime) {
	reg.Register("create", ResultString, rt.handleCreate)
	reg.Register("array", ResultString, rt.handleArray)
	reg.Register("tondarray", ResultBinary, rt.handleToNDArray)
	reg.Register("delete", ResultString, rt.handleDelete)
	reg.Register("clear", ResultString, rt.handleClear)
	reg.Register("register", ResultString, rt.handleRegister)
	reg.Register("attach", ResultString, rt.handleAttach)
	reg.Register("unregister", ResultString, rt.handleUnregister)
	reg.Register("info", ResultString, rt.handleInfo)
	reg.Register("getconfig", ResultString, rt.handleGetConfig)
	reg.Register("getmemused", ResultString, rt.handleGetMemUsed)
	reg.Register("connect", ResultString, rt.handleConnect)
	reg.Register("disconnect", ResultString, rt.handleDisconnect)
	reg.Register("noop", ResultString, rt.handleNoop)
	reg.Register("ruok", ResultString, rt.handleRuok)
	reg.Register("shutdown", ResultString, rt.handleShutdown)
	reg.Register("metrics", ResultString, rt.handleMetrics)
	reg.Register("checkpoint", ResultString, rt.handleCheckpoint)
	reg.Register("restore", ResultString, rt.handleRestore)
	reg.Register("segarray", ResultString, rt.handleSegArray)
	reg.Register("segmentedIndex", ResultString, rt.handleSegmentedIndex)
	reg.Register("segmentedSlice", ResultString, rt.handleSegmentedSlice)
	reg.Register("segmentedGather", ResultString, rt.handleSegmentedGather)
	reg.Register("segmentedCompress", ResultString, rt.handleSegmentedCompress)
	reg.Register("segmentedLengths", ResultString, rt.handleSegmentedLengths)
	reg.Register("segmentedNonEmpty", ResultString, rt.handleSegmentedNonEmpty)
	reg.Register("segmentedComponents", ResultString, rt.handleSegmentedComponents)
}

// MetricsAllow is the command surface of the metrics sub-service.
func MetricsAllow() map[string]struct{} {
	return map[string]struct{}{
		"metrics":   {},
		"connect":   {},
		"getconfig": {},
	}
}

func needArgs(req *Request, n int) ([]string, error) {
	args := req.Msg.SplitArgs()
	if len(args) < n {
		return nil, fmt.Errorf("%w: %q needs %d arguments, got %d", protocol.ErrDecode, req.Msg.Cmd, n, len(args))
	}
	return args, nil
}

func created(name string, entry symbol.Object) string {
	return fmt.Sprintf("created %s %s", name, entry.Describe())
}

func (rt *Runtime) handleCreate(ctx context.Context, req *Request) (Result, error) {
	args, err := needArgs(req, 2)
	if err != nil {
		return Result{}, err
	}
	dt, err := symbol.ParseDType(args[0])
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", protocol.ErrDecode, err)
	}
	size, err := strconv.Atoi(args[1])
	if err != nil || size < 0 {
		return Result{}, fmt.Errorf("%w: bad size %q", protocol.ErrDecode, args[1])
	}
	entry, err := rt.newZeroArray(dt, size)
	if err != nil {
		return Result{}, err
	}
	name := rt.Table.Create(entry)
	return Result{Body: created(name, entry)}, nil
}

func (rt *Runtime) newZeroArray(dt symbol.DType, size int) (symbol.Object, error) {
	switch dt {
	case symbol.Int64:
		buf, err := array.New[int64](size, rt.Config.NumPartitions, rt.Table)
		if err != nil {
			return nil, err
		}
		return symbol.NewInt64Array(buf), nil
	case symbol.Float64:
		buf, err := array.New[float64](size, rt.Config.NumPartitions, rt.Table)
		if err != nil {
			return nil, err
		}
		return symbol.NewFloat64Array(buf), nil
	case symbol.Bool:
		buf, err := array.New[bool](size, rt.Config.NumPartitions, rt.Table)
		if err != nil {
			return nil, err
		}
		return symbol.NewBoolArray(buf), nil
	case symbol.Uint8:
		buf, err := array.New[uint8](size, rt.Config.NumPartitions, rt.Table)
		if err != nil {
			return nil, err
		}
		return symbol.NewUint8Array(buf), nil
	}
	return nil, fmt.Errorf("%w: cannot create dtype %s", protocol.ErrTypeMismatch, dt)
}

// handleArray stores a client-uploaded flat array. The element data arrives
// in the raw frame following the envelope, little-endian.
func (rt *Runtime) handleArray(ctx context.Context, req *Request) (Result, error) {
	args, err := needArgs(req, 2)
	if err != nil {
		return Result{}, err
	}
	dt, err := symbol.ParseDType(args[0])
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", protocol.ErrDecode, err)
	}
	size, err := strconv.Atoi(args[1])
	if err != nil || size < 0 {
		return Result{}, fmt.Errorf("%w: bad size %q", protocol.ErrDecode, args[1])
	}
	entry, err := rt.decodeArray(dt, size, req.Payload)
	if err != nil {
		return Result{}, err
	}
	name := rt.Table.Create(entry)
	return Result{Body: created(name, entry)}, nil
}

func (rt *Runtime) decodeArray(dt symbol.DType, size int, payload []byte) (symbol.Object, error) {
	width := 8
	if dt == symbol.Bool || dt == symbol.Uint8 {
		width = 1
	}
	if len(payload) != size*width {
		return nil, fmt.Errorf("%w: payload is %d bytes, expected %d for %d %s elements",
			protocol.ErrDecode, len(payload), size*width, size, dt)
	}
	switch dt {
	case symbol.Int64:
		buf, err := array.FromSlice(array.DecodeInt64s(payload), rt.Config.NumPartitions, rt.Table)
		if err != nil {
			return nil, err
		}
		return symbol.NewInt64Array(buf), nil
	case symbol.Float64:
		buf, err := array.FromSlice(array.DecodeFloat64s(payload), rt.Config.NumPartitions, rt.Table)
		if err != nil {
			return nil, err
		}
		return symbol.NewFloat64Array(buf), nil
	case symbol.Bool:
		buf, err := array.FromSlice(array.DecodeBools(payload), rt.Config.NumPartitions, rt.Table)
		if err != nil {
			return nil, err
		}
		return symbol.NewBoolArray(buf), nil
	case symbol.Uint8:
		buf, err := array.FromSlice(append([]byte(nil), payload...), rt.Config.NumPartitions, rt.Table)
		if err != nil {
			return nil, err
		}
		return symbol.NewUint8Array(buf), nil
	}
	return nil, fmt.Errorf("%w: cannot upload dtype %s", protocol.ErrTypeMismatch, dt)
}

// handleToNDArray downloads a flat array as one raw little-endian frame.
func (rt *Runtime) handleToNDArray(ctx context.Context, req *Request) (Result, error) {
	args, err := needArgs(req, 1)
	if err != nil {
		return Result{}, err
	}
	obj, err := rt.Table.Lookup(args[0], symbol.KindArray)
	if err != nil {
		return Result{}, err
	}
	switch v := obj.(type) {
	case *symbol.TypedArray[int64]:
		return Result{Binary: array.EncodeInt64s(v.Data.ToSlice())}, nil
	case *symbol.TypedArray[float64]:
		return Result{Binary: array.EncodeFloat64s(v.Data.ToSlice())}, nil
	case *symbol.TypedArray[bool]:
		return Result{Binary: array.EncodeBools(v.Data.ToSlice())}, nil
	case *symbol.TypedArray[uint8]:
		return Result{Binary: v.Data.ToSlice()}, nil
	}
	return Result{}, fmt.Errorf("%w: %q is not a downloadable array", protocol.ErrTypeMismatch, args[0])
}

func (rt *Runtime) handleDelete(ctx context.Context, req *Request) (Result, error) {
	args, err := needArgs(req, 1)
	if err != nil {
		return Result{}, err
	}
	if err := rt.Table.Delete(ctx, args[0]); err != nil {
		return Result{}, err
	}
	return Result{Body: fmt.Sprintf("deleted %s", args[0])}, nil
}

func (rt *Runtime) handleClear(ctx context.Context, req *Request) (Result, error) {
	n := rt.Table.Clear(ctx)
	return Result{Body: fmt.Sprintf("cleared %d entries", n)}, nil
}

func (rt *Runtime) handleRegister(ctx context.Context, req *Request) (Result, error) {
	args, err := needArgs(req, 2)
	if err != nil {
		return Result{}, err
	}
	if err := rt.Table.Register(ctx, args[0], args[1]); err != nil {
		return Result{}, err
	}
	return Result{Body: fmt.Sprintf("registered %s", args[1])}, nil
}

func (rt *Runtime) handleAttach(ctx context.Context, req *Request) (Result, error) {
	args, err := needArgs(req, 1)
	if err != nil {
		return Result{}, err
	}
	obj, err := rt.Table.Attach(ctx, args[0])
	if err != nil {
		return Result{}, err
	}
	return Result{Body: fmt.Sprintf("attached %s %s", args[0], obj.Describe())}, nil
}

func (rt *Runtime) handleUnregister(ctx context.Context, req *Request) (Result, error) {
	args, err := needArgs(req, 1)
	if err != nil {
		return Result{}, err
	}
	if err := rt.Table.Unregister(ctx, args[0]); err != nil {
		return Result{}, err
	}
	return Result{Body: fmt.Sprintf("unregistered %s", args[0])}, nil
}

func (rt *Runtime) handleInfo(ctx context.Context, req *Request) (Result, error) {
	if args := req.Msg.SplitArgs(); len(args) > 0 && args[0] != "all" {
		obj, err := rt.Table.Lookup(args[0], "")
		if err != nil {
			return Result{}, err
		}
		return Result{Body: fmt.Sprintf("%s %s", args[0], obj.Describe())}, nil
	}
	body, err := json.Marshal(rt.Table.Info())
	if err != nil {
		return Result{}, err
	}
	return Result{Body: string(body)}, nil
}

func (rt *Runtime) handleGetConfig(ctx context.Context, req *Request) (Result, error) {
	body, err := json.Marshal(rt.Config)
	if err != nil {
		return Result{}, err
	}
	return Result{Body: string(body)}, nil
}

func (rt *Runtime) handleGetMemUsed(ctx context.Context, req *Request) (Result, error) {
	return Result{Body: strconv.FormatInt(rt.Table.MemUsed(), 10)}, nil
}

func (rt *Runtime) handleConnect(ctx context.Context, req *Request) (Result, error) {
	return Result{Body: fmt.Sprintf("connected to %s on %s", rt.Config.ServerName, rt.Config.Addr)}, nil
}

func (rt *Runtime) handleDisconnect(ctx context.Context, req *Request) (Result, error) {
	return Result{Body: fmt.Sprintf("disconnected from %s", rt.Config.ServerName)}, nil
}

func (rt *Runtime) handleNoop(ctx context.Context, req *Request) (Result, error) {
	return Result{Body: "noop"}, nil
}

func (rt *Runtime) handleRuok(ctx context.Context, req *Request) (Result, error) {
	return Result{Body: "imok"}, nil
}

func (rt *Runtime) handleShutdown(ctx context.Context, req *Request) (Result, error) {
	rt.Logger.Info("shutdown requested", "user", req.Msg.User)
	return Result{Body: "shutdown initiated", Shutdown: true}, nil
}

func (rt *Runtime) handleMetrics(ctx context.Context, req *Request) (Result, error) {
	rt.Metrics.SetGauge("memory_used_bytes", float64(rt.Table.MemUsed()))
	rt.Metrics.SetGauge("symbol_table_entries", float64(rt.Table.Size()))
	body, err := rt.Metrics.SnapshotJSON()
	if err != nil {
		return Result{}, err
	}
	return Result{Body: body}, nil
}

func (rt *Runtime) checkpointNamespace(req *Request) string {
	if args := req.Msg.SplitArgs(); len(args) > 0 {
		return args[0]
	}
	return rt.CheckpointNS
}

func (rt *Runtime) handleCheckpoint(ctx context.Context, req *Request) (Result, error) {
	if rt.Checkpoints == nil {
		return Result{}, fmt.Errorf("%w: checkpointing is not configured", protocol.ErrUnknown)
	}
	ns := rt.checkpointNamespace(req)
	n, err := checkpoint.Save(ctx, rt.Checkpoints, ns, rt.Table)
	if err != nil {
		return Result{}, err
	}
	return Result{Body: fmt.Sprintf("saved %d entries to %s", n, ns)}, nil
}

func (rt *Runtime) handleRestore(ctx context.Context, req *Request) (Result, error) {
	if rt.Checkpoints == nil {
		return Result{}, fmt.Errorf("%w: checkpointing is not configured", protocol.ErrUnknown)
	}
	ns := rt.checkpointNamespace(req)
	n, err := checkpoint.Load(ctx, rt.Checkpoints, ns, rt.Table, rt.Config.NumPartitions)
	if err != nil {
		return Result{}, err
	}
	return Result{Body: fmt.Sprintf("restored %d entries from %s", n, ns)}, nil
}
