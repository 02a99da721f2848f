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
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hokiegeek2/arkouda/pkg/array"
	"github.com/hokiegeek2/arkouda/pkg/metrics"
	"github.com/hokiegeek2/arkouda/pkg/protocol"
	"github.com/hokiegeek2/arkouda/pkg/symbol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRuntime() *Runtime {
	return &Runtime{
		Table:   symbol.NewTable(),
		Metrics: metrics.NewRegistry(),
		Config:  Config{ServerName: "test", Version: "dev", Addr: ":0", NumPartitions: 2},
		Logger:  testLogger(),
	}
}

func newTestDispatcher(rt *Runtime) *Dispatcher {
	reg := NewCommandRegistry()
	RegisterBuiltins(reg, rt)
	return &Dispatcher{Registry: reg, Metrics: rt.Metrics, Logger: rt.Logger}
}

// startConn runs the dispatch loop on one end of an in-memory pipe and hands
// the test the client end.
func startConn(t *testing.T, d *Dispatcher) net.Conn {
	t.Helper()
	client, srv := net.Pipe()
	go d.ServeConn(context.Background(), srv)
	t.Cleanup(func() { client.Close() })
	return client
}

func send(t *testing.T, conn net.Conn, msg *protocol.RequestMessage, payload []byte) {
	t.Helper()
	frame, err := protocol.EncodeRequest(msg)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	if err := protocol.WriteFrame(conn, frame); err != nil {
		t.Fatalf("write request: %v", err)
	}
	if msg.BinaryPayload {
		if err := protocol.WriteFrame(conn, payload); err != nil {
			t.Fatalf("write payload: %v", err)
		}
	}
}

func recvReply(t *testing.T, conn net.Conn) *protocol.ReplyMessage {
	t.Helper()
	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	rep, err := protocol.DecodeReply(frame)
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	return rep
}

// roundTrip sends a STRING-format command and returns the reply.
func roundTrip(t *testing.T, conn net.Conn, cmd, args string) *protocol.ReplyMessage {
	t.Helper()
	send(t, conn, &protocol.RequestMessage{User: "tester", Cmd: cmd, Args: args}, nil)
	return recvReply(t, conn)
}

// createdName extracts the generated entry name from a "created ..." reply.
func createdName(t *testing.T, rep *protocol.ReplyMessage) string {
	t.Helper()
	if rep.MsgType != protocol.Normal {
		t.Fatalf("expected NORMAL reply, got %s: %s", rep.MsgType, rep.Msg)
	}
	fields := strings.Fields(rep.Msg)
	if len(fields) < 2 || fields[0] != "created" {
		t.Fatalf("unexpected reply body %q", rep.Msg)
	}
	return fields[1]
}

func TestDispatchNoop(t *testing.T) {
	rt := newTestRuntime()
	d := newTestDispatcher(rt)
	conn := startConn(t, d)

	rep := roundTrip(t, conn, "noop", "")
	if rep.MsgType != protocol.Normal || rep.Msg != "noop" {
		t.Fatalf("reply = %+v", rep)
	}
	if rep.User != "tester" {
		t.Fatalf("reply user = %q", rep.User)
	}
	if got := rt.Metrics.Counter(metrics.CategoryRequest, "noop"); got != 1 {
		t.Fatalf("noop counter = %d, want 1", got)
	}
	if got := rt.Metrics.TimingCount("noop"); got != 1 {
		t.Fatalf("noop timing samples = %d, want 1", got)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	rt := newTestRuntime()
	d := newTestDispatcher(rt)
	conn := startConn(t, d)

	rep := roundTrip(t, conn, "frobnicate", "")
	if rep.MsgType != protocol.Error {
		t.Fatalf("expected ERROR reply, got %+v", rep)
	}
	if !strings.HasPrefix(rep.Msg, "UnknownCommandError:") {
		t.Fatalf("reply body = %q", rep.Msg)
	}
	if got := rt.Metrics.Counter(metrics.CategoryRequest, "frobnicate"); got != 0 {
		t.Fatalf("unknown command counted: %d", got)
	}

	// The connection survives the error.
	if rep := roundTrip(t, conn, "ruok", ""); rep.Msg != "imok" {
		t.Fatalf("follow-up reply = %+v", rep)
	}
}

func TestDispatchMalformedEnvelope(t *testing.T) {
	rt := newTestRuntime()
	d := newTestDispatcher(rt)
	conn := startConn(t, d)

	if err := protocol.WriteFrame(conn, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	rep := recvReply(t, conn)
	if rep.MsgType != protocol.Error || !strings.HasPrefix(rep.Msg, "DecodeError:") {
		t.Fatalf("reply = %+v", rep)
	}
	for _, m := range rt.Metrics.Snapshot() {
		if m.Category == metrics.CategoryRequest {
			t.Fatalf("malformed request reached metrics: %+v", m)
		}
	}
}

func TestDispatchAuthentication(t *testing.T) {
	rt := newTestRuntime()
	d := newTestDispatcher(rt)
	d.AuthToken = "sesame"
	conn := startConn(t, d)

	send(t, conn, &protocol.RequestMessage{User: "tester", Token: "wrong", Cmd: "noop"}, nil)
	rep := recvReply(t, conn)
	if rep.MsgType != protocol.Error || !strings.HasPrefix(rep.Msg, "AuthenticationError:") {
		t.Fatalf("reply = %+v", rep)
	}
	if got := rt.Metrics.Counter(metrics.CategoryRequest, "noop"); got != 0 {
		t.Fatalf("rejected request counted: %d", got)
	}

	send(t, conn, &protocol.RequestMessage{User: "tester", Token: "sesame", Cmd: "noop"}, nil)
	if rep := recvReply(t, conn); rep.MsgType != protocol.Normal {
		t.Fatalf("authenticated reply = %+v", rep)
	}
}

func TestDispatchAllowlist(t *testing.T) {
	rt := newTestRuntime()
	d := newTestDispatcher(rt)
	d.Allow = MetricsAllow()
	conn := startConn(t, d)

	rep := roundTrip(t, conn, "create", "int64 10")
	if rep.MsgType != protocol.Error || !strings.HasPrefix(rep.Msg, "UnknownCommandError:") {
		t.Fatalf("restricted command reply = %+v", rep)
	}
	if rep := roundTrip(t, conn, "metrics", ""); rep.MsgType != protocol.Normal {
		t.Fatalf("metrics reply = %+v", rep)
	}
	if rep := roundTrip(t, conn, "getconfig", ""); rep.MsgType != protocol.Normal {
		t.Fatalf("getconfig reply = %+v", rep)
	}
}

func TestDispatchHandlerError(t *testing.T) {
	rt := newTestRuntime()
	d := newTestDispatcher(rt)
	conn := startConn(t, d)

	rep := roundTrip(t, conn, "delete", "no_such_entry")
	if rep.MsgType != protocol.Error || !strings.HasPrefix(rep.Msg, "NotFoundError:") {
		t.Fatalf("reply = %+v", rep)
	}
	if got := rt.Metrics.Counter(metrics.CategoryRequest, "delete"); got != 0 {
		t.Fatalf("failed command counted: %d", got)
	}
}

func TestDispatchBinaryRoundTrip(t *testing.T) {
	rt := newTestRuntime()
	d := newTestDispatcher(rt)
	conn := startConn(t, d)

	want := []int64{10, -20, 30, 40, 50}
	send(t, conn, &protocol.RequestMessage{
		User:          "tester",
		Cmd:           "array",
		Args:          "int64 5",
		Format:        protocol.FormatBinary,
		BinaryPayload: true,
	}, array.EncodeInt64s(want))
	name := createdName(t, recvReply(t, conn))

	send(t, conn, &protocol.RequestMessage{User: "tester", Cmd: "tondarray", Args: name}, nil)
	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read binary reply: %v", err)
	}
	got := array.DecodeInt64s(frame)
	if len(got) != len(want) {
		t.Fatalf("downloaded %d elements, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("element %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDispatchPayloadSizeMismatch(t *testing.T) {
	rt := newTestRuntime()
	d := newTestDispatcher(rt)
	conn := startConn(t, d)

	send(t, conn, &protocol.RequestMessage{
		User:          "tester",
		Cmd:           "array",
		Args:          "int64 5",
		Format:        protocol.FormatBinary,
		BinaryPayload: true,
	}, make([]byte, 16))
	rep := recvReply(t, conn)
	if rep.MsgType != protocol.Error || !strings.HasPrefix(rep.Msg, "DecodeError:") {
		t.Fatalf("reply = %+v", rep)
	}
}

func TestDispatchShutdown(t *testing.T) {
	rt := newTestRuntime()
	d := newTestDispatcher(rt)
	fired := make(chan struct{})
	d.OnShutdown = func() { close(fired) }
	conn := startConn(t, d)

	rep := roundTrip(t, conn, "shutdown", "")
	if rep.MsgType != protocol.Normal || rep.Msg != "shutdown initiated" {
		t.Fatalf("reply = %+v", rep)
	}
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("shutdown hook never fired")
	}
	// The loop exits and closes its end of the pipe.
	if _, err := protocol.ReadFrame(conn); err == nil {
		t.Fatal("connection still open after shutdown")
	}
}

func TestDispatchSegmentedScenario(t *testing.T) {
	rt := newTestRuntime()
	d := newTestDispatcher(rt)
	conn := startConn(t, d)

	upload := func(dtype string, n int, payload []byte) string {
		send(t, conn, &protocol.RequestMessage{
			User:          "tester",
			Cmd:           "array",
			Args:          dtype + " " + strconv.Itoa(n),
			Format:        protocol.FormatBinary,
			BinaryPayload: true,
		}, payload)
		return createdName(t, recvReply(t, conn))
	}

	segName := upload("int64", 3, array.EncodeInt64s([]int64{0, 2, 5}))
	valName := upload("uint8", 6, []byte("abcdef"))

	rep := roundTrip(t, conn, "segarray", segName+" "+valName)
	seg := createdName(t, rep)
	if !strings.HasSuffix(rep.Msg, "segarray str 3 6") {
		t.Fatalf("segarray reply = %q", rep.Msg)
	}

	ivName := upload("int64", 2, array.EncodeInt64s([]int64{2, 0}))
	rep = roundTrip(t, conn, "segmentedGather", seg+" "+ivName)
	gathered := createdName(t, rep)
	if !strings.HasSuffix(rep.Msg, "segarray str 2 3") {
		t.Fatalf("gather reply = %q", rep.Msg)
	}

	rep = roundTrip(t, conn, "segmentedIndex", gathered+" 0")
	if rep.MsgType != protocol.Normal || rep.Msg != `item str 0 "f"` {
		t.Fatalf("index reply = %+v", rep)
	}
	rep = roundTrip(t, conn, "segmentedIndex", gathered+" 1")
	if rep.Msg != `item str 1 "ab"` {
		t.Fatalf("index reply = %+v", rep)
	}

	rep = roundTrip(t, conn, "segmentedLengths", gathered)
	lengths := createdName(t, rep)
	send(t, conn, &protocol.RequestMessage{User: "tester", Cmd: "tondarray", Args: lengths}, nil)
	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read lengths: %v", err)
	}
	got := array.DecodeInt64s(frame)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("gathered lengths = %v, want [1 2]", got)
	}
}

func TestHandlersDirect(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()

	res, err := rt.handleCreate(ctx, &Request{Msg: &protocol.RequestMessage{Cmd: "create", Args: "float64 8"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	name := strings.Fields(res.Body)[1]

	res, err = rt.handleInfo(ctx, &Request{Msg: &protocol.RequestMessage{Cmd: "info", Args: name}})
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if res.Body != name+" array float64 8" {
		t.Fatalf("info body = %q", res.Body)
	}

	res, err = rt.handleGetMemUsed(ctx, &Request{Msg: &protocol.RequestMessage{Cmd: "getmemused"}})
	if err != nil {
		t.Fatalf("getmemused: %v", err)
	}
	if res.Body != "64" {
		t.Fatalf("memused = %q, want 64", res.Body)
	}

	res, err = rt.handleClear(ctx, &Request{Msg: &protocol.RequestMessage{Cmd: "clear"}})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if res.Body != "cleared 1 entries" {
		t.Fatalf("clear body = %q", res.Body)
	}
	if rt.Table.MemUsed() != 0 {
		t.Fatalf("memory retained after clear: %d", rt.Table.MemUsed())
	}
}

func TestCommandRegistry(t *testing.T) {
	reg := NewCommandRegistry()
	reg.Register("x", ResultString, func(ctx context.Context, req *Request) (Result, error) {
		return Result{Body: "ok"}, nil
	})
	if _, err := reg.Resolve("x"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := reg.Resolve("y"); err == nil {
		t.Fatal("resolving unregistered command succeeded")
	}
	defer func() {
		if recover() == nil {
			t.Fatal("duplicate registration did not panic")
		}
	}()
	reg.Register("x", ResultString, nil)
}
