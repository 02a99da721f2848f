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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/hokiegeek2/arkouda/pkg/metrics"
	"github.com/hokiegeek2/arkouda/pkg/protocol"
)

// Dispatcher runs the per-connection request loop: receive, authenticate,
// decode, resolve, execute, reply. Exactly one reply is written per request.
type Dispatcher struct {
	Registry *CommandRegistry
	Metrics  *metrics.Registry
	Logger   *slog.Logger

	// AuthToken enables authentication when non-empty; requests must carry it.
	AuthToken string
	// Allow restricts the command surface when non-nil. The metrics
	// sub-service uses this to expose only its read-only commands.
	Allow map[string]struct{}
	// OnShutdown fires once, after the reply to the request that asked the
	// server to stop.
	OnShutdown func()

	shutdownOnce sync.Once
}

// ServeConn processes requests on conn until the peer disconnects or a
// handler requests shutdown. One request is fully received, executed, and
// replied to before the next is read.
func (d *Dispatcher) ServeConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				d.Logger.Warn("read frame", "error", err)
			}
			return
		}

		msg, err := protocol.DecodeRequest(frame)
		if err != nil {
			// Malformed envelope: reply without resolving a command and
			// without touching command metrics.
			d.writeError(conn, "", err)
			continue
		}
		req := &Request{Msg: msg}
		if msg.BinaryPayload {
			payload, err := protocol.ReadFrame(conn)
			if err != nil {
				d.Logger.Warn("read payload frame", "cmd", msg.Cmd, "error", err)
				return
			}
			req.Payload = payload
		}

		if d.AuthToken != "" && msg.Token != d.AuthToken {
			d.writeError(conn, msg.User, fmt.Errorf("%w: invalid token for user %q", protocol.ErrAuthentication, msg.User))
			continue
		}
		if d.Allow != nil {
			if _, ok := d.Allow[msg.Cmd]; !ok {
				d.writeError(conn, msg.User, fmt.Errorf("%w: %q not served on this endpoint", protocol.ErrUnknownCommand, msg.Cmd))
				continue
			}
		}
		cmd, err := d.Registry.Resolve(msg.Cmd)
		if err != nil {
			d.writeError(conn, msg.User, err)
			continue
		}

		start := time.Now()
		res, err := d.execute(ctx, cmd, req)
		if err != nil {
			d.Logger.Warn("command failed", "cmd", msg.Cmd, "user", msg.User, "error", err)
			d.writeError(conn, msg.User, err)
			continue
		}
		elapsed := time.Since(start)
		d.Metrics.Inc(metrics.CategoryRequest, msg.Cmd, 1)
		d.Metrics.RecordTime(msg.Cmd, elapsed)
		d.Logger.Debug("dispatched", "cmd", msg.Cmd, "user", msg.User, "elapsed", elapsed)

		if cmd.kind == ResultBinary {
			err = protocol.WriteFrame(conn, res.Binary)
		} else {
			err = d.writeReply(conn, &protocol.ReplyMessage{MsgType: protocol.Normal, Msg: res.Body, User: msg.User})
		}
		if err != nil {
			d.Logger.Warn("write reply", "cmd", msg.Cmd, "error", err)
			return
		}
		if res.Shutdown {
			d.shutdownOnce.Do(func() {
				if d.OnShutdown != nil {
					d.OnShutdown()
				}
			})
			return
		}
	}
}

// execute runs the handler with a recover guard: a panicking handler becomes
// an unclassified error reply instead of a dead server.
func (d *Dispatcher) execute(ctx context.Context, cmd command, req *Request) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic in %q: %v", protocol.ErrUnknown, cmd.name, r)
		}
	}()
	return cmd.fn(ctx, req)
}

func (d *Dispatcher) writeError(conn net.Conn, user string, err error) {
	body := fmt.Sprintf("%s: %v", protocol.ErrorLabel(err), err)
	if werr := d.writeReply(conn, &protocol.ReplyMessage{MsgType: protocol.Error, Msg: body, User: user}); werr != nil {
		d.Logger.Warn("write error reply", "error", werr)
	}
}

func (d *Dispatcher) writeReply(conn net.Conn, reply *protocol.ReplyMessage) error {
	payload, err := protocol.EncodeReply(reply)
	if err != nil {
		return err
	}
	return protocol.WriteFrame(conn, payload)
}
