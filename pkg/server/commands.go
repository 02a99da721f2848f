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

// Package server implements the request/reply dispatch loop and the builtin
// command surface over the object registry.
package server

import (
	"context"
	"fmt"
	"sort"

	"github.com/hokiegeek2/arkouda/pkg/protocol"
)

// ResultKind distinguishes envelope replies from raw binary replies.
type ResultKind int

const (
	// ResultString replies with a JSON envelope carrying a text body.
	ResultString ResultKind = iota
	// ResultBinary replies with one raw frame, no envelope.
	ResultBinary
)

// Request is a decoded command invocation: the envelope plus the raw payload
// frame when the envelope flagged one.
type Request struct {
	Msg     *protocol.RequestMessage
	Payload []byte
}

// Result is a handler's outcome. Body fills envelope replies; Binary fills
// raw-frame replies. Shutdown asks the dispatch loop to stop serving after
// this reply is written.
type Result struct {
	Body     string
	Binary   []byte
	Shutdown bool
}

// HandlerFunc executes one command against the shared runtime state.
type HandlerFunc func(ctx context.Context, req *Request) (Result, error)

type command struct {
	name string
	kind ResultKind
	fn   HandlerFunc
}

// CommandRegistry maps command names to handlers. It is populated once at
// startup and read-only afterwards.
type CommandRegistry struct {
	commands map[string]command
}

// NewCommandRegistry returns an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make(map[string]command)}
}

// Register binds name to fn. Registering the same name twice is a
// configuration bug and panics at startup.
func (r *CommandRegistry) Register(name string, kind ResultKind, fn HandlerFunc) {
	if _, dup := r.commands[name]; dup {
		panic(fmt.Sprintf("command %q registered twice", name))
	}
	r.commands[name] = command{name: name, kind: kind, fn: fn}
}

// Resolve looks up name, failing with ErrUnknownCommand.
func (r *CommandRegistry) Resolve(name string) (command, error) {
	cmd, ok := r.commands[name]
	if !ok {
		return command{}, fmt.Errorf("%w: %q", protocol.ErrUnknownCommand, name)
	}
	return cmd, nil
}

// Names returns the registered command names, sorted.
func (r *CommandRegistry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
