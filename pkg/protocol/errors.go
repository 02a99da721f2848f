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

package protocol

import "errors"

// Failure classes surfaced to clients. Handlers wrap these with context via
// fmt.Errorf("...: %w", ...); the dispatch boundary classifies with errors.Is.
var (
	// ErrOutOfBounds indicates an index or range outside the valid domain.
	ErrOutOfBounds = errors.New("index out of bounds")
	// ErrTypeMismatch indicates a registry entry of the wrong variant.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrNotFound indicates an unknown registry name.
	ErrNotFound = errors.New("not found")
	// ErrUnknownCommand indicates a command name with no registered handler.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrAuthentication indicates a missing or incorrect token.
	ErrAuthentication = errors.New("authentication failed")
	// ErrOutOfMemory indicates a derived allocation would exceed the memory ceiling.
	ErrOutOfMemory = errors.New("insufficient memory")
	// ErrDecode indicates malformed request framing.
	ErrDecode = errors.New("malformed request")
	// ErrUnknown is the unclassified fault.
	ErrUnknown = errors.New("unknown error")
)

// ErrorLabel maps err onto the taxonomy name used in replies and metrics.
func ErrorLabel(err error) string {
	switch {
	case errors.Is(err, ErrOutOfBounds):
		return "OutOfBoundsError"
	case errors.Is(err, ErrTypeMismatch):
		return "TypeMismatchError"
	case errors.Is(err, ErrUnknownCommand):
		return "UnknownCommandError"
	case errors.Is(err, ErrNotFound):
		return "NotFoundError"
	case errors.Is(err, ErrAuthentication):
		return "AuthenticationError"
	case errors.Is(err, ErrOutOfMemory):
		return "OutOfMemoryError"
	case errors.Is(err, ErrDecode):
		return "DecodeError"
	default:
		return "UnknownError"
	}
}
