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

import (
	"encoding/binary"
	"fmt"
	"io"
)

// DefaultMaxFrameBytes is the default ceiling on frame payload size.
const DefaultMaxFrameBytes = 512 << 20

// MaxFrameBytes caps the payload size of a single frame in either
// direction. An announced length above the cap is rejected before the
// payload buffer is allocated. Set it at startup, before serving.
var MaxFrameBytes uint32 = DefaultMaxFrameBytes

// ReadFrame reads one size-prefixed frame from r and returns its payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame size: %w", err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameBytes {
		return nil, fmt.Errorf("%w: frame length %d exceeds limit %d", ErrDecode, length, MaxFrameBytes)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// WriteFrame writes payload to w as one size-prefixed frame. The prefix
// and payload go out in a single write.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > uint64(MaxFrameBytes) {
		return fmt.Errorf("frame payload too large: %d bytes, limit %d", len(payload), MaxFrameBytes)
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
