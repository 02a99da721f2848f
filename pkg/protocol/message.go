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
	"encoding/json"
	"fmt"
	"strings"
)

// MessageType is the status carried by a reply envelope.
type MessageType string

const (
	// Normal marks a successful reply.
	Normal MessageType = "NORMAL"
	// Error marks a failed reply; Msg carries the explanation.
	Error MessageType = "ERROR"
)

// MessageFormat describes how the request arguments are encoded.
type MessageFormat string

const (
	// FormatString is the default whitespace-delimited argument format.
	FormatString MessageFormat = "STRING"
	// FormatBinary flags commands whose payload travels in a raw frame.
	FormatBinary MessageFormat = "BINARY"
)

// RequestMessage is the structured request envelope. When BinaryPayload is
// set, one raw frame carrying the payload follows the envelope frame.
type RequestMessage struct {
	User          string        `json:"user"`
	Token         string        `json:"token"`
	Cmd           string        `json:"cmd"`
	Args          string        `json:"args"`
	Format        MessageFormat `json:"format"`
	BinaryPayload bool          `json:"payload,omitempty"`
}

// SplitArgs tokenizes the whitespace-delimited argument string.
func (m *RequestMessage) SplitArgs() []string {
	return strings.Fields(m.Args)
}

// DecodeRequest parses a request envelope. A failure here is a DecodeError:
// the dispatch loop replies without resolving any command.
func DecodeRequest(payload []byte) (*RequestMessage, error) {
	var msg RequestMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if msg.Cmd == "" {
		return nil, fmt.Errorf("%w: empty command field", ErrDecode)
	}
	if msg.Format == "" {
		msg.Format = FormatString
	}
	return &msg, nil
}

// EncodeRequest serializes a request envelope. Used by clients and tests.
func EncodeRequest(msg *RequestMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// ReplyMessage is the structured reply envelope. Binary-result commands skip
// the envelope and send one raw frame instead.
type ReplyMessage struct {
	MsgType MessageType `json:"msgType"`
	Msg     string      `json:"msg"`
	User    string      `json:"user"`
}

// EncodeReply serializes a reply envelope.
func EncodeReply(msg *ReplyMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeReply parses a reply envelope. Used by clients and tests.
func DecodeReply(payload []byte) (*ReplyMessage, error) {
	var msg ReplyMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &msg, nil
}
