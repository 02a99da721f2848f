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
	"testing"
	"time"
)

func TestListenAndServeRequiresDispatcher(t *testing.T) {
	s := &Server{Addr: "127.0.0.1:0", Logger: testLogger()}
	if err := s.ListenAndServe(context.Background()); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	rt := newTestRuntime()
	s := &Server{
		Addr:       "127.0.0.1:0",
		Dispatcher: newTestDispatcher(rt),
		Logger:     testLogger(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
	s.Wait()
}
