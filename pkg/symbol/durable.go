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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// RegisteredName records one durable registration for discovery across
// server restarts (the data itself travels through checkpoints).
type RegisteredName struct {
	Name         string    `json:"name"`
	Kind         string    `json:"kind"`
	DType        string    `json:"dtype"`
	RegisteredAt time.Time `json:"registered_at"`
}

// NameStore mirrors the set of durable names outside the session registry.
type NameStore interface {
	Put(ctx context.Context, rn RegisteredName) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]RegisteredName, error)
}

// MemoryNameStore keeps registrations in process. Default when no etcd
// endpoints are configured.
type MemoryNameStore struct {
	mu    sync.Mutex
	names map[string]RegisteredName
}

// NewMemoryNameStore builds an empty in-memory store.
func NewMemoryNameStore() *MemoryNameStore {
	return &MemoryNameStore{names: make(map[string]RegisteredName)}
}

func (m *MemoryNameStore) Put(ctx context.Context, rn RegisteredName) error {
	m.mu.Lock()
	m.names[rn.Name] = rn
	m.mu.Unlock()
	return nil
}

func (m *MemoryNameStore) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	delete(m.names, name)
	m.mu.Unlock()
	return nil
}

func (m *MemoryNameStore) List(ctx context.Context) ([]RegisteredName, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RegisteredName, 0, len(m.names))
	for _, rn := range m.names {
		out = append(out, rn)
	}
	return out, nil
}

// EtcdNameStoreConfig defines how we connect to etcd for durable names.
type EtcdNameStoreConfig struct {
	Endpoints   []string
	Username    string
	Password    string
	DialTimeout time.Duration
	Prefix      string
}

// EtcdNameStore persists durable registrations in etcd so a restarted server
// can re-attach them after a checkpoint restore.
type EtcdNameStore struct {
	client *clientv3.Client
	prefix string
}

const defaultNamePrefix = "/arkouda/registry/"

// NewEtcdNameStore connects to etcd.
func NewEtcdNameStore(cfg EtcdNameStoreConfig) (*EtcdNameStore, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("etcd endpoints required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultNamePrefix
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	return &EtcdNameStore{client: cli, prefix: cfg.Prefix}, nil
}

func (s *EtcdNameStore) key(name string) string {
	return s.prefix + name
}

func (s *EtcdNameStore) Put(ctx context.Context, rn RegisteredName) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	bytes, err := json.Marshal(rn)
	if err != nil {
		return err
	}
	_, err = s.client.Put(ctx, s.key(rn.Name), string(bytes))
	return err
}

func (s *EtcdNameStore) Delete(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := s.client.Delete(ctx, s.key(name))
	return err
}

func (s *EtcdNameStore) List(ctx context.Context) ([]RegisteredName, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	resp, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	out := make([]RegisteredName, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var rn RegisteredName
		if err := json.Unmarshal(kv.Value, &rn); err != nil {
			return nil, fmt.Errorf("parse registration %s: %w", strings.TrimPrefix(string(kv.Key), s.prefix), err)
		}
		out = append(out, rn)
	}
	return out, nil
}

// Close releases the etcd connection.
func (s *EtcdNameStore) Close() error {
	return s.client.Close()
}
