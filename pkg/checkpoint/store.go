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

// Package checkpoint persists registry snapshots to an S3-compatible object
// store so registered entries survive a server restart.
package checkpoint

import (
	"context"
	"fmt"
)

// Store is the abstraction used to read/write snapshot objects.
type Store interface {
	UploadObject(ctx context.Context, key string, body []byte) error
	DownloadObject(ctx context.Context, key string) ([]byte, error)
	ListObjects(ctx context.Context, prefix string) ([]Object, error)
	EnsureBucket(ctx context.Context) error
}

// Object describes a stored snapshot object.
type Object struct {
	Key  string
	Size int64
}

// S3Config describes connection details for AWS S3 or compatible endpoints.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

func manifestKey(namespace string) string {
	return fmt.Sprintf("%s/manifest.json", namespace)
}

func dataKey(namespace, name, component string) string {
	return fmt.Sprintf("%s/data/%s.%s", namespace, name, component)
}
