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

package integration

import (
	"context"
	"io"
	"log/slog"
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterCreatesService(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset()
	r := newKubernetesRegistrar(client, KubernetesConfig{Namespace: "arkouda", AppLabel: "arkouda-server"}, testLogger())

	if err := r.Register(ctx, "arkouda-main", 5555, 5555); err != nil {
		t.Fatalf("register: %v", err)
	}
	svc, err := client.CoreV1().Services("arkouda").Get(ctx, "arkouda-main", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("get service: %v", err)
	}
	if svc.Spec.Selector["app"] != "arkouda-server" {
		t.Fatalf("selector = %v", svc.Spec.Selector)
	}
	if len(svc.Spec.Ports) != 1 || svc.Spec.Ports[0].Port != 5555 {
		t.Fatalf("ports = %+v", svc.Spec.Ports)
	}

	// Re-registering the same name is tolerated.
	if err := r.Register(ctx, "arkouda-main", 5555, 5555); err != nil {
		t.Fatalf("re-register: %v", err)
	}
}

func TestDeregister(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset()
	r := newKubernetesRegistrar(client, KubernetesConfig{}, testLogger())

	if err := r.Register(ctx, "arkouda-main", 5555, 5555); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Deregister(ctx, "arkouda-main"); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	if _, err := r.client.CoreV1().Services("default").Get(ctx, "arkouda-main", metav1.GetOptions{}); err == nil {
		t.Fatal("service still present after deregister")
	}
	// Deleting an absent service is not an error.
	if err := r.Deregister(ctx, "arkouda-main"); err != nil {
		t.Fatalf("second deregister: %v", err)
	}
}

func TestNoopRegistrar(t *testing.T) {
	ctx := context.Background()
	var r ServiceRegistrar = NoopRegistrar{}
	if err := r.Register(ctx, "arkouda-main", 5555, 5555); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Deregister(ctx, "arkouda-main"); err != nil {
		t.Fatalf("deregister: %v", err)
	}
}

func TestDefaults(t *testing.T) {
	r := newKubernetesRegistrar(fake.NewSimpleClientset(), KubernetesConfig{}, testLogger())
	if r.namespace != "default" || r.appLabel != "arkouda-server" {
		t.Fatalf("defaults: namespace=%q appLabel=%q", r.namespace, r.appLabel)
	}
}
