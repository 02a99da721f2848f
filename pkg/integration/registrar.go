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

// Package integration publishes the server as a discoverable Kubernetes
// service so in-cluster clients can connect by name instead of pod IP.
package integration

import (
	"context"
	"fmt"
	"log/slog"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// ServiceRegistrar announces and withdraws the server's network endpoints.
type ServiceRegistrar interface {
	Register(ctx context.Context, serviceName string, port, targetPort int32) error
	Deregister(ctx context.Context, serviceName string) error
}

// NoopRegistrar is used outside Kubernetes.
type NoopRegistrar struct{}

func (NoopRegistrar) Register(ctx context.Context, serviceName string, port, targetPort int32) error {
	return nil
}

func (NoopRegistrar) Deregister(ctx context.Context, serviceName string) error { return nil }

// KubernetesRegistrar creates and deletes v1 Services pointing at this
// server's pod via the app selector label.
type KubernetesRegistrar struct {
	client    kubernetes.Interface
	namespace string
	appLabel  string
	logger    *slog.Logger
}

// KubernetesConfig selects the namespace and pod label the registered
// Services target.
type KubernetesConfig struct {
	Namespace string
	AppLabel  string
	// CertFile, KeyFile, and Host override in-cluster discovery when the
	// server runs with an external kubeconfig-less cert pair.
	CertFile string
	KeyFile  string
	Host     string
}

// NewKubernetesRegistrar builds a registrar from in-cluster config, or from
// a client cert pair when cfg.Host is set.
func NewKubernetesRegistrar(cfg KubernetesConfig, logger *slog.Logger) (*KubernetesRegistrar, error) {
	var restCfg *rest.Config
	var err error
	if cfg.Host != "" {
		restCfg = &rest.Config{
			Host: cfg.Host,
			TLSClientConfig: rest.TLSClientConfig{
				CertFile: cfg.CertFile,
				KeyFile:  cfg.KeyFile,
				Insecure: true,
			},
		}
	} else {
		restCfg, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("kubernetes config: %w", err)
		}
	}
	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("kubernetes client: %w", err)
	}
	return newKubernetesRegistrar(client, cfg, logger), nil
}

func newKubernetesRegistrar(client kubernetes.Interface, cfg KubernetesConfig, logger *slog.Logger) *KubernetesRegistrar {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "default"
	}
	appLabel := cfg.AppLabel
	if appLabel == "" {
		appLabel = "arkouda-server"
	}
	return &KubernetesRegistrar{client: client, namespace: namespace, appLabel: appLabel, logger: logger}
}

func (r *KubernetesRegistrar) Register(ctx context.Context, serviceName string, port, targetPort int32) error {
	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      serviceName,
			Namespace: r.namespace,
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app": r.appLabel},
			Ports: []corev1.ServicePort{
				{Name: serviceName, Port: port, TargetPort: intstr.FromInt32(targetPort)},
			},
			Type: corev1.ServiceTypeClusterIP,
		},
	}
	_, err := r.client.CoreV1().Services(r.namespace).Create(ctx, svc, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		r.logger.Warn("service already registered", "service", serviceName, "namespace", r.namespace)
		return nil
	}
	if err != nil {
		return fmt.Errorf("register service %s: %w", serviceName, err)
	}
	r.logger.Info("registered service", "service", serviceName, "namespace", r.namespace, "port", port)
	return nil
}

func (r *KubernetesRegistrar) Deregister(ctx context.Context, serviceName string) error {
	err := r.client.CoreV1().Services(r.namespace).Delete(ctx, serviceName, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deregister service %s: %w", serviceName, err)
	}
	r.logger.Info("deregistered service", "service", serviceName, "namespace", r.namespace)
	return nil
}
