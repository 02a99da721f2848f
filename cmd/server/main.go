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

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hokiegeek2/arkouda/pkg/checkpoint"
	"github.com/hokiegeek2/arkouda/pkg/integration"
	"github.com/hokiegeek2/arkouda/pkg/metrics"
	"github.com/hokiegeek2/arkouda/pkg/protocol"
	"github.com/hokiegeek2/arkouda/pkg/server"
	"github.com/hokiegeek2/arkouda/pkg/symbol"
)

const (
	defaultServerAddr     = ":5555"
	defaultMetricsAddr    = ":5556"
	defaultPrometheusAddr = ":5557"
	defaultServerName     = "arkouda"
	defaultNumPartitions  = 4
	defaultCheckpointNS   = "arkouda"
	serverVersion         = "dev"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()

	if max := parseEnvInt64("ARKOUDA_MAX_FRAME_BYTES", 0); max > 0 && max <= int64(^uint32(0)) {
		protocol.MaxFrameBytes = uint32(max)
	}

	cfg := server.Config{
		ServerName:     envOrDefault("ARKOUDA_SERVER_NAME", defaultServerName),
		Version:        serverVersion,
		Addr:           envOrDefault("ARKOUDA_SERVER_ADDR", defaultServerAddr),
		MetricsAddr:    envOrDefault("ARKOUDA_METRICS_ADDR", defaultMetricsAddr),
		NumPartitions:  parseEnvInt("ARKOUDA_NUM_PARTITIONS", defaultNumPartitions),
		MaxMemoryBytes: parseEnvInt64("ARKOUDA_MAX_MEMORY_BYTES", 0),
		Authenticate:   parseEnvBool("ARKOUDA_AUTHENTICATE", false),
	}

	token := ""
	if cfg.Authenticate {
		var err error
		token, err = loadOrCreateToken(envOrDefault("ARKOUDA_TOKEN_PATH", "arkouda.token"))
		if err != nil {
			logger.Error("token setup failed", "error", err)
			os.Exit(1)
		}
	}

	nameStore := buildNameStore(logger)
	table := symbol.NewTable(
		symbol.WithMemoryLimit(cfg.MaxMemoryBytes),
		symbol.WithNameStore(nameStore),
	)
	metricStore := metrics.NewRegistry()
	metrics.StartExporter(ctx, envOrDefault("ARKOUDA_PROMETHEUS_ADDR", defaultPrometheusAddr), metricStore, logger)

	ckStore := buildCheckpointStore(ctx, logger)
	ckNamespace := envOrDefault("ARKOUDA_CHECKPOINT_NAMESPACE", defaultCheckpointNS)
	rt := &server.Runtime{
		Table:        table,
		Metrics:      metricStore,
		Config:       cfg,
		Checkpoints:  ckStore,
		CheckpointNS: ckNamespace,
		Logger:       logger.With("component", "handler"),
	}
	if ckStore != nil && parseEnvBool("ARKOUDA_RESTORE_ON_START", false) {
		if n, err := checkpoint.Load(ctx, ckStore, ckNamespace, table, cfg.NumPartitions); err != nil {
			logger.Warn("startup restore failed", "namespace", ckNamespace, "error", err)
		} else {
			logger.Info("restored checkpoint", "namespace", ckNamespace, "entries", n)
		}
	}

	registry := server.NewCommandRegistry()
	server.RegisterBuiltins(registry, rt)

	registrar, serviceName := buildRegistrar(logger)
	port := int32(parseEnvInt("ARKOUDA_K8S_SERVICE_PORT", 5555))
	if err := registrar.Register(ctx, serviceName, port, port); err != nil {
		logger.Error("service registration failed", "error", err)
	}

	srv := &server.Server{
		Addr: cfg.Addr,
		Dispatcher: &server.Dispatcher{
			Registry:   registry,
			Metrics:    metricStore,
			Logger:     logger.With("component", "dispatch"),
			AuthToken:  token,
			OnShutdown: cancel,
		},
		Logger: logger.With("component", "server"),
	}
	metricsSrv := &server.Server{
		Addr: cfg.MetricsAddr,
		Dispatcher: &server.Dispatcher{
			Registry:  registry,
			Metrics:   metricStore,
			Logger:    logger.With("component", "metrics-dispatch"),
			AuthToken: token,
			Allow:     server.MetricsAllow(),
		},
		Logger: logger.With("component", "metrics-server"),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(ctx); err != nil {
			logger.Error("metrics service error", "error", err)
		}
	}()

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	srv.Wait()
	metricsSrv.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if ckStore != nil {
		if n, err := checkpoint.Save(shutdownCtx, ckStore, ckNamespace, table); err != nil {
			logger.Error("shutdown checkpoint failed", "namespace", ckNamespace, "error", err)
		} else {
			logger.Info("saved checkpoint", "namespace", ckNamespace, "entries", n)
		}
	}
	if err := registrar.Deregister(shutdownCtx, serviceName); err != nil {
		logger.Error("service deregistration failed", "error", err)
	}
	if closer, ok := nameStore.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	logger.Info("shutdown complete")
}

func buildNameStore(logger *slog.Logger) symbol.NameStore {
	endpoints := strings.TrimSpace(os.Getenv("ARKOUDA_ETCD_ENDPOINTS"))
	if endpoints == "" {
		return symbol.NewMemoryNameStore()
	}
	store, err := symbol.NewEtcdNameStore(symbol.EtcdNameStoreConfig{
		Endpoints: strings.Split(endpoints, ","),
		Username:  os.Getenv("ARKOUDA_ETCD_USERNAME"),
		Password:  os.Getenv("ARKOUDA_ETCD_PASSWORD"),
	})
	if err != nil {
		logger.Error("failed to initialize etcd name store; using in-memory", "error", err)
		return symbol.NewMemoryNameStore()
	}
	logger.Info("using etcd-backed name store", "endpoints", endpoints)
	return store
}

func buildCheckpointStore(ctx context.Context, logger *slog.Logger) checkpoint.Store {
	if parseEnvBool("ARKOUDA_USE_MEMORY_S3", false) {
		logger.Info("using in-memory checkpoint store")
		return checkpoint.NewMemoryStore()
	}
	bucket := strings.TrimSpace(os.Getenv("ARKOUDA_S3_BUCKET"))
	if bucket == "" {
		return nil
	}
	store, err := checkpoint.NewS3Store(ctx, checkpoint.S3Config{
		Bucket:          bucket,
		Region:          envOrDefault("ARKOUDA_S3_REGION", "us-east-1"),
		Endpoint:        os.Getenv("ARKOUDA_S3_ENDPOINT"),
		ForcePathStyle:  parseEnvBool("ARKOUDA_S3_PATH_STYLE", true),
		AccessKeyID:     os.Getenv("ARKOUDA_S3_ACCESS_KEY"),
		SecretAccessKey: os.Getenv("ARKOUDA_S3_SECRET_KEY"),
		SessionToken:    os.Getenv("ARKOUDA_S3_SESSION_TOKEN"),
	})
	if err != nil {
		logger.Error("failed to create S3 checkpoint store; checkpointing disabled", "error", err, "bucket", bucket)
		return nil
	}
	if err := store.EnsureBucket(ctx); err != nil {
		logger.Error("failed to ensure checkpoint bucket", "bucket", bucket, "error", err)
		os.Exit(1)
	}
	logger.Info("using S3 checkpoint store", "bucket", bucket)
	return store
}

func buildRegistrar(logger *slog.Logger) (integration.ServiceRegistrar, string) {
	if !parseEnvBool("ARKOUDA_K8S_REGISTER", false) {
		return integration.NoopRegistrar{}, ""
	}
	registrar, err := integration.NewKubernetesRegistrar(integration.KubernetesConfig{
		Namespace: os.Getenv("ARKOUDA_K8S_NAMESPACE"),
		AppLabel:  os.Getenv("ARKOUDA_K8S_APP"),
		CertFile:  os.Getenv("ARKOUDA_K8S_CERT_FILE"),
		KeyFile:   os.Getenv("ARKOUDA_K8S_KEY_FILE"),
		Host:      os.Getenv("ARKOUDA_K8S_HOST"),
	}, logger.With("component", "integration"))
	if err != nil {
		logger.Error("kubernetes registration unavailable", "error", err)
		return integration.NoopRegistrar{}, ""
	}
	return registrar, envOrDefault("ARKOUDA_K8S_SERVICE_NAME", "arkouda-server")
}

// loadOrCreateToken reads the shared auth token, generating and persisting a
// fresh one on first start.
func loadOrCreateToken(path string) (string, error) {
	if data, err := os.ReadFile(path); err == nil {
		if token := strings.TrimSpace(string(data)); token != "" {
			return token, nil
		}
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := hex.EncodeToString(raw)
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", err
	}
	return token, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("ARKOUDA_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if parseEnvBool("ARKOUDA_TRACE", false) {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	})
	return slog.New(handler).With("component", "arkouda")
}

func parseEnvInt(name string, fallback int) int {
	if val := strings.TrimSpace(os.Getenv(name)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseEnvInt64(name string, fallback int64) int64 {
	if val := strings.TrimSpace(os.Getenv(name)); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrDefault(name, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(name)); val != "" {
		return val
	}
	return fallback
}

func parseEnvBool(name string, fallback bool) bool {
	if val := strings.TrimSpace(os.Getenv(name)); val != "" {
		switch strings.ToLower(val) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}
