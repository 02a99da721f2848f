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

package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsDesc = prometheus.NewDesc(
		"arkouda_requests_total",
		"Number of requests processed, labeled by command.",
		[]string{"command"}, nil,
	)
	responseTimeDesc = prometheus.NewDesc(
		"arkouda_response_time_ms",
		"Handler latency aggregates in milliseconds, labeled by command and stat.",
		[]string{"command", "stat"}, nil,
	)
	serverDesc = prometheus.NewDesc(
		"arkouda_server_counter",
		"Server-wide counters such as connections.",
		[]string{"name"}, nil,
	)
	systemDesc = prometheus.NewDesc(
		"arkouda_system_gauge",
		"System gauges such as memory in use.",
		[]string{"name"}, nil,
	)
)

// Collector adapts a Registry snapshot to the Prometheus scrape model.
type Collector struct {
	reg *Registry
}

// NewCollector wraps reg for Prometheus registration.
func NewCollector(reg *Registry) *Collector {
	return &Collector{reg: reg}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- requestsDesc
	ch <- responseTimeDesc
	ch <- serverDesc
	ch <- systemDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.reg.Snapshot() {
		switch m.Category {
		case CategoryRequest:
			ch <- prometheus.MustNewConstMetric(requestsDesc, prometheus.CounterValue, m.Value, m.Name)
		case CategoryResponseTime:
			name, stat := splitStat(m.Name)
			ch <- prometheus.MustNewConstMetric(responseTimeDesc, prometheus.GaugeValue, m.Value, name, stat)
		case CategoryServer:
			ch <- prometheus.MustNewConstMetric(serverDesc, prometheus.CounterValue, m.Value, m.Name)
		case CategorySystem:
			ch <- prometheus.MustNewConstMetric(systemDesc, prometheus.GaugeValue, m.Value, m.Name)
		}
	}
}

func splitStat(name string) (string, string) {
	for _, suffix := range []string{"_avg_ms", "_max_ms"} {
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			return name[:len(name)-len(suffix)], suffix[1 : len(suffix)-3]
		}
	}
	return name, "value"
}

// StartExporter serves the Prometheus scrape endpoint plus a health probe on
// addr until ctx is cancelled.
func StartExporter(ctx context.Context, addr string, reg *Registry, logger *slog.Logger) {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(NewCollector(reg))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	})
	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("prometheus exporter error", "error", err)
		}
	}()
}
