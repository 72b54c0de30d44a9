/*
Package metrics provides Prometheus-based metrics collection for Vaulthalla's
sync engine, cache, and transport layers.

# Overview

The metrics package exports counters, histograms, and gauges covering sync
throughput operations (Upload, Download, Rename, Copy, Delete), FS cache
hit/miss rates, and transport errors. It also keeps an internal rolling
summary usable without a Prometheus scrape, exposed via /debug/* endpoints.

Architecture

	┌─────────────┐
	│  Collector  │  ← Main metrics aggregator
	└──────┬──────┘
	       │
	   ┌───┴────────────────────────────┐
	   │                                │
	┌──▼───────────┐         ┌─────────▼──────┐
	│  Prometheus  │         │  HTTP Endpoints │
	│   Registry   │         │  /metrics       │
	│              │         │  /health        │
	│ - Counters   │         │  /debug/metrics │
	│ - Histograms │         └─────────────────┘
	│ - Gauges     │
	└──────────────┘

# Core Components

Collector: the main metrics collector that aggregates and exports metrics.
It maintains both Prometheus metrics (for monitoring systems) and internal
operation tracking (for debugging).

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9090,
		Path:      "/metrics",
		Namespace: "vaulthalla",
	})
	if err != nil {
		log.Fatal(err)
	}

	if err := collector.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer collector.Stop(ctx)

# Recording Operations

The executor records each sync action with timing, size, and success status:

	start := time.Now()
	err := uploadPart(ctx, key, data)
	duration := time.Since(start)

	collector.RecordOperation("upload", duration, int64(len(data)), err == nil)

# Cache Metrics

	collector.RecordCacheHit(path, size)
	collector.RecordCacheMiss(path, size)
	collector.UpdateCacheSize("content", currentCacheBytes)

# Error Tracking

	if err != nil {
		collector.RecordError("s3_put_object", err)
		return err
	}

# Prometheus Metrics

Counters:
  - vaulthalla_operations_total{operation,status}: Total operations by type and status
  - vaulthalla_cache_requests_total{type,source}: Cache hits/misses
  - vaulthalla_errors_total{operation,type}: Errors by operation and classification

Histograms:
  - vaulthalla_operation_duration_seconds{operation}: Operation latency distribution
  - vaulthalla_operation_size_bytes{operation}: Operation size distribution

Gauges:
  - vaulthalla_cache_size_bytes{level}: Current content cache size
  - vaulthalla_active_connections: Current active S3 connections

# HTTP Endpoints

/metrics - Prometheus-formatted metrics (for scraping)

	curl http://localhost:9090/metrics

/health - Health check endpoint

	curl http://localhost:9090/health
	{"status":"healthy","service":"vaulthalla-metrics"}

/debug/metrics - Human-readable metrics summary
/debug/operations - Tabular operations summary

# Configuration

	config := &metrics.Config{
		Enabled:        true,
		Port:           9090,
		Path:           "/metrics",
		Namespace:      "vaulthalla",
		Subsystem:      "sync",
		UpdateInterval: 30 * time.Second,
	}

# Thread Safety

All Collector methods are thread-safe and can be called concurrently from
multiple goroutines. The collector uses an RWMutex for the internal
operation-tracking map; Prometheus's own client types are safe for
concurrent use independently of that lock.

# Integration with Monitoring Systems

	scrape_configs:
	  - job_name: 'vaulthalla'
	    static_configs:
	      - targets: ['localhost:9090']
	    metrics_path: '/metrics'
	    scrape_interval: 15s

# See Also

  - internal/circuit: circuit breaker for S3 transport reliability
  - pkg/vherrors: structured error handling
*/
package metrics
