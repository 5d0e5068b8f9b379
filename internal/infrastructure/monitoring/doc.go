/*
Package monitoring provides metrics collection for the session engine.

# Overview

This package implements Prometheus-based metrics for terminal sessions and
the HTTP/WebSocket adapters in front of them. Metrics are registered on an
explicit prometheus.Registerer so several engines (and tests) can coexist in
one process.

# Features

- Session lifecycle metrics (opened, failed, active, by kind)
- Stream volume (bytes in, bytes out, chunks) by kind
- Backpressure counters (input queue full, subscriber overruns)
- HTTP request metrics (latency, status codes)
- WebSocket connection and message metrics

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	metrics.SessionOpened("local")
	metrics.SetSessionsActive(3)

All recording methods are safe on a nil *Metrics.
*/
package monitoring
