// Package metrics exposes the server's operational counters. The exposition
// endpoint is optional and gated by config; the counters themselves are
// always live and nearly free to bump.
package metrics

import (
	"net/http"

	vm "github.com/VictoriaMetrics/metrics"
	"go.uber.org/zap"
)

var (
	CommandsProcessed = vm.NewCounter(`firefly_commands_processed_total`)
	ConnectionsOpened = vm.NewCounter(`firefly_connections_opened_total`)
	ExpiredKeys       = vm.NewCounter(`firefly_expired_keys_total`)
	EvictedKeys       = vm.NewCounter(`firefly_evicted_keys_total`)
	WatchConflicts    = vm.NewCounter(`firefly_watch_conflicts_total`)
)

// Serve exposes all registered metrics in Prometheus text format on addr.
// Blocks; run in its own goroutine.
func Serve(addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		vm.WritePrometheus(w, true)
	})

	log.Info("metrics endpoint listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, mux)
}
