package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// GaugeFunc reports point-in-time values exposed next to the counters.
type GaugeFunc func() map[string]int64

var labelEscaper = strings.NewReplacer("\\", "\\\\", "\"", "\\\"", "\n", "\\n")

// PrometheusHandler exposes Metrics in Prometheus' text exposition format.
//
// Counters are exposed as a single metric with an `event` label, gauges as a
// single metric with a `name` label.
func PrometheusHandler(m *Metrics, gauges GaugeFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		snap := m.Snapshot()
		_, _ = fmt.Fprintln(w, "# HELP anonymate_events_total Internal event counters.")
		_, _ = fmt.Fprintln(w, "# TYPE anonymate_events_total counter")
		for _, k := range sortedKeys(snap) {
			_, _ = fmt.Fprintf(w, "anonymate_events_total{event=\"%s\"} %d\n", labelEscaper.Replace(k), snap[k])
		}

		if gauges == nil {
			return
		}
		values := gauges()
		_, _ = fmt.Fprintln(w, "# HELP anonymate_state Current broker state.")
		_, _ = fmt.Fprintln(w, "# TYPE anonymate_state gauge")
		for _, k := range sortedKeys(values) {
			_, _ = fmt.Fprintf(w, "anonymate_state{name=\"%s\"} %d\n", labelEscaper.Replace(k), values[k])
		}
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
