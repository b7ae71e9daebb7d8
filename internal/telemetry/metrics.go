package telemetry

import (
	"io"
	"strconv"

	"github.com/VictoriaMetrics/metrics"
)

// RecordDispatch counts one dispatch attempt by item kind and outcome.
func RecordDispatch(kind, outcome string) {
	name := `postlater_dispatch_total{kind="` + kind + `",outcome="` + outcome + `"}`
	metrics.GetOrCreateCounter(name).Inc()
}

func RecordJobsFound(bucket string, n int) {
	name := `postlater_jobs_found_total{bucket="` + bucket + `"}`
	metrics.GetOrCreateCounter(name).Add(n)
}

func RecordEnqueueFailure(taskType string) {
	name := `postlater_enqueue_failures_total{task_type="` + taskType + `"}`
	metrics.GetOrCreateCounter(name).Inc()
}

func RecordOrphansCleaned(n int) {
	metrics.GetOrCreateCounter(`postlater_orphan_media_deleted_total`).Add(n)
}

// DispatchCount returns the current value of a dispatch counter.
func DispatchCount(kind, outcome string) uint64 {
	name := `postlater_dispatch_total{kind="` + kind + `",outcome="` + outcome + `"}`
	return metrics.GetOrCreateCounter(name).Get()
}

func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, true)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
