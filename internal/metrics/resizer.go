package metrics

import "time"

// RecordEncode emits one document per size-targeted encode.
func RecordEncode(format string, attempts int, outputBytes int, withinBudget bool, elapsed time.Duration) {
	r := New().
		Dimension("Operation", "encode").
		Dimension("Format", format).
		Metric("EncodeAttempts", float64(attempts), UnitCount).
		Metric("EncodeOutputBytes", float64(outputBytes), UnitBytes).
		Metric("EncodeLatencyMs", float64(elapsed.Milliseconds()), UnitMilliseconds).
		Property("withinBudget", withinBudget)
	if !withinBudget {
		r.Count("EncodeBudgetMissed")
	}
	r.Flush()
}

// RecordSweep emits the number of expired scratch files removed by one sweep.
// Sweeps that remove nothing are not recorded.
func RecordSweep(removed int, elapsed time.Duration) {
	if removed == 0 {
		return
	}
	New().
		Dimension("Operation", "sweep").
		Metric("SweepRemoved", float64(removed), UnitCount).
		Metric("SweepLatencyMs", float64(elapsed.Milliseconds()), UnitMilliseconds).
		Flush()
}

// RecordRequest emits per-request latency and count for a normalized endpoint.
func RecordRequest(endpoint, method string, status int, elapsed time.Duration) {
	New().
		Dimension("Endpoint", endpoint).
		Metric("RequestLatencyMs", float64(elapsed.Milliseconds()), UnitMilliseconds).
		Count("RequestCount").
		Property("method", method).
		Property("statusCode", status).
		Flush()
}
