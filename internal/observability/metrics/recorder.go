// Package metrics provides custom Prometheus metrics for the audio router.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Components depend on this abstraction rather than on concrete collectors.
type Recorder interface {
	// RecordOperation records a control operation with its status
	// (e.g. "start", "success").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its category.
	RecordError(operation, errorType string)
}
