// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Status label values
const (
	// StatusSuccess marks an operation that completed without error.
	StatusSuccess = "success"
	// StatusError marks an operation that returned an error.
	StatusError = "error"
)

// Direction label values
const (
	// DirectionInput labels input-side metrics.
	DirectionInput = "input"
	// DirectionOutput labels output-side metrics.
	DirectionOutput = "output"
)

// ShutdownTimeout bounds how long the metrics server waits for requests to
// drain on shutdown.
const ShutdownTimeout = 5 * time.Second

// metricsNamespace prefixes every metric name.
const metricsNamespace = "eqroute"
