// Package sinks implements concrete presenters for verification progress: the
// page view state, structured logging, Prometheus gauges, topic publishing,
// and a terminal progress line. Each sink satisfies progress.Sink.
package sinks
