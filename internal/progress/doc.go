// Package progress carries verification progress from the poller to its
// presenters. Render maps estimator results onto bar/text updates, and Hub
// hands those events, in order, to pluggable sinks such as the page view,
// Prometheus, Pub/Sub or a terminal.
package progress
