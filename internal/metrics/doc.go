// Package metrics records pipeline run and step metrics.
//
// Components receive a Recorder by injection and default to NoopRecorder, so
// no call site needs a nil check. When metrics are enabled the pipeline is
// given a PrometheusRecorder; one-shot CLI runs push its registry to a
// Pushgateway at the end of the run, and the daemon serves it over HTTP.
package metrics
