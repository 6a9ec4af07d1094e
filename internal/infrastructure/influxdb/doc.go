// Package influxdb records CAD Core admission telemetry in InfluxDB v2.
//
// Every login and registration attempt becomes a point in the auth_events
// measurement, tagged with the operation and outcome code. Writes are
// batched and asynchronous so the admission path never blocks on the
// telemetry sink. The sink is optional; when disabled in configuration
// the service runs without it.
package influxdb
