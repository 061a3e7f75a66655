// Package instrumentation provides Prometheus-backed metrics for the
// mailgate server via the OpenTelemetry metric API.
//
// The Provider owns the meter provider and exposes a Metrics recorder used
// throughout the codebase. Metrics are exported through the Prometheus
// exporter and scraped from a dedicated metrics server (see internal/server).
//
// Recorded metrics:
//   - http_requests_total / http_request_duration_seconds
//   - gmail_api_operations_total / gmail_api_operation_duration_seconds
//   - oauth_token_refresh_total
//   - oauth_link_total
//
// All recorder methods are safe to call on a zero-value Metrics; recording
// becomes a no-op when instrumentation is disabled.
package instrumentation
