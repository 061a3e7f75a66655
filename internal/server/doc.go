// Package server exposes the HTTP surface: the JSON mailing and account
// endpoints, the Google OAuth link flow, health probes for Kubernetes, and a
// dedicated Prometheus metrics server.
package server
