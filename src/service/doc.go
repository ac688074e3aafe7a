// Package service serves /stats, a JSON snapshot of a node's counters, and
// /metrics, the prometheus exposition of the telemetry registry.
package service
