// Package metrics defines the Prometheus instruments of the service.
package metrics
