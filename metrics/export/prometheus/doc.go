// Package prometheus renders engine metrics in the Prometheus text exposition
// format without a client library or global registry. Mount an [Exporter]
// as the scrape handler.
package prometheus
