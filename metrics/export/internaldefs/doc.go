// Package internaldefs names the exported engine metrics. The Prometheus
// and OTel exporters both read these tables, so a metric keeps one name
// and one set of bucket bounds regardless of the backend.
package internaldefs
