package observability

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	ServiceName string
	Port        int
}

// InitMetrics creates a registry shared by the OpenTelemetry exporter and the service's
// own Prometheus collectors. It returns the MeterProvider, the registry to register
// collectors on and an HTTP handler for the /metrics endpoint.
func InitMetrics(cfg MetricsConfig) (*sdkmetric.MeterProvider, *prometheus.Registry, http.Handler, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: metricNamespace(cfg.ServiceName)}),
	)

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})

	return provider, registry, handler, nil
}

// metricNamespace turns a service name such as "anomaly-service" into a valid
// Prometheus namespace.
func metricNamespace(serviceName string) string {
	return strings.NewReplacer("-", "_", ".", "_").Replace(serviceName)
}
