package config

// TracingConfig holds OTLP trace export configuration.
//
// When enabled, pipeline spans recorded by Genkit are exported over
// OTLP/HTTP to the configured collector endpoint.
// See internal/observability/tracing.go for the exporter setup.
type TracingConfig struct {
	// Enabled turns trace export on (default: false)
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Endpoint is the OTLP/HTTP collector endpoint, host:port (default: localhost:4318)
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
	// ServiceName is the service name attached to exported spans (default: docket)
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	// Environment is the deployment environment tag (default: dev)
	Environment string `mapstructure:"environment" json:"environment"`
}
