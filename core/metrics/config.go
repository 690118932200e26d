package metrics

// Config holds configuration for the metrics endpoint.
type Config struct {
	// Enabled toggles metric collection and the /metrics route.
	Enabled bool `mapstructure:"enabled" default:"true"`
	// Path is the route serving the Prometheus exposition format.
	Path string `mapstructure:"path" default:"/metrics"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace" default:"databinding"`
}
