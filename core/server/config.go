package server

import "time"

// Config holds configuration for the HTTP server.
type Config struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret key required to access the API.
	ApiKey string `mapstructure:"api_key" default:""`
	// Encoding is the default encoding of update batches (json, cbor).
	// Clients may override it per request with the Accept header.
	Encoding string `mapstructure:"encoding" default:"json"`
	// SessionIdleTimeout is how long an unused grid session is kept.
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout" default:"30m"`
}

const (
	EncodingJSON = "json"
	EncodingCBOR = "cbor"
)

// IsValidEncoding checks if the configured encoding is supported.
func (c Config) IsValidEncoding() bool {
	switch c.Encoding {
	case EncodingJSON, EncodingCBOR:
		return true
	default:
		return false
	}
}
