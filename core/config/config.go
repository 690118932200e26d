package config

import (
	"fmt"
	"reflect"
	"strings"

	"databinding/core/database"
	"databinding/core/flush"
	"databinding/core/logger"
	"databinding/core/metrics"
	"databinding/core/reconcile"
	"databinding/core/server"
	"databinding/core/storage"
	"databinding/feature/grid"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Storage holds configuration for the object storage backend.
	Storage storage.Config `mapstructure:"storage"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the SQL backend.
	Database database.Config `mapstructure:"database"`
	// Binding holds the defaults of every session reconciler.
	Binding reconcile.Config `mapstructure:"binding"`
	// Flush holds configuration for the background fetch pool.
	Flush flush.Config `mapstructure:"flush"`
	// Metrics holds configuration for the Prometheus endpoint.
	Metrics metrics.Config `mapstructure:"metrics"`
	// Grid holds configuration for the grid feature.
	Grid grid.Config `mapstructure:"grid"`
}

// LoadConfig loads configuration from environment variables and the .env
// file in path.
func LoadConfig(path string) (*Config, error) {
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// a missing .env is fine, the environment may carry everything
	_ = godotenv.Overload(envPath)

	v := viper.New()
	bindValues(v, Config{}, "")

	// BINDING_PAGE_SIZE -> binding.page_size
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	if err := c.Binding.Validate(); err != nil {
		return fmt.Errorf("binding: %w", err)
	}
	if !c.Server.IsValidEncoding() {
		return fmt.Errorf("server: unsupported encoding %q", c.Server.Encoding)
	}
	if !c.Grid.IsValidSource() {
		return fmt.Errorf("grid: unsupported source %q", c.Grid.Source)
	}
	if c.Flush.Workers < 1 || c.Flush.QueueSize < 1 {
		return fmt.Errorf("flush: workers and queue size must be positive")
	}
	return nil
}

// bindValues registers the 'default' tag of every 'mapstructure' field with
// viper, recursing into nested structs.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		// registering empty defaults too makes AutomaticEnv see the key
		v.SetDefault(key, field.Tag.Get("default"))
	}
}
