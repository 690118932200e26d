package grid

// Config holds configuration for the grid feature.
type Config struct {
	// Enabled mounts the /grid routes.
	Enabled bool `mapstructure:"enabled" default:"true"`
	// Source selects the backend (memory, sql, storage).
	Source string `mapstructure:"source" default:"memory"`
	// Table is the table served by the sql backend.
	Table string `mapstructure:"table" default:"people"`
	// Rows is the number of generated rows served by the memory backend.
	Rows int `mapstructure:"rows" default:"1000"`
	// MaxViewport caps the viewport length a client may request.
	MaxViewport int `mapstructure:"max_viewport" default:"500"`
}

const (
	SourceMemory  = "memory"
	SourceSQL     = "sql"
	SourceStorage = "storage"
)

// IsValidSource checks if the configured source is supported.
func (c Config) IsValidSource() bool {
	switch c.Source {
	case SourceMemory, SourceSQL, SourceStorage:
		return true
	default:
		return false
	}
}
