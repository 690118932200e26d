package reconcile

import (
	"fmt"
	"time"
)

// Config holds the default settings of a reconciler.
type Config struct {
	// PageSize is the number of items requested per backend query.
	PageSize int `mapstructure:"page_size" default:"50"`
	// PagingEnabled splits large windows into page-sized queries.
	PagingEnabled bool `mapstructure:"paging_enabled" default:"true"`
	// DefinedSize selects exact counting instead of estimated sizing.
	DefinedSize bool `mapstructure:"defined_size" default:"true"`
	// ItemCountEstimate is the initial size in estimate mode.
	ItemCountEstimate int `mapstructure:"item_count_estimate" default:"200"`
	// ItemCountEstimateIncrement is added to the estimate whenever the
	// viewport gets within one page of it.
	ItemCountEstimateIncrement int `mapstructure:"item_count_estimate_increment" default:"200"`
	// Async fetches items on a background executor.
	Async bool `mapstructure:"async" default:"false"`
	// CountCacheTTL memoizes exact counts. Zero disables the cache.
	CountCacheTTL time.Duration `mapstructure:"count_cache_ttl" default:"0s"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:                   50,
		PagingEnabled:              true,
		DefinedSize:                true,
		ItemCountEstimate:          200,
		ItemCountEstimateIncrement: 200,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.PageSize < 1 {
		return fmt.Errorf("%w: page size must be at least 1, got %d", ErrConfig, c.PageSize)
	}
	if c.ItemCountEstimate < 1 {
		return fmt.Errorf("%w: item count estimate must be at least 1, got %d", ErrConfig, c.ItemCountEstimate)
	}
	if c.ItemCountEstimateIncrement < 1 {
		return fmt.Errorf("%w: item count estimate increment must be at least 1, got %d", ErrConfig, c.ItemCountEstimateIncrement)
	}
	if c.CountCacheTTL < 0 {
		return fmt.Errorf("%w: count cache ttl cannot be negative", ErrConfig)
	}
	return nil
}
