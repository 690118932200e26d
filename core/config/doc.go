// Package config loads the application settings.
//
// Values come from the environment (optionally seeded from a .env file) and
// fall back to the `default` struct tags of each section. Nested keys map to
// upper-case variables joined by underscores, so binding.page_size is read
// from BINDING_PAGE_SIZE.
//
// # Sections
//
//   - Server: port, API key, response encoding, session idle timeout
//   - Database: driver and connection of the SQL backend
//   - Storage: S3/MinIO credentials, bucket and prefix
//   - Log: level and format
//   - Binding: reconciler defaults (page size, sizing mode, async fetches)
//   - Flush: background fetch pool
//   - Metrics: Prometheus endpoint
//   - Grid: backend selection and limits of the grid routes
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Grid.Source)
package config
