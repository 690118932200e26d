package flush

// Config holds configuration for the shared asynchronous fetch pool.
type Config struct {
	// Workers is the number of goroutines fetching in the background.
	Workers int `mapstructure:"workers" default:"4"`
	// QueueSize bounds the number of fetches waiting for a worker.
	QueueSize int `mapstructure:"queue_size" default:"64"`
}
