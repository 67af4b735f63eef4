package substrate

import "time"

type Config struct {
	// WebSocket JSON-RPC endpoint of the bridge-enabled node,
	// e.g. ws://127.0.0.1:9944.
	Endpoint string

	PollInterval   time.Duration
	RequestTimeout time.Duration

	// Consecutive poll failures tolerated before the subscription ends.
	FetchTolerance int
}

func (c *Config) WithDefaults() *Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.FetchTolerance == 0 {
		c.FetchTolerance = 10
	}
	return c
}
