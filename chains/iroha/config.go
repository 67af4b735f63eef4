package iroha

import "time"

type Config struct {
	// Base URL of the torii endpoint, e.g. http://127.0.0.1:7878.
	Endpoint string

	// Deposits are transfers into this account, outbound transfers are made
	// from it.
	BridgeAccount string

	// Maps canonical asset symbols to iroha asset definition ids.
	Assets map[string]string

	PollInterval   time.Duration
	RequestTimeout time.Duration

	// Consecutive fetch failures tolerated before the subscription ends.
	FetchTolerance int
}

func (c *Config) WithDefaults() *Config {
	if c.BridgeAccount == "" {
		c.BridgeAccount = "bridge@polkadot"
	}
	if c.Assets == nil {
		c.Assets = map[string]string{
			"XOR": "XOR#global",
			"DOT": "DOT#polkadot",
		}
	}
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
