package node

import (
	"fmt"
	"time"

	"github.com/w3f-community/iroha/monitor/monitor_options"
)

type Config struct {
	IrohaEndpoint     string `mapstructure:"iroha_endpoint"`
	SubstrateEndpoint string `mapstructure:"substrate_endpoint"`
	SignerKeyPath     string `mapstructure:"signer_key_path"`

	// Transfer state store location.
	StateDir string `mapstructure:"state_dir"`

	RetryMaxAttempts int    `mapstructure:"retry_max_attempts"`
	RetryBaseDelayMs uint64 `mapstructure:"retry_base_delay_ms"`
	RetryMaxDelayMs  uint64 `mapstructure:"retry_max_delay_ms"`
	PollIntervalMs   uint64 `mapstructure:"poll_interval_ms"`

	// Iroha account that custodies bridged assets.
	BridgeAccount string `mapstructure:"bridge_account"`

	// Asset symbols allowed across the bridge. Empty means all.
	Assets []string `mapstructure:"assets"`

	Workers               int    `mapstructure:"workers"`
	DrainTimeoutMs        uint64 `mapstructure:"drain_timeout_ms"`
	WatcherRestartDelayMs uint64 `mapstructure:"watcher_restart_delay_ms"`
	WatcherMaxRestarts    int    `mapstructure:"watcher_max_restarts"`
	SubscriptionTolerance int    `mapstructure:"subscription_tolerance"`

	Monitoring *monitor_options.Options `mapstructure:"monitoring"`
}

func (c *Config) Validate() error {
	if c.IrohaEndpoint == "" {
		return fmt.Errorf("iroha_endpoint is required")
	}
	if c.SubstrateEndpoint == "" {
		return fmt.Errorf("substrate_endpoint is required")
	}
	if c.SignerKeyPath == "" {
		return fmt.Errorf("signer_key_path is required")
	}
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}
	return nil
}

func (c *Config) pollInterval() time.Duration {
	if c.PollIntervalMs == 0 {
		return time.Second
	}
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *Config) retryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

func (c *Config) retryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

func (c *Config) drainTimeout() time.Duration {
	if c.DrainTimeoutMs == 0 {
		return 15 * time.Second
	}
	return time.Duration(c.DrainTimeoutMs) * time.Millisecond
}

func (c *Config) watcherRestartDelay() time.Duration {
	if c.WatcherRestartDelayMs == 0 {
		return 3 * time.Second
	}
	return time.Duration(c.WatcherRestartDelayMs) * time.Millisecond
}

func (c *Config) watcherMaxRestarts() int {
	if c.WatcherMaxRestarts == 0 {
		return -1
	}
	return c.WatcherMaxRestarts
}
