package collector

import "time"

// Config controls the collector run loop.
type Config struct {
	RunInterval   time.Duration
	LockTTL       time.Duration
	MaxSplitDepth int
	Retry         RetryPolicy
}

func DefaultConfig() Config {
	return Config{
		RunInterval:   time.Hour,
		LockTTL:       30 * time.Minute,
		MaxSplitDepth: 5,
		Retry:         DefaultRetryPolicy(),
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.MaxSplitDepth <= 0 {
		c.MaxSplitDepth = defaults.MaxSplitDepth
	}
	c.Retry = c.Retry.withDefaults()
	return c
}
