package scheduler

import "time"

// Config controls scheduler intervals and job timeouts.
type Config struct {
	RunInterval    time.Duration
	JobTimeout     time.Duration
	LockTTL        time.Duration
	DisablePayouts bool
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		JobTimeout:  5 * time.Minute,
		LockTTL:     10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
