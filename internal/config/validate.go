package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateGovernor(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateResolver(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateVideoPoll(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateGovernor() error {
	classes := map[string]ClassLimits{
		"text":  c.Governor.Text,
		"image": c.Governor.Image,
		"video": c.Governor.Video,
	}
	for name, limits := range classes {
		if limits.PerMinute <= 0 {
			return fmt.Errorf("governor.%s.per_minute must be positive", name)
		}
		if limits.Concurrency <= 0 {
			return fmt.Errorf("governor.%s.concurrency must be positive", name)
		}
		if limits.MinSpacingMS < 0 {
			return fmt.Errorf("governor.%s.min_spacing_ms must not be negative", name)
		}
	}
	if c.Governor.MaxRetries < 0 {
		return errors.New("governor.max_retries must not be negative")
	}
	if c.Governor.RetryBaseDelayMS <= 0 {
		return errors.New("governor.retry_base_delay_ms must be positive")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if c.Analysis.MinConfidence < 0 || c.Analysis.MinConfidence > 100 {
		return errors.New("analysis.min_confidence must be between 0 and 100")
	}
	if c.Analysis.SeedCount <= 0 {
		return errors.New("analysis.seed_count must be positive")
	}
	if c.Analysis.StagePacingMS < 0 {
		return errors.New("analysis.stage_pacing_ms must not be negative")
	}
	return nil
}

func (c *Config) validateResolver() error {
	if c.Resolver.ImageRetries <= 0 {
		return errors.New("resolver.image_retries must be positive")
	}
	if c.Resolver.MaxConcurrent <= 0 {
		return errors.New("resolver.max_concurrent must be positive")
	}
	if strings.TrimSpace(c.Resolver.PlaceholderBaseURL) == "" {
		return errors.New("resolver.placeholder_base_url must be set")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.TTLHours <= 0 {
		return errors.New("cache.ttl_hours must be positive")
	}
	if c.Cache.SweepIntervalMinutes <= 0 {
		return errors.New("cache.sweep_interval_minutes must be positive")
	}
	return nil
}

func (c *Config) validateVideoPoll() error {
	if c.VideoPoll.IntervalSeconds <= 0 {
		return errors.New("video_poll.interval_seconds must be positive")
	}
	return nil
}
