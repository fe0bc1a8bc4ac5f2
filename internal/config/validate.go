package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q: %w", c.Paths.APIBind, err)
	}
	return nil
}

func (c *Config) validateGeneration() error {
	parsed, err := url.Parse(c.Generation.BaseURL)
	if err != nil {
		return fmt.Errorf("generation.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("generation.base_url must use http or https, got %q", c.Generation.BaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("generation.base_url must include a host, got %q", c.Generation.BaseURL)
	}
	return ensurePositiveMap(map[string]int{
		"generation.timeout_seconds": c.Generation.TimeoutSeconds,
		"generation.retry_attempts":  c.Generation.RetryAttempts,
	})
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.SimulatedDelayMS > maxSimulatedDelayMS {
		return fmt.Errorf("pipeline.simulated_delay_ms must be <= %d", maxSimulatedDelayMS)
	}
	return ensurePositiveMap(map[string]int{
		"pipeline.log_capacity":  c.Pipeline.LogCapacity,
		"pipeline.event_buffer":  c.Pipeline.EventBuffer,
		"pipeline.history_limit": c.Pipeline.HistoryLimit,
	})
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
