package config

import (
	"fmt"
	"net/url"
	"slices"

	"github.com/erazemk/skener/internal/decode"
)

// Validate checks the loaded configuration. It normalizes the capture format
// list, so it must run before the config is used.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.TicketTTL <= 0 {
		return fmt.Errorf("server.ticket_ttl must be > 0 (got %v)", c.Server.TicketTTL)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if err := c.Log.validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.Admin.Username == "" {
		return fmt.Errorf("admin.username is required")
	}
	if err := c.Capture.validate(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if c.Search.Debounce < 0 {
		return fmt.Errorf("search.debounce must be >= 0 (got %v)", c.Search.Debounce)
	}
	if err := c.Lookup.validate(); err != nil {
		return fmt.Errorf("lookup: %w", err)
	}
	return nil
}

func (l *LogConfig) validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, l.Level) {
		return fmt.Errorf("unknown level %q", l.Level)
	}
	if l.Format != "text" && l.Format != "json" {
		return fmt.Errorf("unknown format %q", l.Format)
	}
	return nil
}

func (c *CaptureConfig) validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be > 0 (got %v)", c.PollInterval)
	}
	if c.MaxDimension < 0 {
		return fmt.Errorf("max_dimension must be >= 0 (got %d)", c.MaxDimension)
	}
	if c.FixedWidth <= 0 || c.FixedHeight <= 0 {
		return fmt.Errorf("fixed size must be positive (got %dx%d)", c.FixedWidth, c.FixedHeight)
	}
	if c.IdealWidth < 0 || c.IdealHeight < 0 || c.IdealFrameRate < 0 {
		return fmt.Errorf("ideal size and frame rate must be >= 0")
	}

	formats, err := decode.ParseFormats(c.Formats)
	if err != nil {
		return fmt.Errorf("formats: %w", err)
	}
	c.Formats = formats
	return nil
}

func (l *LookupConfig) validate() error {
	switch l.Mode {
	case LookupLocal:
		return nil
	case LookupRemote:
		u, err := url.Parse(l.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("base_url must be an absolute URL (got %q)", l.BaseURL)
		}
		if l.Timeout <= 0 {
			return fmt.Errorf("timeout must be > 0 (got %v)", l.Timeout)
		}
		return nil
	default:
		return fmt.Errorf("unknown mode %q", l.Mode)
	}
}
