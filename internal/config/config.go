// Package config loads service configuration from YAML, the environment and
// an optional .env file.
package config

import (
	"time"

	"github.com/erazemk/skener/internal/capture"
	"github.com/erazemk/skener/internal/decode"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Capture  CaptureConfig  `yaml:"capture"`
	Search   SearchConfig   `yaml:"search"`
	Lookup   LookupConfig   `yaml:"lookup"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr              string        `yaml:"addr"                env:"SKENER_ADDR"                env-default:":8080"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"SKENER_READ_HEADER_TIMEOUT" env-default:"10s"`
	ReadTimeout       time.Duration `yaml:"read_timeout"        env:"SKENER_READ_TIMEOUT"        env-default:"30s"`
	WriteTimeout      time.Duration `yaml:"write_timeout"       env:"SKENER_WRITE_TIMEOUT"       env-default:"60s"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"        env:"SKENER_IDLE_TIMEOUT"        env-default:"120s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"    env:"SKENER_SHUTDOWN_TIMEOUT"    env-default:"5s"`
	TicketTTL         time.Duration `yaml:"ticket_ttl"          env:"SKENER_TICKET_TTL"          env-default:"60s"`
}

// DatabaseConfig holds the SQLite location.
type DatabaseConfig struct {
	Path string `yaml:"path" env:"SKENER_DB" env-default:"skener.sqlite3"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"SKENER_LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"SKENER_LOG_FORMAT" env-default:"text"`
	File   string `yaml:"file"   env:"SKENER_LOG_FILE"`
}

// AdminConfig names the account created on first run.
type AdminConfig struct {
	Username string `yaml:"username" env:"SKENER_ADMIN" env-default:"Admin"`
}

// CaptureConfig holds camera and decoder settings.
type CaptureConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"    env:"SKENER_CAPTURE_POLL_INTERVAL" env-default:"100ms"`
	Formats        []string      `yaml:"formats"          env:"SKENER_CAPTURE_FORMATS"       env-separator:","`
	TryHarder      bool          `yaml:"try_harder"       env:"SKENER_CAPTURE_TRY_HARDER"    env-default:"true"`
	MaxDimension   int           `yaml:"max_dimension"    env:"SKENER_CAPTURE_MAX_DIMENSION" env-default:"1280"`
	IdealWidth     int           `yaml:"ideal_width"      env:"SKENER_CAPTURE_IDEAL_WIDTH"   env-default:"1280"`
	IdealHeight    int           `yaml:"ideal_height"     env:"SKENER_CAPTURE_IDEAL_HEIGHT"  env-default:"720"`
	FixedWidth     int           `yaml:"fixed_width"      env:"SKENER_CAPTURE_FIXED_WIDTH"   env-default:"640"`
	FixedHeight    int           `yaml:"fixed_height"     env:"SKENER_CAPTURE_FIXED_HEIGHT"  env-default:"480"`
	IdealFrameRate float64       `yaml:"ideal_frame_rate" env:"SKENER_CAPTURE_FRAME_RATE"    env-default:"30"`
}

// Ladder returns the acquisition ladder configured by c.
func (c CaptureConfig) Ladder() []capture.Constraints {
	return capture.DefaultLadder(capture.LadderOptions{
		IdealWidth:     c.IdealWidth,
		IdealHeight:    c.IdealHeight,
		IdealFrameRate: c.IdealFrameRate,
		FixedWidth:     c.FixedWidth,
		FixedHeight:    c.FixedHeight,
	})
}

// DecodeOptions returns the decoder options configured by c.
func (c CaptureConfig) DecodeOptions() decode.Options {
	return decode.Options{TryHarder: c.TryHarder, MaxDimension: c.MaxDimension}
}

// SearchConfig holds search settings.
type SearchConfig struct {
	Debounce time.Duration `yaml:"debounce" env:"SKENER_SEARCH_DEBOUNCE" env-default:"300ms"`
}

// Lookup modes.
const (
	LookupLocal  = "local"
	LookupRemote = "remote"
)

// LookupConfig selects where items are resolved.
type LookupConfig struct {
	Mode    string        `yaml:"mode"     env:"SKENER_LOOKUP_MODE"    env-default:"local"`
	BaseURL string        `yaml:"base_url" env:"SKENER_LOOKUP_URL"`
	Token   string        `yaml:"token"    env:"SKENER_LOOKUP_TOKEN"`
	Timeout time.Duration `yaml:"timeout"  env:"SKENER_LOOKUP_TIMEOUT" env-default:"10s"`
}
