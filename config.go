package screenstream

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coder/screenstream/capture"
)

// Logger is the minimal logging interface used throughout the server.
// *log.Logger satisfies it, as does the adapter in examples/custom-logger.
type Logger interface {
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}

// NoOpLogger discards all log output.
type NoOpLogger struct{}

func (NoOpLogger) Printf(format string, v ...interface{}) {}
func (NoOpLogger) Println(v ...interface{})               {}

// Config holds the tunables for a streaming session. The zero value is not
// usable directly; pass it through DefaultConfig or New, which fill in
// defaults for anything unset.
type Config struct {
	// Port is the TCP port the hybrid HTTP/WebSocket listener binds on
	// all interfaces. Port 0 binds an ephemeral port; the bound port is
	// reported back by Start.
	Port uint16 `yaml:"port"`

	// DisplayIndex selects which display to stream. It is validated
	// against the live display list on every frame, not at start time.
	DisplayIndex int `yaml:"display_index"`

	// Quality is the JPEG quality (1-100), fixed for the session.
	Quality int `yaml:"quality"`

	// FrameInterval is the pause between frames, a soft frame-rate cap.
	FrameInterval time.Duration `yaml:"frame_interval"`

	// PollInterval bounds how long the accept loop waits before
	// rechecking the stop signal.
	PollInterval time.Duration `yaml:"poll_interval"`

	// SniffTimeout bounds how long a new connection may take to produce
	// its opening bytes.
	SniffTimeout time.Duration `yaml:"sniff_timeout"`

	// Source supplies displays and raw frames. Defaults to the real
	// screen; tests substitute a fake.
	Source capture.Source `yaml:"-"`

	// Logger receives diagnostic output. Defaults to the stdlib logger.
	Logger Logger `yaml:"-"`
}

// DefaultConfig returns the baseline configuration: JPEG quality 60, 50ms
// between frames (about 20 fps), 100ms accept polling, 5s sniff timeout.
func DefaultConfig() Config {
	return Config{
		Port:          9191,
		DisplayIndex:  0,
		Quality:       60,
		FrameInterval: 50 * time.Millisecond,
		PollInterval:  100 * time.Millisecond,
		SniffTimeout:  5 * time.Second,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// withDefaults fills in anything the caller left unset.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = def.Quality
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = def.FrameInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.SniffTimeout <= 0 {
		c.SniffTimeout = def.SniffTimeout
	}
	if c.Source == nil {
		c.Source = capture.NewScreenSource()
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}
