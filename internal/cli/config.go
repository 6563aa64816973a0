package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/raskyld/ipywire/pkg/comm"
	"github.com/raskyld/ipywire/pkg/notekit"
)

var ErrInvalidConfig = errors.New("cli: invalid configuration")

// Config of `ipywire serve`, read from TOML.
type Config struct {
	LogLevel string `toml:"log_level"`

	HTTP    HTTPConfig    `toml:"http"`
	QUIC    QUICConfig    `toml:"quic"`
	Session SessionConfig `toml:"session"`
}

type HTTPConfig struct {
	// Listen serves /ws, /metrics and /healthz. Empty disables HTTP.
	Listen         string `toml:"listen"`
	AllowAnyOrigin bool   `toml:"allow_any_origin"`
}

type QUICConfig struct {
	// Listen is empty to disable QUIC.
	Listen   string `toml:"listen"`
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
}

type SessionConfig struct {
	EchoUpdates    bool     `toml:"echo_updates"`
	SendTimeout    Duration `toml:"send_timeout"`
	NotekitTarget  string   `toml:"notekit_target"`
	NotekitTimeout Duration `toml:"notekit_timeout"`
	MaxFrameSize   int      `toml:"max_frame_size"`

	// InspectNotebook asks the frontend for its cell count when a session
	// starts.
	InspectNotebook bool `toml:"inspect_notebook"`
}

// Duration reads TOML strings such as "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		HTTP: HTTPConfig{
			Listen: "127.0.0.1:8888",
		},
		Session: SessionConfig{
			SendTimeout:    Duration{10 * time.Second},
			NotekitTarget:  notekit.DefaultTarget,
			NotekitTimeout: Duration{notekit.DefaultTimeout},
			MaxFrameSize:   comm.DefaultMaxFrameSize,
		},
	}
}

// LoadConfig reads path over the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return cfg, fmt.Errorf("%w: unknown keys %v", ErrInvalidConfig, undecoded)
		}
	}
	return cfg, cfg.Validate()
}

func (cfg Config) Validate() error {
	var errs []error
	if cfg.HTTP.Listen == "" && cfg.QUIC.Listen == "" {
		errs = append(errs, errors.New("nothing to listen on, set http.listen or quic.listen"))
	}
	if cfg.QUIC.Listen != "" && (cfg.QUIC.CertFile == "" || cfg.QUIC.KeyFile == "") {
		errs = append(errs, errors.New("quic needs cert_file and key_file"))
	}
	if cfg.Session.SendTimeout.Duration < 0 || cfg.Session.NotekitTimeout.Duration < 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if cfg.Session.MaxFrameSize < 0 {
		errs = append(errs, errors.New("max_frame_size must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
