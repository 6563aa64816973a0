package notekit

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-metrics"
)

const (
	// DefaultTarget is the comm target of the notebook manipulator.
	DefaultTarget  = "jupyter.notekit.v1"
	DefaultTimeout = 30 * time.Second
)

type config struct {
	logHandler   slog.Handler
	msink        metrics.MetricSink
	metricLabels []metrics.Label
	target       string
	timeout      time.Duration
}

// Option to pass to `NewManipulator`.
type Option func(*config) error

func newConfig(opts []Option) (*config, error) {
	cfg := &config{
		target:  DefaultTarget,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
		}
	}
	return cfg, nil
}

// WithLog specifies which `slog.Handler` to use.
func WithLog(handler slog.Handler) Option {
	return func(c *config) error {
		c.logHandler = handler
		return nil
	}
}

// WithMetricSink allows you to chose how to collect the metrics emitted by
// the manipulator.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(c *config) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.msink = ms
		return nil
	}
}

func WithMetricLabels(labels []metrics.Label) Option {
	return func(c *config) error {
		c.metricLabels = labels
		return nil
	}
}

// WithTarget sets the comm target requests are sent on.
// An empty target means `DefaultTarget`.
func WithTarget(target string) Option {
	return func(c *config) error {
		if target == "" {
			target = DefaultTarget
		}
		c.target = target
		return nil
	}
}

// WithTimeout bounds the wait for each response.
// Zero means `DefaultTimeout`.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout < 0 {
			return errors.New("timeout must be positive")
		}
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		c.timeout = timeout
		return nil
	}
}
