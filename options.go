package ipywire

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-metrics"
)

const defaultSendTimeout = 10 * time.Second

type config struct {
	logHandler   slog.Handler
	msink        metrics.MetricSink
	metricLabels []metrics.Label
	registry     *Registry
	echoUpdates  bool
	sendTimeout  time.Duration
}

// Option to pass to `NewManager`.
type Option func(*config) error

func newConfig(opts []Option) (*config, error) {
	cfg := &config{
		sendTimeout: defaultSendTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
		}
	}
	if cfg.registry == nil {
		cfg.registry = NewRegistry()
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
// the manager.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(c *config) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.msink = ms
		return nil
	}
}

// WithMetricLabels adds static labels to all metrics produced by the
// manager.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(c *config) error {
		c.metricLabels = labels
		return nil
	}
}

// WithRegistry sets the factories used for widgets opened by the
// frontend. Without it, the frontend cannot create widgets.
func WithRegistry(reg *Registry) Option {
	return func(c *config) error {
		if reg == nil {
			return errors.New("nil registry")
		}
		c.registry = reg
		return nil
	}
}

// WithEchoUpdates makes the manager acknowledge every inbound `update`
// with an `echo_update` carrying the applied state, as ipywidgets 8
// kernels do when the frontend asks for it.
func WithEchoUpdates(enabled bool) Option {
	return func(c *config) error {
		c.echoUpdates = enabled
		return nil
	}
}

// WithSendTimeout bounds the messages the manager sends on its own, for
// instance updates caused by a property write.
func WithSendTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout < 0 {
			return errors.New("send timeout must be positive")
		}
		if timeout == 0 {
			timeout = defaultSendTimeout
		}
		c.sendTimeout = timeout
		return nil
	}
}
