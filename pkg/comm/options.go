package comm

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

const defaultInboxSize = 256

type config struct {
	logHandler   slog.Handler
	msink        metrics.MetricSink
	metricLabels []metrics.Label
	inboxSize    int
	maxFrameSize int
	targets      map[string]OpenFunc
}

// Option to pass to `NewEndpoint` and to the transports building one.
type Option func(*config) error

func newConfig(opts []Option) (*config, error) {
	cfg := &config{
		inboxSize:    defaultInboxSize,
		maxFrameSize: DefaultMaxFrameSize,
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
// the endpoint.
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
// endpoint.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(c *config) error {
		c.metricLabels = labels
		return nil
	}
}

// WithInboxSize controls how many inbound frames can wait for dispatch
// before the transport is blocked.
func WithInboxSize(size int) Option {
	return func(c *config) error {
		if size < 0 {
			return errors.New("inbox size must be positive")
		}
		if size == 0 {
			size = defaultInboxSize
		}
		c.inboxSize = size
		return nil
	}
}

// WithMaxFrameSize bounds the size of frames read by stream transports.
func WithMaxFrameSize(size int) Option {
	return func(c *config) error {
		if size < 0 {
			return errors.New("max frame size must be positive")
		}
		if size == 0 {
			size = DefaultMaxFrameSize
		}
		c.maxFrameSize = size
		return nil
	}
}

// WithTarget registers fn for target before any frame is dispatched, so
// comms opened by the remote side as soon as the session starts are not
// rejected.
func WithTarget(target string, fn OpenFunc) Option {
	return func(c *config) error {
		if target == "" || fn == nil {
			return ErrTargetInvalid
		}
		if _, exists := c.targets[target]; exists {
			return fmt.Errorf("%w: %s", ErrTargetConflict, target)
		}
		if c.targets == nil {
			c.targets = make(map[string]OpenFunc)
		}
		c.targets[target] = fn
		return nil
	}
}
