// Package telemetry holds the labels shared by structured logs and
// metrics of every ipywire component.
package telemetry

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

type Label string

var (
	LabelError       Label = "error"
	LabelCommID      Label = "comm_id"
	LabelTarget      Label = "target"
	LabelFrameType   Label = "frame_type"
	LabelModelID     Label = "model_id"
	LabelModelName   Label = "model_name"
	LabelMethod      Label = "method"
	LabelProperty    Label = "property"
	LabelRequestID   Label = "request_id"
	LabelStatus      Label = "status"
	LabelPeerAddr    Label = "peer_addr"
	LabelDuration    Label = "duration"
	LabelTransport   Label = "transport"
	LabelPerspective Label = "perspective"
)

// M returns a metric label.
func (lab Label) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

// L returns a structured log attribute.
func (lab Label) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}

// Labels appends extra to a copy of static, so the static slice shared by
// a component is never mutated.
func Labels(static []metrics.Label, extra ...metrics.Label) []metrics.Label {
	out := make([]metrics.Label, 0, len(static)+len(extra))
	out = append(out, static...)
	return append(out, extra...)
}

// Logger returns a logger for handler, or the default one when nil.
func Logger(handler slog.Handler) *slog.Logger {
	if handler == nil {
		return slog.Default()
	}
	return slog.New(handler)
}

// Sink returns sink, or the global go-metrics sink when nil.
func Sink(sink metrics.MetricSink) metrics.MetricSink {
	if sink == nil {
		return metrics.Default()
	}
	return sink
}
