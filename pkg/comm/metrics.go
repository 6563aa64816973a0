package comm

var (
	MetricCommFrameInCount      = []string{"ipywire", "comm", "frame", "in", "count"}
	MetricCommFrameOutCount     = []string{"ipywire", "comm", "frame", "out", "count"}
	MetricCommFrameOutErrCount  = []string{"ipywire", "comm", "frame", "out", "error", "count"}
	MetricCommFrameBytes        = []string{"ipywire", "comm", "frame", "bytes"}
	MetricCommOpenCount         = []string{"ipywire", "comm", "open", "count"}
	MetricCommRejectedCount     = []string{"ipywire", "comm", "rejected", "count"}
	MetricCommDroppedCount      = []string{"ipywire", "comm", "dropped", "count"}
	MetricCommHandlerPanicCount = []string{"ipywire", "comm", "handler", "panic", "count"}
)
