package ipywire

var (
	MetricWidgetRegisteredCount = []string{"ipywire", "widget", "registered", "count"}
	MetricWidgetFrontendCount   = []string{"ipywire", "widget", "frontend", "opened", "count"}
	MetricWidgetClosedCount     = []string{"ipywire", "widget", "closed", "count"}
	MetricWidgetUpdateOutCount  = []string{"ipywire", "widget", "update", "out", "count"}
	MetricWidgetUpdateInCount   = []string{"ipywire", "widget", "update", "in", "count"}
	MetricWidgetCustomInCount   = []string{"ipywire", "widget", "custom", "in", "count"}
	MetricWidgetErrorCount      = []string{"ipywire", "widget", "error", "count"}
	MetricWidgetResyncCount     = []string{"ipywire", "widget", "resync", "count"}
	MetricWidgetSendLatency     = []string{"ipywire", "widget", "send", "latency", "ms"}
)
