package notekit

var (
	MetricRequestCount        = []string{"ipywire", "notekit", "request", "count"}
	MetricRequestErrorCount   = []string{"ipywire", "notekit", "request", "error", "count"}
	MetricRequestTimeoutCount = []string{"ipywire", "notekit", "request", "timeout", "count"}
	MetricRequestLatency      = []string{"ipywire", "notekit", "request", "latency"}
	MetricResponseDropCount   = []string{"ipywire", "notekit", "response", "dropped", "count"}
	MetricCommOpenCount       = []string{"ipywire", "notekit", "comm", "open", "count"}
)
