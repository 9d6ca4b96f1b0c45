package common

type contextKey string

const (
	TraceIdKey           contextKey = "trace_id"
	FingerprintKey       contextKey = "fingerprint"
	ScanResultContextKey contextKey = "scan_result"
	OperatorContextKey   contextKey = "operator"
)
