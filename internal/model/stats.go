package model

// ScanStats aggregates summary analytics for an entire scan.
type ScanStats struct {
	TotalProxies   int     `json:"total_proxies"`
	UniqueProxies  int     `json:"unique_proxies"`
	WorkingProxies int     `json:"working_proxies"`
	DeadProxies    int     `json:"dead_proxies"`
	SuccessRatePct float64 `json:"success_rate_pct"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"` // working proxies only

	Buckets   map[LatencyBucket]int `json:"latency_buckets"`
	Anonymity map[Anonymity]int     `json:"anonymity"`

	Targets          int `json:"targets"`
	ReachableProxies int `json:"reachable_proxies"` // at least one target granted
	GrantedCells     int `json:"granted_cells"`

	TotalProcessingTimeMs int64 `json:"total_processing_time_ms"`
}
