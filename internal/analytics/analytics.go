package analytics

import (
	"time"

	"github.com/August26/proxymatrix/internal/model"
)

// Compute summarizes Phase 1 results and the target matrix of one scan.
func Compute(results []model.ProxyCheckResult, matrix []model.TargetResult, duration time.Duration) model.ScanStats {
	stats := model.ScanStats{
		TotalProxies:          len(results),
		Buckets:               make(map[model.LatencyBucket]int),
		Anonymity:             make(map[model.Anonymity]int),
		TotalProcessingTimeMs: duration.Milliseconds(),
	}

	seen := make(map[string]struct{})

	var latencySum int64
	var latencyCount int64

	for _, r := range results {
		seen[r.Key()] = struct{}{}

		stats.Buckets[r.Bucket()]++
		if !r.Working() {
			stats.DeadProxies++
			continue
		}

		stats.WorkingProxies++
		stats.Anonymity[r.Anonymity]++
		if r.LatencyMs >= 0 && r.LatencyMs < model.LatencyUnmeasured {
			latencySum += r.LatencyMs
			latencyCount++
		}
	}

	stats.UniqueProxies = len(seen)
	if latencyCount > 0 {
		stats.AvgLatencyMs = float64(latencySum) / float64(latencyCount)
	}
	if stats.TotalProxies > 0 {
		stats.SuccessRatePct = float64(stats.WorkingProxies) / float64(stats.TotalProxies) * 100.0
	}

	targets := make(map[string]struct{})
	for _, tr := range matrix {
		granted := 0
		for u, o := range tr.PerTarget {
			targets[u] = struct{}{}
			if o.Granted() {
				granted++
			}
		}
		stats.GrantedCells += granted
		if granted > 0 {
			stats.ReachableProxies++
		}
	}
	stats.Targets = len(targets)

	return stats
}
