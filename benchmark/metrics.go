// Package benchmark - Detection latency benchmarks over synthetic or real
// images at camera resolutions.
package benchmark

import (
	"math"
	"sort"
	"time"
)

// PerformanceMetrics captures the outcome of one scenario.
type PerformanceMetrics struct {
	Scenario          Scenario      `json:"scenario"`
	Timestamp         time.Time     `json:"timestamp"`
	TotalDuration     time.Duration `json:"total_duration"`
	DecodeDuration    time.Duration `json:"decode_duration"`
	InferenceDuration time.Duration `json:"inference_duration"`
	MeanLatency       time.Duration `json:"mean_latency"`
	P50Latency        time.Duration `json:"p50_latency"`
	P95Latency        time.Duration `json:"p95_latency"`
	FramesPerSecond   float64       `json:"frames_per_second"`
	MemoryStats       MemoryMetrics `json:"memory_stats"`
	DetectionCount    int           `json:"detection_count"`
	ErrorRate         float64       `json:"error_rate"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

// percentile returns the nearest-rank p-th percentile (0 < p <= 100) of
// durations, zero when empty. durations is sorted in place.
func percentile(durations []time.Duration, p float64) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	rank := int(math.Ceil(p/100*float64(len(durations)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(durations) {
		rank = len(durations) - 1
	}
	return durations[rank]
}

func mean(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return sum / time.Duration(len(durations))
}
