package main

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Metrics collects and aggregates load test metrics
type Metrics struct {
	mu sync.Mutex

	startTime time.Time
	endTime   time.Time

	// Global histogram (microseconds for precision)
	histogram *hdrhistogram.Histogram

	formatHistograms map[string]*hdrhistogram.Histogram
	formatSuccess    map[string]int64
	formatTotal      map[string]int64
	formatDropped    map[string]int64

	totalRequests int64
	successCount  int64
	timeoutCount  int64
	errorCount    int64
	bytesReceived int64
	dropped       int64
}

func newHistogram() *hdrhistogram.Histogram {
	// 1us to 60s, 3 significant figures
	return hdrhistogram.New(1, 60_000_000, 3)
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		histogram:        newHistogram(),
		formatHistograms: make(map[string]*hdrhistogram.Histogram),
		formatSuccess:    make(map[string]int64),
		formatTotal:      make(map[string]int64),
		formatDropped:    make(map[string]int64),
	}
}

// Start marks the beginning of the test
func (m *Metrics) Start() {
	m.mu.Lock()
	m.startTime = time.Now()
	m.mu.Unlock()
}

// Stop marks the end of the test
func (m *Metrics) Stop() {
	m.mu.Lock()
	m.endTime = time.Now()
	m.mu.Unlock()
}

// Record adds a request result to the metrics
func (m *Metrics) Record(result RequestResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRequests++
	m.formatTotal[result.Format]++

	if us := result.Latency.Microseconds(); us > 0 {
		_ = m.histogram.RecordValue(us)
		h, ok := m.formatHistograms[result.Format]
		if !ok {
			h = newHistogram()
			m.formatHistograms[result.Format] = h
		}
		_ = h.RecordValue(us)
	}

	switch {
	case result.Success:
		m.successCount++
		m.formatSuccess[result.Format]++
		m.bytesReceived += result.Bytes
	case result.Timeout:
		m.timeoutCount++
	default:
		m.errorCount++
	}
}

// Drop counts a job that was never sent because every worker was busy
func (m *Metrics) Drop(format string) {
	m.mu.Lock()
	m.dropped++
	m.formatDropped[format]++
	m.mu.Unlock()
}

type snapshot struct {
	completed int64
	dropped   int64
}

// Snapshot returns running totals for progress output
func (m *Metrics) Snapshot() snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return snapshot{completed: m.totalRequests, dropped: m.dropped}
}

// Results represents the final test results
type Results struct {
	Duration      time.Duration `json:"duration"`
	TargetRPS     int           `json:"target_rps"`
	AchievedRPS   float64       `json:"achieved_rps"`
	TotalRequests int64         `json:"total_requests"`

	// Latency percentiles in milliseconds
	LatencyP50 float64 `json:"latency_p50_ms"`
	LatencyP90 float64 `json:"latency_p90_ms"`
	LatencyP95 float64 `json:"latency_p95_ms"`
	LatencyP99 float64 `json:"latency_p99_ms"`
	LatencyMax float64 `json:"latency_max_ms"`
	LatencyMin float64 `json:"latency_min_ms"`
	LatencyAvg float64 `json:"latency_avg_ms"`

	SuccessCount  int64 `json:"success_count"`
	TimeoutCount  int64 `json:"timeout_count"`
	ErrorCount    int64 `json:"error_count"`
	BytesReceived int64 `json:"bytes_received"`
	Dropped       int64 `json:"dropped"`

	FormatResults []FormatResult `json:"format_results,omitempty"`
}

// FormatResult holds per-format metrics
type FormatResult struct {
	Format      string  `json:"format"`
	Requests    int64   `json:"requests"`
	Dropped     int64   `json:"dropped"`
	SuccessRate float64 `json:"success_rate"`
	LatencyP50  float64 `json:"latency_p50_ms"`
	LatencyP99  float64 `json:"latency_p99_ms"`
}

func millis(us int64) float64 {
	return float64(us) / 1000.0
}

// GetResults computes the final results
func (m *Metrics) GetResults(targetRPS int) *Results {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := m.endTime.Sub(m.startTime)
	if duration <= 0 {
		duration = time.Second
	}

	results := &Results{
		Duration:      duration,
		TargetRPS:     targetRPS,
		AchievedRPS:   float64(m.totalRequests) / duration.Seconds(),
		TotalRequests: m.totalRequests,

		LatencyP50: millis(m.histogram.ValueAtPercentile(50)),
		LatencyP90: millis(m.histogram.ValueAtPercentile(90)),
		LatencyP95: millis(m.histogram.ValueAtPercentile(95)),
		LatencyP99: millis(m.histogram.ValueAtPercentile(99)),
		LatencyMax: millis(m.histogram.Max()),
		LatencyMin: millis(m.histogram.Min()),
		LatencyAvg: m.histogram.Mean() / 1000.0,

		SuccessCount:  m.successCount,
		TimeoutCount:  m.timeoutCount,
		ErrorCount:    m.errorCount,
		BytesReceived: m.bytesReceived,
		Dropped:       m.dropped,
	}

	formats := make(map[string]struct{}, len(m.formatTotal))
	for format := range m.formatTotal {
		formats[format] = struct{}{}
	}
	for format := range m.formatDropped {
		formats[format] = struct{}{}
	}
	for format := range formats {
		total := m.formatTotal[format]
		fr := FormatResult{Format: format, Requests: total, Dropped: m.formatDropped[format]}
		if total > 0 {
			fr.SuccessRate = float64(m.formatSuccess[format]) / float64(total)
		}
		if h, ok := m.formatHistograms[format]; ok {
			fr.LatencyP50 = millis(h.ValueAtPercentile(50))
			fr.LatencyP99 = millis(h.ValueAtPercentile(99))
		}
		results.FormatResults = append(results.FormatResults, fr)
	}
	sort.Slice(results.FormatResults, func(i, j int) bool {
		return results.FormatResults[i].Format < results.FormatResults[j].Format
	})

	return results
}
