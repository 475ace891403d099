package app

import (
	"sync/atomic"
	"time"
)

// Metrics tracks task computations.
type Metrics struct {
	computeCount   atomic.Uint64
	computeFailed  atomic.Uint64
	computeTotalNs atomic.Int64
	computeMinNs   atomic.Int64
	computeMaxNs   atomic.Int64
	lastComputeNs  atomic.Int64
	tasksReturned  atomic.Uint64

	startTime time.Time
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
	}
	// Initialize min to max int64 so the first computation is smaller.
	m.computeMinNs.Store(1<<63 - 1)
	return m
}

// RecordCompute records one folder computation.
func (m *Metrics) RecordCompute(duration time.Duration, tasks int, err error) {
	ns := duration.Nanoseconds()

	m.computeCount.Add(1)
	m.computeTotalNs.Add(ns)
	m.lastComputeNs.Store(ns)
	if err != nil {
		m.computeFailed.Add(1)
	} else {
		m.tasksReturned.Add(uint64(tasks))
	}

	for {
		old := m.computeMinNs.Load()
		if ns >= old || m.computeMinNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.computeMaxNs.Load()
		if ns <= old || m.computeMaxNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Computations uint64
	Failures     uint64
	Tasks        uint64
	AvgCompute   time.Duration
	MinCompute   time.Duration
	MaxCompute   time.Duration
	LastCompute  time.Duration
	Uptime       time.Duration
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	count := m.computeCount.Load()

	s := MetricsSnapshot{
		Computations: count,
		Failures:     m.computeFailed.Load(),
		Tasks:        m.tasksReturned.Load(),
		MaxCompute:   time.Duration(m.computeMaxNs.Load()),
		LastCompute:  time.Duration(m.lastComputeNs.Load()),
		Uptime:       time.Since(m.startTime),
	}
	if count > 0 {
		s.AvgCompute = time.Duration(m.computeTotalNs.Load() / int64(count))
		s.MinCompute = time.Duration(m.computeMinNs.Load())
	}
	return s
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.computeCount.Store(0)
	m.computeFailed.Store(0)
	m.computeTotalNs.Store(0)
	m.computeMinNs.Store(1<<63 - 1)
	m.computeMaxNs.Store(0)
	m.lastComputeNs.Store(0)
	m.tasksReturned.Store(0)
}
