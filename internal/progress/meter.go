package progress

import (
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of receive progress. The receiver
// has no advance knowledge of how much data is coming, so there is no
// total or ETA; rate and byte count are what a receiver can know.
type Stats struct {
	Bytes     int64
	RateBps   float64
	Elapsed   time.Duration
	StartedAt time.Time
}

// Meter tracks the session byte counter and computes a smoothed receive
// rate from successive observations.
type Meter struct {
	mu        sync.Mutex
	started   bool
	startedAt time.Time
	lastAt    time.Time
	lastBytes int64
	bytes     int64
	rateBps   float64
	alpha     float64
	now       func() time.Time
}

// NewMeter returns a meter with a default smoothing factor.
func NewMeter() *Meter {
	return NewMeterWithNow(time.Now)
}

// NewMeterWithNow returns a meter with a custom time source (for tests).
func NewMeterWithNow(now func() time.Time) *Meter {
	if now == nil {
		now = time.Now
	}
	return &Meter{alpha: 0.2, now: now}
}

// Observe feeds the current cumulative byte count. Observations are
// expected on a roughly fixed cadence; the rate is an EWMA over the
// deltas between them.
func (m *Meter) Observe(totalBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if !m.started {
		m.started = true
		m.startedAt = now
		m.lastAt = now
		m.lastBytes = totalBytes
		m.bytes = totalBytes
		return
	}
	deltaBytes := totalBytes - m.lastBytes
	deltaTime := now.Sub(m.lastAt).Seconds()
	m.bytes = totalBytes
	if deltaTime <= 0 {
		return
	}
	inst := float64(deltaBytes) / deltaTime
	if m.rateBps == 0 {
		m.rateBps = inst
	} else {
		m.rateBps = m.alpha*inst + (1-m.alpha)*m.rateBps
	}
	m.lastAt = now
	m.lastBytes = totalBytes
}

// Snapshot returns the current progress stats.
func (m *Meter) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Stats{
		Bytes:     m.bytes,
		RateBps:   m.rateBps,
		StartedAt: m.startedAt,
	}
	if m.started {
		stats.Elapsed = m.now().Sub(m.startedAt)
	}
	return stats
}
