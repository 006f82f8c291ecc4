// Package cost implements the Cost Tracker (C8): per-service running
// totals, a rolling one-hour window for a throttled threshold alarm, and
// a final breakdown emitted on session end, guarded by a per-session
// mutex over a sliding window of priced usage events.
package cost

import (
	"sync"
	"time"
)

// Service is a billable upstream service, per §3's CostLedger.
type Service string

const (
	ServiceTranscription Service = "transcription" // priced per second
	ServiceTranslation    Service = "translation"   // priced per character
	ServiceSynthesis      Service = "synthesis"      // priced per character
)

// Prices maps each service to its unit price, from configuration.
type Prices map[Service]float64

// Breakdown is the final per-session cost record emitted on session end.
type Breakdown struct {
	SessionID string             `json:"sessionId"`
	Units     map[Service]float64 `json:"units"`
	Cost      map[Service]float64 `json:"cost"`
	Total     float64            `json:"total"`
}

type usageEvent struct {
	at      time.Time
	service Service
	units   float64
}

// Tracker is one session's CostLedger.
type Tracker struct {
	sessionID string
	prices    Prices
	threshold float64
	cooldown  time.Duration

	mu           sync.Mutex
	totals       map[Service]float64
	window       []usageEvent
	lastWarnedAt time.Time
}

// NewTracker resets a CostLedger at session start, per §3's lifecycle.
func NewTracker(sessionID string, prices Prices, threshold float64, cooldown time.Duration) *Tracker {
	return &Tracker{
		sessionID: sessionID,
		prices:    prices,
		threshold: threshold,
		cooldown:  cooldown,
		totals:    make(map[Service]float64),
	}
}

// Record reports units consumed of service and returns whether a new
// threshold-alarm warning should be raised (throttled by cooldown, per
// §4.8: "emits a single throttled warning event").
func (t *Tracker) Record(service Service, units float64) (warn bool, hourlyRate float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.totals[service] += units
	t.window = append(t.window, usageEvent{at: now, service: service, units: units})
	t.pruneLocked(now)

	hourlyRate = t.projectedHourlyRateLocked()
	if hourlyRate <= t.threshold {
		return false, hourlyRate
	}
	if now.Sub(t.lastWarnedAt) < t.cooldown {
		return false, hourlyRate
	}
	t.lastWarnedAt = now
	return true, hourlyRate
}

func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := 0
	for ; i < len(t.window); i++ {
		if t.window[i].at.After(cutoff) {
			break
		}
	}
	t.window = t.window[i:]
}

func (t *Tracker) projectedHourlyRateLocked() float64 {
	if len(t.window) == 0 {
		return 0
	}
	span := time.Since(t.window[0].at)
	if span < time.Second {
		span = time.Second
	}
	var windowCost float64
	for _, ev := range t.window {
		windowCost += ev.units * t.prices[ev.service]
	}
	return windowCost * (time.Hour.Seconds() / span.Seconds())
}

// Finish freezes the ledger and returns the final breakdown, per §4.8:
// "On session end, the Tracker emits a final breakdown record."
func (t *Tracker) Finish() Breakdown {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := Breakdown{
		SessionID: t.sessionID,
		Units:     make(map[Service]float64, len(t.totals)),
		Cost:      make(map[Service]float64, len(t.totals)),
	}
	for svc, units := range t.totals {
		b.Units[svc] = units
		svcCost := units * t.prices[svc]
		b.Cost[svc] = svcCost
		b.Total += svcCost
	}
	return b
}
