package cost

import (
	"testing"
	"time"
)

func testPrices() Prices {
	return Prices{
		ServiceTranscription: 0.01, // per second
		ServiceTranslation:   0.001,
		ServiceSynthesis:     0.002,
	}
}

func TestRecordAccumulatesTotals(t *testing.T) {
	tr := NewTracker("SESSION-2026-001", testPrices(), 1000, time.Minute)

	tr.Record(ServiceTranscription, 10)
	tr.Record(ServiceTranscription, 5)
	tr.Record(ServiceTranslation, 100)

	b := tr.Finish()
	if b.Units[ServiceTranscription] != 15 {
		t.Fatalf("expected 15 transcription units, got %v", b.Units[ServiceTranscription])
	}
	if b.Units[ServiceTranslation] != 100 {
		t.Fatalf("expected 100 translation units, got %v", b.Units[ServiceTranslation])
	}
	wantTotal := 15*0.01 + 100*0.001
	if b.Total != wantTotal {
		t.Fatalf("expected total %v, got %v", wantTotal, b.Total)
	}
}

func TestRecordWarnsOnceUnderCooldown(t *testing.T) {
	tr := NewTracker("SESSION-2026-001", testPrices(), 0.01, time.Hour)

	warn1, _ := tr.Record(ServiceTranscription, 100)
	if !warn1 {
		t.Fatalf("expected first over-threshold Record to warn")
	}

	warn2, _ := tr.Record(ServiceTranscription, 100)
	if warn2 {
		t.Fatalf("expected second over-threshold Record within cooldown to stay silent")
	}
}

func TestRecordStaysSilentUnderThreshold(t *testing.T) {
	tr := NewTracker("SESSION-2026-001", testPrices(), 1_000_000, time.Minute)

	warn, rate := tr.Record(ServiceTranscription, 1)
	if warn {
		t.Fatalf("expected no warning far under threshold, got rate=%v", rate)
	}
}

func TestFinishReturnsEmptyBreakdownForUntouchedTracker(t *testing.T) {
	tr := NewTracker("SESSION-2026-001", testPrices(), 1000, time.Minute)
	b := tr.Finish()
	if b.Total != 0 || len(b.Units) != 0 {
		t.Fatalf("expected empty breakdown, got %+v", b)
	}
	if b.SessionID != "SESSION-2026-001" {
		t.Fatalf("unexpected session ID: %q", b.SessionID)
	}
}
