package fanout

import (
	"sort"
	"testing"
)

func TestSubscribeAndSnapshot(t *testing.T) {
	idx := NewIndex()
	idx.Subscribe("SESSION-2026-001", "es", "conn-1")
	idx.Subscribe("SESSION-2026-001", "es", "conn-2")
	idx.Subscribe("SESSION-2026-001", "fr", "conn-3")

	es := idx.Snapshot("SESSION-2026-001", "es")
	sort.Strings(es)
	if len(es) != 2 || es[0] != "conn-1" || es[1] != "conn-2" {
		t.Fatalf("unexpected es subscribers: %v", es)
	}

	fr := idx.Snapshot("SESSION-2026-001", "fr")
	if len(fr) != 1 || fr[0] != "conn-3" {
		t.Fatalf("unexpected fr subscribers: %v", fr)
	}

	// A connection subscribed to es must never appear in fr's snapshot.
	for _, c := range fr {
		if c == "conn-1" || c == "conn-2" {
			t.Fatalf("es subscriber leaked into fr snapshot: %v", fr)
		}
	}
}

func TestChangeLanguageMovesAtomically(t *testing.T) {
	idx := NewIndex()
	idx.Subscribe("SESSION-2026-001", "es", "conn-1")

	idx.ChangeLanguage("SESSION-2026-001", "es", "fr", "conn-1")

	if es := idx.Snapshot("SESSION-2026-001", "es"); len(es) != 0 {
		t.Fatalf("conn-1 should no longer be subscribed to es, got %v", es)
	}
	fr := idx.Snapshot("SESSION-2026-001", "fr")
	if len(fr) != 1 || fr[0] != "conn-1" {
		t.Fatalf("conn-1 should be subscribed to fr, got %v", fr)
	}
}

func TestUnsubscribeRemovesFromEveryLanguage(t *testing.T) {
	idx := NewIndex()
	idx.Subscribe("SESSION-2026-001", "es", "conn-1")
	idx.Subscribe("SESSION-2026-001", "fr", "conn-1")

	idx.Unsubscribe("SESSION-2026-001", "conn-1")

	if es := idx.Snapshot("SESSION-2026-001", "es"); len(es) != 0 {
		t.Fatalf("expected no es subscribers after unsubscribe, got %v", es)
	}
	if fr := idx.Snapshot("SESSION-2026-001", "fr"); len(fr) != 0 {
		t.Fatalf("expected no fr subscribers after unsubscribe, got %v", fr)
	}
}

func TestLanguagesOnlyReportsNonEmptySets(t *testing.T) {
	idx := NewIndex()
	idx.Subscribe("SESSION-2026-001", "es", "conn-1")
	idx.Subscribe("SESSION-2026-001", "fr", "conn-2")
	idx.Unsubscribe("SESSION-2026-001", "conn-2")

	langs := idx.Languages("SESSION-2026-001")
	if len(langs) != 1 || langs[0] != "es" {
		t.Fatalf("expected only [es] to have active subscribers, got %v", langs)
	}
}

func TestRemoveSessionDropsAllState(t *testing.T) {
	idx := NewIndex()
	idx.Subscribe("SESSION-2026-001", "es", "conn-1")
	idx.RemoveSession("SESSION-2026-001")

	if es := idx.Snapshot("SESSION-2026-001", "es"); len(es) != 0 {
		t.Fatalf("expected empty snapshot after RemoveSession, got %v", es)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	idx := NewIndex()
	idx.Subscribe("SESSION-A-2026-001", "es", "conn-1")
	idx.Subscribe("SESSION-B-2026-001", "es", "conn-2")

	a := idx.Snapshot("SESSION-A-2026-001", "es")
	if len(a) != 1 || a[0] != "conn-1" {
		t.Fatalf("session A fan-out leaked session B's subscriber: %v", a)
	}
}
