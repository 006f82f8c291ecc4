package identity

import (
	"testing"
	"time"

	"github.com/thunder45/service-translate/pkg/logging"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), logging.New(true))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestCreateOrTouchIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ext := ExternalIdentity{AdminID: "admin-1", DisplayName: "alice", Email: "alice@example.com"}

	first, err := s.CreateOrTouch(ext)
	if err != nil {
		t.Fatalf("first CreateOrTouch: %v", err)
	}
	firstCreatedAt := first.CreatedAt

	time.Sleep(time.Millisecond)
	second, err := s.CreateOrTouch(ext)
	if err != nil {
		t.Fatalf("second CreateOrTouch: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("expected the same admin ID across calls, got %q then %q", first.ID, second.ID)
	}
	if !second.CreatedAt.Equal(firstCreatedAt) {
		t.Fatalf("re-authentication must not reset CreatedAt: %v vs %v", second.CreatedAt, firstCreatedAt)
	}
	if !second.LastSeenAt.After(first.LastSeenAt) {
		t.Fatalf("expected LastSeenAt to advance on re-authentication")
	}
}

func TestGetByDisplayNameAndEmailResolveViaIndex(t *testing.T) {
	s := newTestStore(t)
	ext := ExternalIdentity{AdminID: "admin-1", DisplayName: "alice", Email: "alice@example.com"}
	if _, err := s.CreateOrTouch(ext); err != nil {
		t.Fatalf("CreateOrTouch: %v", err)
	}

	byName, err := s.GetByDisplayName("alice")
	if err != nil {
		t.Fatalf("GetByDisplayName: %v", err)
	}
	if byName.ID != "admin-1" {
		t.Fatalf("unexpected ID via display name: %q", byName.ID)
	}

	byEmail, err := s.GetByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if byEmail.ID != "admin-1" {
		t.Fatalf("unexpected ID via email: %q", byEmail.ID)
	}
}

func TestAddOwnedSessionIsSetLike(t *testing.T) {
	s := newTestStore(t)
	ext := ExternalIdentity{AdminID: "admin-1", DisplayName: "alice", Email: "alice@example.com"}
	if _, err := s.CreateOrTouch(ext); err != nil {
		t.Fatalf("CreateOrTouch: %v", err)
	}

	if err := s.AddOwnedSession("admin-1", "SESSION-2026-001"); err != nil {
		t.Fatalf("AddOwnedSession: %v", err)
	}
	if err := s.AddOwnedSession("admin-1", "SESSION-2026-001"); err != nil {
		t.Fatalf("AddOwnedSession (duplicate): %v", err)
	}

	rec, err := s.GetByID("admin-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(rec.OwnedSessions) != 1 {
		t.Fatalf("expected owned sessions to stay a set, got %v", rec.OwnedSessions)
	}
}

func TestRemoveOwnedSession(t *testing.T) {
	s := newTestStore(t)
	ext := ExternalIdentity{AdminID: "admin-1", DisplayName: "alice", Email: "alice@example.com"}
	if _, err := s.CreateOrTouch(ext); err != nil {
		t.Fatalf("CreateOrTouch: %v", err)
	}
	if err := s.AddOwnedSession("admin-1", "SESSION-2026-001"); err != nil {
		t.Fatalf("AddOwnedSession: %v", err)
	}
	if err := s.RemoveOwnedSession("admin-1", "SESSION-2026-001"); err != nil {
		t.Fatalf("RemoveOwnedSession: %v", err)
	}

	rec, err := s.GetByID("admin-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(rec.OwnedSessions) != 0 {
		t.Fatalf("expected owned sessions to be empty, got %v", rec.OwnedSessions)
	}
}

func TestSweepExpiredSkipsIdentitiesWithOwnedSessionsOrLiveConnections(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.CreateOrTouch(ExternalIdentity{AdminID: "admin-owns", DisplayName: "owns", Email: "owns@example.com"}); err != nil {
		t.Fatalf("CreateOrTouch admin-owns: %v", err)
	}
	if err := s.AddOwnedSession("admin-owns", "SESSION-2026-001"); err != nil {
		t.Fatalf("AddOwnedSession: %v", err)
	}

	if _, err := s.CreateOrTouch(ExternalIdentity{AdminID: "admin-connected", DisplayName: "connected", Email: "connected@example.com"}); err != nil {
		t.Fatalf("CreateOrTouch admin-connected: %v", err)
	}

	if _, err := s.CreateOrTouch(ExternalIdentity{AdminID: "admin-idle", DisplayName: "idle", Email: "idle@example.com"}); err != nil {
		t.Fatalf("CreateOrTouch admin-idle: %v", err)
	}

	hasActiveConn := func(adminID string) bool { return adminID == "admin-connected" }

	removed, err := s.SweepExpired(-time.Second, hasActiveConn)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected exactly 1 identity removed, got %d", removed)
	}

	if _, err := s.GetByID("admin-owns"); err != nil {
		t.Fatalf("admin-owns should survive sweep (has owned sessions): %v", err)
	}
	if _, err := s.GetByID("admin-connected"); err != nil {
		t.Fatalf("admin-connected should survive sweep (has a live connection): %v", err)
	}
	if _, err := s.GetByID("admin-idle"); err == nil {
		t.Fatalf("admin-idle should have been swept")
	}
}
