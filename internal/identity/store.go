// Package identity implements the Identity Validator (C1) and Admin
// Identity Store (C2) from spec §4.2–§4.3.
package identity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/thunder45/service-translate/internal/apierrors"
	"github.com/thunder45/service-translate/internal/storage"
	"github.com/thunder45/service-translate/pkg/logging"
)

// Store is the Admin Identity Store (C2): one file per admin named by
// stable ID, plus a small index mapping display name and email to ID.
// Writes are atomic (write-to-temp + rename) and serialized per-identity,
// exactly as §4.3 requires.
type Store struct {
	dir    string
	logger *logging.Logger

	recordLocksMu sync.RWMutex
	recordLocks   map[string]*sync.Mutex

	indexMu     sync.RWMutex
	byDisplay   map[string]string // display name -> admin ID
	byEmail     map[string]string // email -> admin ID

	mirror *sqliteMirror // optional queryable mirror, see DESIGN.md
}

const indexFileName = "_index.json"

type indexFile struct {
	ByDisplayName map[string]string `json:"byDisplayName"`
	ByEmail       map[string]string `json:"byEmail"`
}

// NewStore opens (or creates) the identity store directory and loads its
// index file.
func NewStore(dir string, logger *logging.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apierrors.Wrap(apierrors.CodePersistenceIO, "could not create admin identity directory", err)
	}

	s := &Store{
		dir:         dir,
		logger:      logger,
		recordLocks: make(map[string]*sync.Mutex),
		byDisplay:   make(map[string]string),
		byEmail:     make(map[string]string),
	}

	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// WithMirror attaches a queryable GORM/SQLite mirror; the file store
// remains canonical.
func (s *Store) WithMirror(m *sqliteMirror) *Store {
	s.mirror = m
	return s
}

func (s *Store) lockFor(adminID string) *sync.Mutex {
	s.recordLocksMu.RLock()
	l, ok := s.recordLocks[adminID]
	s.recordLocksMu.RUnlock()
	if ok {
		return l
	}

	s.recordLocksMu.Lock()
	defer s.recordLocksMu.Unlock()
	if l, ok := s.recordLocks[adminID]; ok {
		return l
	}
	l = &sync.Mutex{}
	s.recordLocks[adminID] = l
	return l
}

func (s *Store) recordPath(adminID string) string {
	return filepath.Join(s.dir, adminID+".json")
}

func (s *Store) writeWithRetry(path string, v any) error {
	if err := storage.WriteWithRetry(path, v); err != nil {
		s.logger.Errorf("persistence write to %s quarantined after retry: %v", path, err)
		return apierrors.Wrap(apierrors.CodePersistenceIO, "failed to persist admin identity record", err)
	}
	return nil
}

func (s *Store) loadIndex() error {
	path := filepath.Join(s.dir, indexFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return apierrors.Wrap(apierrors.CodePersistenceIO, "failed to read admin identity index", err)
	}

	var idx indexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		return apierrors.New(apierrors.CodeIdentityRecordCorrupt, err.Error(), "Admin identity index is corrupted.")
	}

	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if idx.ByDisplayName != nil {
		s.byDisplay = idx.ByDisplayName
	}
	if idx.ByEmail != nil {
		s.byEmail = idx.ByEmail
	}
	return nil
}

func (s *Store) persistIndexLocked() error {
	idx := indexFile{ByDisplayName: s.byDisplay, ByEmail: s.byEmail}
	return s.writeWithRetry(filepath.Join(s.dir, indexFileName), idx)
}

// GetByID looks up an identity by its stable admin ID.
func (s *Store) GetByID(adminID string) (*AdminIdentity, error) {
	data, err := os.ReadFile(s.recordPath(adminID))
	if os.IsNotExist(err) {
		return nil, apierrors.New(apierrors.CodeIdentityNotFound, "no record for admin ID", "Admin account not found.")
	}
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodePersistenceIO, "failed to read admin identity record", err)
	}

	var rec AdminIdentity
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apierrors.New(apierrors.CodeIdentityRecordCorrupt, err.Error(), "Admin identity record is corrupted.")
	}
	return &rec, nil
}

// GetByDisplayName resolves a display name to the full record via the
// index.
func (s *Store) GetByDisplayName(displayName string) (*AdminIdentity, error) {
	s.indexMu.RLock()
	id, ok := s.byDisplay[displayName]
	s.indexMu.RUnlock()
	if !ok {
		return nil, apierrors.New(apierrors.CodeIdentityNotFound, "no record for display name", "Admin account not found.")
	}
	return s.GetByID(id)
}

// GetByEmail resolves an email to the full record via the index.
func (s *Store) GetByEmail(email string) (*AdminIdentity, error) {
	s.indexMu.RLock()
	id, ok := s.byEmail[email]
	s.indexMu.RUnlock()
	if !ok {
		return nil, apierrors.New(apierrors.CodeIdentityNotFound, "no record for email", "Admin account not found.")
	}
	return s.GetByID(id)
}

// CreateOrTouch is idempotent: re-authentication of an existing admin
// returns the existing record with updated last-seen, per §4.3.
func (s *Store) CreateOrTouch(ext ExternalIdentity) (*AdminIdentity, error) {
	lock := s.lockFor(ext.AdminID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	rec, err := s.GetByID(ext.AdminID)
	if err != nil {
		if apierrors.CodeOf(err) != apierrors.CodeIdentityNotFound {
			return nil, err
		}
		rec = &AdminIdentity{
			ID:            ext.AdminID,
			DisplayName:   ext.DisplayName,
			Email:         ext.Email,
			CreatedAt:     now,
			LastSeenAt:    now,
			OwnedSessions: []string{},
		}
	} else {
		rec.LastSeenAt = now
	}

	if err := s.writeWithRetry(s.recordPath(rec.ID), rec); err != nil {
		return nil, err
	}

	s.indexMu.Lock()
	s.byDisplay[rec.DisplayName] = rec.ID
	s.byEmail[rec.Email] = rec.ID
	idxErr := s.persistIndexLocked()
	s.indexMu.Unlock()
	if idxErr != nil {
		return nil, idxErr
	}

	if s.mirror != nil {
		s.mirror.upsert(rec)
	}

	return rec, nil
}

// mutateOwnedSessions applies fn to the owned-sessions set under the
// per-identity lock and persists the result.
func (s *Store) mutateOwnedSessions(adminID string, fn func(sessions []string) []string) error {
	lock := s.lockFor(adminID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.GetByID(adminID)
	if err != nil {
		return err
	}
	rec.OwnedSessions = fn(rec.OwnedSessions)

	if err := s.writeWithRetry(s.recordPath(rec.ID), rec); err != nil {
		return err
	}
	if s.mirror != nil {
		s.mirror.upsert(rec)
	}
	return nil
}

// AddOwnedSession records a session ID under the admin's owned set.
func (s *Store) AddOwnedSession(adminID, sessionID string) error {
	return s.mutateOwnedSessions(adminID, func(sessions []string) []string {
		for _, existing := range sessions {
			if existing == sessionID {
				return sessions
			}
		}
		return append(sessions, sessionID)
	})
}

// RemoveOwnedSession drops a session ID from the admin's owned set,
// implementing the one-sided repair described in spec §9 ("Cyclic
// references"): the Session Registry does not need to know about this
// removal, only the Store's own side of the relationship changes.
func (s *Store) RemoveOwnedSession(adminID, sessionID string) error {
	return s.mutateOwnedSessions(adminID, func(sessions []string) []string {
		out := sessions[:0]
		for _, existing := range sessions {
			if existing != sessionID {
				out = append(out, existing)
			}
		}
		return out
	})
}

// SweepExpired removes identities with no active connection and no owned
// sessions after retention, per §3's AdminIdentity lifecycle. hasActiveConn
// lets the caller (which tracks live connections) decide liveness without
// this package depending on the connection layer.
func (s *Store) SweepExpired(retention time.Duration, hasActiveConn func(adminID string) bool) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, apierrors.Wrap(apierrors.CodePersistenceIO, "failed to list admin identity directory", err)
	}

	removed := 0
	cutoff := time.Now().Add(-retention)
	for _, e := range entries {
		if e.IsDir() || e.Name() == indexFileName || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		adminID := e.Name()[:len(e.Name())-len(".json")]

		rec, err := s.GetByID(adminID)
		if err != nil {
			continue
		}
		if len(rec.OwnedSessions) > 0 {
			continue
		}
		if hasActiveConn != nil && hasActiveConn(adminID) {
			continue
		}
		if rec.LastSeenAt.After(cutoff) {
			continue
		}

		lock := s.lockFor(adminID)
		lock.Lock()
		if err := os.Remove(s.recordPath(adminID)); err == nil {
			removed++
			s.indexMu.Lock()
			delete(s.byDisplay, rec.DisplayName)
			delete(s.byEmail, rec.Email)
			_ = s.persistIndexLocked()
			s.indexMu.Unlock()
			if s.mirror != nil {
				s.mirror.delete(adminID)
			}
		}
		lock.Unlock()
	}
	return removed, nil
}

// StartRetentionSweep runs SweepExpired on an interval until stop is closed,
// a ticker-driven cleanup goroutine.
func (s *Store) StartRetentionSweep(stop <-chan struct{}, interval, retention time.Duration, hasActiveConn func(adminID string) bool) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := s.SweepExpired(retention, hasActiveConn); err != nil {
					s.logger.Errorf("admin identity retention sweep failed: %v", err)
				} else if n > 0 {
					s.logger.Infof("admin identity retention sweep removed %d identities", n)
				}
			case <-stop:
				return
			}
		}
	}()
}
