package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/thunder45/service-translate/internal/apierrors"
	"github.com/thunder45/service-translate/internal/storage"
	"github.com/thunder45/service-translate/pkg/logging"
)

// entry bundles a Session with its own state machine and mutex. The
// top-level Registry map is guarded by a readers-writer lock held in write
// mode only during create/delete (§5); each entry's mutex guards the
// session's own mutable fields, an RWMutex-over-map-of-pointers pattern.
type entry struct {
	mu      sync.Mutex
	session Session
	fsm     *fsm.FSM
}

// Registry is the Session Registry (C4).
type Registry struct {
	dir    string
	logger *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*entry

	counterMu sync.Mutex
	counters  map[string]int // "PREFIX-YYYY" -> last minted NNN
}

func NewRegistry(dir string, logger *logging.Logger) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apierrors.Wrap(apierrors.CodePersistenceIO, "could not create session directory", err)
	}
	return &Registry{
		dir:      dir,
		logger:   logger,
		sessions: make(map[string]*entry),
		counters: make(map[string]int),
	}, nil
}

func (r *Registry) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}

// mintID generates a server-side PREFIX-YYYY-NNN ID when the admin does
// not supply one, per §6.
func (r *Registry) mintID(prefix string) string {
	year := time.Now().Year()
	key := fmt.Sprintf("%s-%04d", prefix, year)

	r.counterMu.Lock()
	defer r.counterMu.Unlock()
	r.counters[key]++
	n := r.counters[key]
	return fmt.Sprintf("%s-%03d", key, n)
}

// Create creates a new session per §4.4: the initial status is "started";
// a duplicate ID is an error (§9 Open Question (a): treated as an error,
// not an idempotent no-op).
func (r *Registry) Create(ownerAdminID string, proposedID string, cfg Configuration) (Session, error) {
	if err := validateConfig(cfg); err != nil {
		return Session{}, err
	}

	id := proposedID
	if id == "" {
		id = r.mintID("SESSION")
	} else if !ValidSessionID(id) {
		return Session{}, apierrors.New(apierrors.CodeValidationBadSessionID, "session ID does not match PREFIX-YYYY-NNN", "Session ID is invalid.")
	}

	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return Session{}, apierrors.New(apierrors.CodeSessionAlreadyExists, "duplicate session ID", "A session with this ID already exists.")
	}

	now := time.Now()
	s := Session{
		ID:              id,
		OwnerAdminID:    ownerAdminID,
		Config:          cfg,
		ListenerConnIDs: []string{},
		Status:          StatusStarted,
		CreatedAt:       now,
		LastActivityAt:  now,
	}
	e := &entry{session: s, fsm: newFSM(StatusStarted)}
	r.sessions[id] = e
	r.mu.Unlock()

	if err := r.persist(e); err != nil {
		return Session{}, err
	}
	return s.Clone(), nil
}

// Get returns a snapshot of the session, or a not-found error.
func (r *Registry) Get(id string) (Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone(), nil
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apierrors.New(apierrors.CodeSessionNotFound, "no session with this ID", "Session not found.")
	}
	return e, nil
}

// AssertOwner enforces invariant (2) from §8: only the owner admin may
// mutate a session.
func (r *Registry) AssertOwner(id, adminID string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.OwnerAdminID != adminID {
		return apierrors.New(apierrors.CodeNotOwner, "connection is not the session owner", "You do not own this session.")
	}
	return nil
}

// BindAdminConnection sets the current admin connection slot, per §3's
// ConnectionBinding invariant (b): admins may reconnect, and the most
// recent connection wins the slot (§4.6's tie-break for multiple
// connections of the same admin identity).
func (r *Registry) BindAdminConnection(id, connectionID string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.session.CurrentAdminConnID = connectionID
	e.session.LastActivityAt = time.Now()
	e.mu.Unlock()
	return r.persist(e)
}

// UnbindAdminConnection clears the current admin connection slot on
// disconnect, per Scenario E: the session is retained, not ended.
func (r *Registry) UnbindAdminConnection(id, connectionID string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if e.session.CurrentAdminConnID == connectionID {
		e.session.CurrentAdminConnID = ""
	}
	e.mu.Unlock()
	return r.persist(e)
}

// AddListener records a listener connection against the session.
func (r *Registry) AddListener(id, connectionID string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.session.ListenerConnIDs = append(e.session.ListenerConnIDs, connectionID)
	e.session.LastActivityAt = time.Now()
	e.mu.Unlock()
	return r.persist(e)
}

// RemoveListener drops a listener connection from the session.
func (r *Registry) RemoveListener(id, connectionID string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	out := e.session.ListenerConnIDs[:0]
	for _, c := range e.session.ListenerConnIDs {
		if c != connectionID {
			out = append(out, c)
		}
	}
	e.session.ListenerConnIDs = out
	e.mu.Unlock()
	return r.persist(e)
}

// Touch records admin translation activity (the "first inbound audio"
// trigger of §4.4 is modeled by the caller invoking Activate; Touch alone
// just updates LastActivityAt for idle/rehydrate bookkeeping).
func (r *Registry) Touch(id string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.session.LastActivityAt = time.Now()
	e.mu.Unlock()
	return r.persist(e)
}

func (r *Registry) applyTransition(id, event string) (Status, error) {
	e, err := r.lookup(id)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	newStatus, err := transition(e.fsm, event)
	if err != nil {
		return e.session.Status, apierrors.New(
			apierrors.CodeSessionInvalidTransition,
			err.Error(),
			"That operation is not valid for the session's current state.",
		)
	}
	e.session.Status = newStatus
	e.session.LastActivityAt = time.Now()
	if perr := r.persist(e); perr != nil {
		return e.session.Status, perr
	}
	return newStatus, nil
}

// Activate transitions started|paused -> active (first inbound audio,
// §4.4).
func (r *Registry) Activate(id string) (Status, error) { return r.applyTransition(id, eventActivate) }

// Pause transitions started|active -> paused (explicit admin pause).
func (r *Registry) Pause(id string) (Status, error) { return r.applyTransition(id, eventPause) }

// End transitions started|active|paused|error -> ending (explicit end
// request, or recovery from error).
func (r *Registry) End(id string) (Status, error) { return r.applyTransition(id, eventEnd) }

// Fault transitions to error on an unrecoverable internal failure.
func (r *Registry) Fault(id string) (Status, error) { return r.applyTransition(id, eventFault) }

// Finish transitions ending -> ended once clients are notified and
// resources released.
func (r *Registry) Finish(id string) (Status, error) {
	status, err := r.applyTransition(id, eventFinish)
	if err != nil {
		return status, err
	}
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	return status, nil
}

// UpdateConfig validates and atomically applies a new configuration,
// per §4.4's "Configuration updates mid-session are atomic". It returns
// the list of target languages that were dropped, so the caller (Router)
// can notify their subscribers without dropping the connection (§9 Open
// Question (b)).
func (r *Registry) UpdateConfig(id string, cfg Configuration) (removed []string, err error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	e, lookupErr := r.lookup(id)
	if lookupErr != nil {
		return nil, lookupErr
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.session.Config.TargetLanguages
	newSet := make(map[string]bool, len(cfg.TargetLanguages))
	for _, l := range cfg.TargetLanguages {
		newSet[l] = true
	}
	for _, l := range old {
		if !newSet[l] {
			removed = append(removed, l)
		}
	}

	e.session.Config = cfg
	e.session.LastActivityAt = time.Now()
	if err := r.persist(e); err != nil {
		return nil, err
	}
	return removed, nil
}

func validateConfig(cfg Configuration) error {
	if !RecognizedLanguages[cfg.SourceLanguage] {
		return apierrors.New(apierrors.CodeValidationUnsupportedLanguage, "unrecognized source language", "Unsupported source language.")
	}
	if len(cfg.TargetLanguages) == 0 {
		return apierrors.New(apierrors.CodeValidationMalformedConfig, "no target languages", "At least one target language is required.")
	}
	for _, l := range cfg.TargetLanguages {
		if !RecognizedLanguages[l] {
			return apierrors.New(apierrors.CodeValidationUnsupportedLanguage, "unrecognized target language: "+l, "Unsupported target language: "+l)
		}
	}
	switch cfg.TTSMode {
	case TTSModeNeural, TTSModeStandard, TTSModeLocal, TTSModeDisabled:
	default:
		return apierrors.New(apierrors.CodeValidationMalformedConfig, "unrecognized TTS mode", "Unsupported TTS mode.")
	}
	return nil
}

func (r *Registry) persist(e *entry) error {
	if err := storage.WriteWithRetry(r.path(e.session.ID), e.session); err != nil {
		r.logger.Errorf("session %s persistence quarantined: %v", e.session.ID, err)
		return apierrors.Wrap(apierrors.CodePersistenceIO, "failed to persist session record", err)
	}
	return nil
}

// Rehydrate loads sessions from disk whose last activity is within window
// and whose status is not terminal, per §4.4: "On process restart, the
// registry rehydrates sessions whose last activity is within a
// configurable window and whose status is not terminal; clients must
// rejoin." Listener connection IDs are intentionally cleared — listeners
// are transient WebSocket connections that no longer exist after restart.
func (r *Registry) Rehydrate(window time.Duration) (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, apierrors.Wrap(apierrors.CodePersistenceIO, "failed to list session directory", err)
	}

	cutoff := time.Now().Add(-window)
	loaded := 0
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}
		var s Session
		if err := storage.ReadJSON(filepath.Join(r.dir, de.Name()), &s); err != nil {
			r.logger.Warnf("skipping unreadable session file %s: %v", de.Name(), err)
			continue
		}
		if s.Status == StatusEnded {
			continue
		}
		if s.LastActivityAt.Before(cutoff) {
			continue
		}
		s.CurrentAdminConnID = ""
		s.ListenerConnIDs = []string{}

		f := newFSM(s.Status)
		r.mu.Lock()
		r.sessions[s.ID] = &entry{session: s, fsm: f}
		r.mu.Unlock()
		loaded++
	}
	return loaded, nil
}

// Count returns the number of sessions currently held in memory, for
// /health.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ListByOwner returns the IDs of live sessions owned by adminID, used to
// populate ownedSessions on reconnect (Scenario E).
func (r *Registry) ListByOwner(adminID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, e := range r.sessions {
		e.mu.Lock()
		owner := e.session.OwnerAdminID
		e.mu.Unlock()
		if owner == adminID {
			ids = append(ids, id)
		}
	}
	return ids
}
