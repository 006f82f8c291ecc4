// Package fanout implements the Language Fan-out Index (C5): for each
// session, which listener connections are subscribed to which target
// language, so a translated segment for language L reaches exactly the
// listeners currently subscribed to L (§4.5), via an in-memory index
// guarded by a snapshot-then-iterate broadcast style.
package fanout

import "sync"

// sessionIndex holds one session's language -> listener-connection-ID
// membership. A dedicated mutex per session avoids contending a single
// global lock across unrelated sessions under concurrent broadcast.
type sessionIndex struct {
	mu         sync.RWMutex
	byLanguage map[string]map[string]struct{}
}

func newSessionIndex() *sessionIndex {
	return &sessionIndex{byLanguage: make(map[string]map[string]struct{})}
}

// Index is the Language Fan-out Index.
type Index struct {
	mu       sync.RWMutex
	sessions map[string]*sessionIndex
}

func NewIndex() *Index {
	return &Index{sessions: make(map[string]*sessionIndex)}
}

func (idx *Index) sessionFor(sessionID string) *sessionIndex {
	idx.mu.RLock()
	si, ok := idx.sessions[sessionID]
	idx.mu.RUnlock()
	if ok {
		return si
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if si, ok := idx.sessions[sessionID]; ok {
		return si
	}
	si = newSessionIndex()
	idx.sessions[sessionID] = si
	return si
}

// Subscribe adds connectionID as a listener for language within sessionID.
func (idx *Index) Subscribe(sessionID, language, connectionID string) {
	si := idx.sessionFor(sessionID)
	si.mu.Lock()
	defer si.mu.Unlock()
	set, ok := si.byLanguage[language]
	if !ok {
		set = make(map[string]struct{})
		si.byLanguage[language] = set
	}
	set[connectionID] = struct{}{}
}

// ChangeLanguage atomically moves connectionID from oldLanguage to
// newLanguage, so a listener never briefly receives both or neither
// (§4.5's change-language operation).
func (idx *Index) ChangeLanguage(sessionID, oldLanguage, newLanguage, connectionID string) {
	si := idx.sessionFor(sessionID)
	si.mu.Lock()
	defer si.mu.Unlock()
	if set, ok := si.byLanguage[oldLanguage]; ok {
		delete(set, connectionID)
	}
	set, ok := si.byLanguage[newLanguage]
	if !ok {
		set = make(map[string]struct{})
		si.byLanguage[newLanguage] = set
	}
	set[connectionID] = struct{}{}
}

// Unsubscribe removes connectionID from every language within sessionID,
// used on leave-session and listener disconnect.
func (idx *Index) Unsubscribe(sessionID, connectionID string) {
	si := idx.sessionFor(sessionID)
	si.mu.Lock()
	defer si.mu.Unlock()
	for _, set := range si.byLanguage {
		delete(set, connectionID)
	}
}

// Snapshot returns the current listener connection IDs for a language, a
// stable slice safe to range over while broadcasting without holding the
// index lock.
func (idx *Index) Snapshot(sessionID, language string) []string {
	si := idx.sessionFor(sessionID)
	si.mu.RLock()
	defer si.mu.RUnlock()
	set := si.byLanguage[language]
	out := make([]string, 0, len(set))
	for connID := range set {
		out = append(out, connID)
	}
	return out
}

// Languages returns every language with at least one current subscriber
// in the session. The Router does not call it; translations are resolved
// through the TTS pipeline whether or not anyone is subscribed.
func (idx *Index) Languages(sessionID string) []string {
	si := idx.sessionFor(sessionID)
	si.mu.RLock()
	defer si.mu.RUnlock()
	out := make([]string, 0, len(si.byLanguage))
	for lang, set := range si.byLanguage {
		if len(set) > 0 {
			out = append(out, lang)
		}
	}
	return out
}

// RemoveSession drops all fan-out state for a session, used on session
// end.
func (idx *Index) RemoveSession(sessionID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.sessions, sessionID)
}
