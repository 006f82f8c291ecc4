// Package router implements the Message Router (C9), §4.6: the single
// locus of frame parsing, authorization, state mutation, and broadcast,
// dispatching by wire message type and serializing apply-then-broadcast
// per session under a per-session mutex so distinct sessions proceed in
// parallel (§5).
package router

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/thunder45/service-translate/internal/apierrors"
	"github.com/thunder45/service-translate/internal/cost"
	"github.com/thunder45/service-translate/internal/fanout"
	"github.com/thunder45/service-translate/internal/frames"
	"github.com/thunder45/service-translate/internal/identity"
	"github.com/thunder45/service-translate/internal/metrics"
	"github.com/thunder45/service-translate/internal/session"
	"github.com/thunder45/service-translate/internal/telemetry"
	"github.com/thunder45/service-translate/internal/tokencache"
	"github.com/thunder45/service-translate/internal/tts"
	"github.com/thunder45/service-translate/internal/wsserver"
	"github.com/thunder45/service-translate/pkg/logging"
)

// Router is the Message Router. It satisfies wsserver.FrameHandler.
type Router struct {
	validator  *identity.Validator
	identities *identity.Store
	tokens     tokencache.Cache
	sessions   *session.Registry
	fanout     *fanout.Index
	tts        *tts.Pipeline
	supervisor *wsserver.Supervisor
	logger     *logging.Logger

	costPrices    cost.Prices
	costThreshold float64
	costCooldown  time.Duration
	costMu        sync.Mutex
	costTrackers  map[string]*cost.Tracker

	sessLockMu sync.Mutex
	sessLocks  map[string]*sync.Mutex

	adminConnMu sync.Mutex
	adminConns  map[string]map[string]struct{} // adminID -> set of connection IDs
}

type Config struct {
	CostPrices    cost.Prices
	CostThreshold float64
	CostCooldown  time.Duration
}

func New(
	validator *identity.Validator,
	identities *identity.Store,
	tokens tokencache.Cache,
	sessions *session.Registry,
	fanoutIdx *fanout.Index,
	pipeline *tts.Pipeline,
	supervisor *wsserver.Supervisor,
	cfg Config,
	logger *logging.Logger,
) *Router {
	return &Router{
		validator:     validator,
		identities:    identities,
		tokens:        tokens,
		sessions:      sessions,
		fanout:        fanoutIdx,
		tts:           pipeline,
		supervisor:    supervisor,
		logger:        logger,
		costPrices:    cfg.CostPrices,
		costThreshold: cfg.CostThreshold,
		costCooldown:  cfg.CostCooldown,
		costTrackers:  make(map[string]*cost.Tracker),
		sessLocks:     make(map[string]*sync.Mutex),
		adminConns:    make(map[string]map[string]struct{}),
	}
}

// HandleFrame implements wsserver.FrameHandler. Each frame gets its own
// trace span, named after the wire type, for the router's per-frame
// tracing.
func (r *Router) HandleFrame(ctx context.Context, conn *wsserver.Connection, frameType frames.Type, raw []byte) {
	ctx, span := telemetry.Tracer().Start(ctx, string(frameType))
	defer span.End()

	switch frameType {
	case frames.TypeAdminAuth:
		r.handleAdminAuth(ctx, conn, raw)
	case frames.TypeStartSession:
		r.handleStartSession(ctx, conn, raw)
	case frames.TypeEndSession:
		r.handleEndSession(ctx, conn, raw)
	case frames.TypeUpdateSessionConfig:
		r.handleUpdateSessionConfig(ctx, conn, raw)
	case frames.TypeTranslation:
		r.handleTranslation(ctx, conn, raw)
	case frames.TypeJoinSession:
		r.handleJoinSession(ctx, conn, raw)
	case frames.TypeChangeLanguage:
		r.handleChangeLanguage(ctx, conn, raw)
	case frames.TypeLeaveSession:
		r.handleLeaveSession(ctx, conn, raw)
	default:
		conn.EnqueueError(apierrors.New(apierrors.CodeValidationMalformedFrame, "unsupported frame type: "+string(frameType), "Unsupported message type."))
	}
}

// HandleDisconnect implements wsserver.FrameHandler, releasing every
// resource a connection held: token cache entry, admin connection-set
// membership, session listener/admin bindings, and fan-out subscription
// (§4.1: "On every close it notifies the Message Router so that
// subscriptions, owned-session links, and token-cache entries are
// released").
func (r *Router) HandleDisconnect(conn *wsserver.Connection) {
	b := conn.Binding()
	r.tokens.Evict(conn.ID())

	if b.Role == wsserver.RoleAdmin && b.AdminID != "" {
		r.removeAdminConn(b.AdminID, conn.ID())
		if b.SessionID != "" {
			if err := r.sessions.UnbindAdminConnection(b.SessionID, conn.ID()); err != nil {
				r.logger.Debugf("unbind admin connection on disconnect: %v", err)
			}
		}
	}

	if b.Role == wsserver.RoleListener && b.SessionID != "" {
		r.fanout.Unsubscribe(b.SessionID, conn.ID())
		if err := r.sessions.RemoveListener(b.SessionID, conn.ID()); err != nil {
			r.logger.Debugf("remove listener on disconnect: %v", err)
		}
	}
}

func decode[T any](raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero, apierrors.New(apierrors.CodeValidationMalformedFrame, err.Error(), "Malformed message.")
	}
	return v, nil
}

// withSessionLock serializes apply-then-broadcast for a single session,
// per §4.6/§5: "the Router is single-threaded per session for apply and
// broadcast... distinct sessions run in parallel."
func (r *Router) withSessionLock(sessionID string, fn func()) {
	r.sessLockMu.Lock()
	lock, ok := r.sessLocks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		r.sessLocks[sessionID] = lock
	}
	r.sessLockMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	fn()
}

func (r *Router) addAdminConn(adminID, connID string) {
	r.adminConnMu.Lock()
	defer r.adminConnMu.Unlock()
	set, ok := r.adminConns[adminID]
	if !ok {
		set = make(map[string]struct{})
		r.adminConns[adminID] = set
	}
	set[connID] = struct{}{}
}

func (r *Router) removeAdminConn(adminID, connID string) {
	r.adminConnMu.Lock()
	defer r.adminConnMu.Unlock()
	if set, ok := r.adminConns[adminID]; ok {
		delete(set, connID)
	}
}

// HasActiveConnection reports whether adminID currently has at least one
// open connection, used by the Admin Identity Store's retention sweep to
// avoid expiring an identity that is still connected (§3's AdminIdentity
// lifecycle).
func (r *Router) HasActiveConnection(adminID string) bool {
	r.adminConnMu.Lock()
	defer r.adminConnMu.Unlock()
	return len(r.adminConns[adminID]) > 0
}

// broadcastToAdmin sends a frame to every active connection bound to
// adminID, per §4.6's tie-break: "status-update frames are broadcast to
// every active connection for that admin identity."
func (r *Router) broadcastToAdmin(adminID string, v any) {
	r.adminConnMu.Lock()
	ids := make([]string, 0, len(r.adminConns[adminID]))
	for id := range r.adminConns[adminID] {
		ids = append(ids, id)
	}
	r.adminConnMu.Unlock()

	for _, id := range ids {
		if c, ok := r.supervisor.Connection(id); ok {
			if _, err := c.EnqueueFrame(v); err != nil {
				r.logger.Warnf("failed to encode admin broadcast frame: %v", err)
			}
		}
	}
}

// broadcastStatus sends a session-status-update to every admin connection
// for the session's owner.
func (r *Router) broadcastStatus(sess session.Session) {
	clientCount := len(sess.ListenerConnIDs)
	if sess.CurrentAdminConnID != "" {
		clientCount++
	}
	r.broadcastToAdmin(sess.OwnerAdminID, frames.SessionStatusUpdate{
		Type:        frames.TypeSessionStatusUpdate,
		SessionID:   sess.ID,
		Status:      sess.Status,
		ClientCount: clientCount,
	})
}

func (r *Router) trackerFor(sessionID string) *cost.Tracker {
	r.costMu.Lock()
	defer r.costMu.Unlock()
	t, ok := r.costTrackers[sessionID]
	if !ok {
		t = cost.NewTracker(sessionID, r.costPrices, r.costThreshold, r.costCooldown)
		r.costTrackers[sessionID] = t
	}
	return t
}

func (r *Router) finishTracker(sessionID string) cost.Breakdown {
	r.costMu.Lock()
	defer r.costMu.Unlock()
	t, ok := r.costTrackers[sessionID]
	if !ok {
		return cost.Breakdown{SessionID: sessionID}
	}
	delete(r.costTrackers, sessionID)
	return t.Finish()
}
