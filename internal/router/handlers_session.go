package router

import (
	"context"
	"fmt"

	"github.com/thunder45/service-translate/internal/apierrors"
	"github.com/thunder45/service-translate/internal/cost"
	"github.com/thunder45/service-translate/internal/frames"
	"github.com/thunder45/service-translate/internal/metrics"
	"github.com/thunder45/service-translate/internal/session"
	"github.com/thunder45/service-translate/internal/wsserver"
)

func requireAdmin(conn *wsserver.Connection) (wsserver.Binding, error) {
	b := conn.Binding()
	if b.Role != wsserver.RoleAdmin || b.AdminID == "" {
		return b, apierrors.New(apierrors.CodeInsufficientPermission, "connection is not an authenticated admin", "Authentication required.")
	}
	return b, nil
}

// handleStartSession implements §4.4: sessions are created on request
// with a client-proposed or server-minted ID; duplicates are rejected
// (§9 Open Question (a)).
func (r *Router) handleStartSession(ctx context.Context, conn *wsserver.Connection, raw []byte) {
	b, err := requireAdmin(conn)
	if err != nil {
		conn.EnqueueError(err)
		return
	}
	f, err := decode[frames.StartSession](raw)
	if err != nil {
		conn.EnqueueError(err)
		return
	}

	sess, err := r.sessions.Create(b.AdminID, f.SessionID, f.Config)
	if err != nil {
		conn.EnqueueError(err)
		return
	}

	if err := r.identities.AddOwnedSession(b.AdminID, sess.ID); err != nil {
		r.logger.Errorf("failed to record owned session %s for admin %s: %v", sess.ID, b.AdminID, err)
	}
	conn.UpdateBinding(func(bd *wsserver.Binding) { bd.SessionID = sess.ID })
	if err := r.sessions.BindAdminConnection(sess.ID, conn.ID()); err != nil {
		r.logger.Debugf("bind admin connection for new session %s: %v", sess.ID, err)
	}
	r.addAdminConn(b.AdminID, conn.ID())

	r.broadcastStatus(sess)
}

// handleEndSession implements the explicit end transition of §4.4:
// started|active|paused -> ending, then ended once listeners are
// notified and fan-out state is released.
func (r *Router) handleEndSession(ctx context.Context, conn *wsserver.Connection, raw []byte) {
	b, err := requireAdmin(conn)
	if err != nil {
		conn.EnqueueError(err)
		return
	}
	f, err := decode[frames.EndSession](raw)
	if err != nil {
		conn.EnqueueError(err)
		return
	}

	if err := r.sessions.AssertOwner(f.SessionID, b.AdminID); err != nil {
		conn.EnqueueError(err)
		return
	}

	r.withSessionLock(f.SessionID, func() {
		sess, err := r.sessions.Get(f.SessionID)
		if err != nil {
			conn.EnqueueError(err)
			return
		}

		if _, err := r.sessions.End(f.SessionID); err != nil {
			conn.EnqueueError(err)
			return
		}

		notice := frames.ErrorFrame{Type: frames.TypeSessionExpired, Code: "SESSION_ENDED", Message: "the session has ended"}
		for _, listenerConnID := range sess.ListenerConnIDs {
			if lc, ok := r.supervisor.Connection(listenerConnID); ok {
				lc.EnqueueFrame(notice)
			}
		}

		r.fanout.RemoveSession(f.SessionID)
		breakdown := r.finishTracker(f.SessionID)
		r.logger.Infof("session %s cost breakdown: %+v", f.SessionID, breakdown)

		if finished, err := r.sessions.Finish(f.SessionID); err == nil {
			sess.Status = finished
		}
		r.broadcastStatus(sess)
	})
}

// handleUpdateSessionConfig implements §4.4's atomic mid-session
// configuration update: validate, apply, then notify every subscriber —
// listeners whose language was removed are notified, not dropped (§9
// Open Question (b)).
func (r *Router) handleUpdateSessionConfig(ctx context.Context, conn *wsserver.Connection, raw []byte) {
	b, err := requireAdmin(conn)
	if err != nil {
		conn.EnqueueError(err)
		return
	}
	f, err := decode[frames.UpdateSessionConfig](raw)
	if err != nil {
		conn.EnqueueError(err)
		return
	}

	if err := r.sessions.AssertOwner(f.SessionID, b.AdminID); err != nil {
		conn.EnqueueError(err)
		return
	}

	r.withSessionLock(f.SessionID, func() {
		if _, err := r.sessions.UpdateConfig(f.SessionID, f.Config); err != nil {
			conn.EnqueueError(err)
			return
		}

		sess, err := r.sessions.Get(f.SessionID)
		if err != nil {
			conn.EnqueueError(err)
			return
		}

		metadata := frames.SessionMetadata{
			Type:               frames.TypeSessionMetadata,
			Config:             sess.Config,
			AvailableLanguages: sess.Config.TargetLanguages,
			TTSAvailable:       sess.Config.TTSMode != session.TTSModeDisabled,
		}
		for _, listenerConnID := range sess.ListenerConnIDs {
			if lc, ok := r.supervisor.Connection(listenerConnID); ok {
				lc.EnqueueFrame(metadata)
			}
		}
		r.broadcastStatus(sess)
	})
}

// handleTranslation implements §4.6/§4.7: validate, authorize, mark the
// session active on first audio, resolve TTS, and fan out to exactly the
// listeners subscribed to the translation's language (§8 invariant 3).
func (r *Router) handleTranslation(ctx context.Context, conn *wsserver.Connection, raw []byte) {
	b, err := requireAdmin(conn)
	if err != nil {
		conn.EnqueueError(err)
		return
	}
	f, err := decode[frames.Translation](raw)
	if err != nil {
		conn.EnqueueError(err)
		return
	}

	if err := r.sessions.AssertOwner(f.SessionID, b.AdminID); err != nil {
		conn.EnqueueError(err)
		return
	}

	r.withSessionLock(f.SessionID, func() {
		sess, err := r.sessions.Get(f.SessionID)
		if err != nil {
			conn.EnqueueError(err)
			return
		}
		if !sess.Config.HasLanguage(f.Language) {
			conn.EnqueueError(apierrors.New(apierrors.CodeValidationUnsupportedLanguage, "translation language not in session config", "That language is not enabled for this session."))
			return
		}
		if sess.Status == session.StatusStarted || sess.Status == session.StatusPaused {
			if newStatus, err := r.sessions.Activate(f.SessionID); err == nil {
				sess.Status = newStatus
				r.broadcastStatus(sess)
			}
		}

		listenerConnIDs := r.fanout.Snapshot(f.SessionID, f.Language)
		result := r.tts.Resolve(ctx, f.Text, f.Language, sess.Config.TTSMode)

		if result.BilledCharacters > 0 {
			tracker := r.trackerFor(f.SessionID)
			if warn, rate := tracker.Record(cost.ServiceSynthesis, float64(result.BilledCharacters)); warn {
				metrics.CostAlarmTotal.Inc()
				r.broadcastToAdmin(b.AdminID, frames.ErrorFrame{
					Type:    frames.TypeError,
					Code:    "COST_THRESHOLD_EXCEEDED",
					Message: "projected hourly synthesis cost exceeds the configured threshold",
					Details: fmt.Sprintf("$%.2f/hour projected", rate),
				})
			}
		}

		for _, connID := range listenerConnIDs {
			lc, ok := r.supervisor.Connection(connID)
			if !ok {
				continue
			}
			out := frames.OutboundTranslation{
				Type:      frames.TypeTranslation,
				Text:      f.Text,
				Language:  f.Language,
				Timestamp: f.Timestamp,
				AudioURL:  result.AudioURL,
			}
			if result.UseLocalTTS && lc.Binding().LocalTTSCapable {
				out.UseLocalTTS = true
			}
			overflowed, encErr := lc.EnqueueFrame(out)
			if encErr != nil {
				r.logger.Errorf("failed to encode translation frame: %v", encErr)
				continue
			}
			if overflowed {
				r.logger.Warnf("listener %s outbound queue overflowed, disconnecting", connID)
				lc.Close()
			}
		}
		metrics.TranslationsBroadcast.Inc()
	})
}
