package router

import (
	"context"

	"github.com/thunder45/service-translate/internal/apierrors"
	"github.com/thunder45/service-translate/internal/frames"
	"github.com/thunder45/service-translate/internal/session"
	"github.com/thunder45/service-translate/internal/wsserver"
)

// handleJoinSession implements §4.6's join semantics: joining with a
// language outside the session's enabled set is rejected with no
// subscription created.
func (r *Router) handleJoinSession(ctx context.Context, conn *wsserver.Connection, raw []byte) {
	f, err := decode[frames.JoinSession](raw)
	if err != nil {
		conn.EnqueueError(err)
		return
	}

	sess, err := r.sessions.Get(f.SessionID)
	if err != nil {
		conn.EnqueueError(err)
		return
	}
	if !sess.Config.HasLanguage(f.PreferredLanguage) {
		conn.EnqueueError(apierrors.New(
			apierrors.CodeValidationUnsupportedLanguage,
			"preferred language not in session's enabled set",
			"That language is not available for this session.",
		))
		return
	}

	conn.UpdateBinding(func(b *wsserver.Binding) {
		b.Role = wsserver.RoleListener
		b.SessionID = f.SessionID
		b.SubscribedLanguage = f.PreferredLanguage
		b.LocalTTSCapable = f.AudioCapabilities.LocalTTS
	})
	r.fanout.Subscribe(f.SessionID, f.PreferredLanguage, conn.ID())
	if err := r.sessions.AddListener(f.SessionID, conn.ID()); err != nil {
		r.logger.Errorf("failed to record listener for session %s: %v", f.SessionID, err)
	}

	conn.EnqueueFrame(frames.SessionMetadata{
		Type:               frames.TypeSessionMetadata,
		Config:             sess.Config,
		AvailableLanguages: sess.Config.TargetLanguages,
		TTSAvailable:       sess.Config.TTSMode != session.TTSModeDisabled,
	})

	if sess.CurrentAdminConnID != "" {
		if updated, err := r.sessions.Get(f.SessionID); err == nil {
			r.broadcastStatus(updated)
		}
	}
}

// handleChangeLanguage implements §4.5's single-critical-section move
// between language buckets.
func (r *Router) handleChangeLanguage(ctx context.Context, conn *wsserver.Connection, raw []byte) {
	f, err := decode[frames.ChangeLanguage](raw)
	if err != nil {
		conn.EnqueueError(err)
		return
	}

	b := conn.Binding()
	if b.SessionID == "" {
		conn.EnqueueError(apierrors.New(apierrors.CodeSessionNotFound, "connection has not joined a session", "Join a session before changing language."))
		return
	}

	sess, err := r.sessions.Get(b.SessionID)
	if err != nil {
		conn.EnqueueError(err)
		return
	}
	if !sess.Config.HasLanguage(f.NewLanguage) {
		conn.EnqueueError(apierrors.New(apierrors.CodeValidationUnsupportedLanguage, "requested language not in session's enabled set", "That language is not available for this session."))
		return
	}

	r.fanout.ChangeLanguage(b.SessionID, b.SubscribedLanguage, f.NewLanguage, conn.ID())
	conn.UpdateBinding(func(bd *wsserver.Binding) { bd.SubscribedLanguage = f.NewLanguage })
}

// handleLeaveSession implements listener unsubscription.
func (r *Router) handleLeaveSession(ctx context.Context, conn *wsserver.Connection, raw []byte) {
	b := conn.Binding()
	if b.SessionID == "" {
		return
	}
	r.fanout.Unsubscribe(b.SessionID, conn.ID())
	if err := r.sessions.RemoveListener(b.SessionID, conn.ID()); err != nil {
		r.logger.Debugf("remove listener on leave-session: %v", err)
	}
	conn.UpdateBinding(func(bd *wsserver.Binding) {
		bd.SessionID = ""
		bd.SubscribedLanguage = ""
	})
}
