package router

import (
	"context"

	"github.com/thunder45/service-translate/internal/apierrors"
	"github.com/thunder45/service-translate/internal/frames"
	"github.com/thunder45/service-translate/internal/identity"
	"github.com/thunder45/service-translate/internal/tokencache"
	"github.com/thunder45/service-translate/internal/wsserver"
)

// handleAdminAuth implements §4.2's authenticate-by-credentials and
// authenticate-by-token operations, and §4.3's idempotent identity
// creation.
func (r *Router) handleAdminAuth(ctx context.Context, conn *wsserver.Connection, raw []byte) {
	f, err := decode[frames.AdminAuth](raw)
	if err != nil {
		conn.EnqueueError(err)
		return
	}

	var result identity.AuthResult
	switch f.Method {
	case frames.AuthMethodCredentials:
		result, err = r.validator.AuthenticateByCredentials(ctx, f.Username, f.Password)
	case frames.AuthMethodToken:
		result, err = r.validator.AuthenticateByToken(ctx, f.AccessToken)
	default:
		err = apierrors.New(apierrors.CodeValidationMissingField, "admin-auth method must be credentials or token", "Missing authentication method.")
	}
	if err != nil {
		conn.EnqueueFrame(frames.AdminAuthResponse{Type: frames.TypeAdminAuthResponse, Success: false})
		conn.EnqueueError(err)
		return
	}

	rec, err := r.identities.CreateOrTouch(identity.ExternalIdentity{
		AdminID:     result.AdminID,
		DisplayName: result.DisplayName,
		Email:       result.Email,
	})
	if err != nil {
		conn.EnqueueError(err)
		return
	}

	conn.UpdateBinding(func(b *wsserver.Binding) {
		b.Role = wsserver.RoleAdmin
		b.AdminID = rec.ID
	})
	r.addAdminConn(rec.ID, conn.ID())

	if result.Tokens.AccessToken != "" {
		r.tokens.Put(conn.ID(), tokencache.Entry{
			AccessToken: result.Tokens.AccessToken,
			AdminID:     rec.ID,
			ExpiresAt:   result.Tokens.ExpiresAt,
		})
	}

	owned := r.sessions.ListByOwner(rec.ID)
	for _, sid := range owned {
		// Most recent connection wins the "current admin connection" slot,
		// per §4.6's tie-break for multiple connections of the same admin.
		if err := r.sessions.BindAdminConnection(sid, conn.ID()); err != nil {
			r.logger.Debugf("rebind admin connection for session %s: %v", sid, err)
		}
	}

	conn.EnqueueFrame(frames.AdminAuthResponse{
		Type:          frames.TypeAdminAuthResponse,
		Success:       true,
		AdminID:       rec.ID,
		AccessToken:   result.Tokens.AccessToken,
		RefreshToken:  result.Tokens.RefreshToken,
		ExpiresAt:     result.Tokens.ExpiresAt,
		OwnedSessions: owned,
	})
}
