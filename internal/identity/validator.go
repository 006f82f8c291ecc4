package identity

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/thunder45/service-translate/internal/apierrors"
	"github.com/thunder45/service-translate/pkg/logging"
)

// Validator is the Identity Validator (C1). It never caches secrets —
// only the validated identity tuple passes through it, per §4.2.
type Validator struct {
	provider        ExternalProvider
	logger          *logging.Logger
	jwtSecret       []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

func NewValidator(provider ExternalProvider, logger *logging.Logger, jwtSecret string, accessTTL, refreshTTL time.Duration) *Validator {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 24 * time.Hour
	}
	return &Validator{
		provider:        provider,
		logger:          logger,
		jwtSecret:       []byte(jwtSecret),
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
	}
}

// AuthenticateByCredentials implements §4.2's first operation: delegate to
// the external provider, then mint fresh tokens on success.
func (v *Validator) AuthenticateByCredentials(ctx context.Context, displayName, secret string) (AuthResult, error) {
	ext, err := v.provider.CheckCredentials(ctx, displayName, secret)
	if err != nil {
		if err == ErrProviderUnavailable {
			return AuthResult{}, apierrors.Wrap(
				apierrors.CodeUpstreamIdentityProviderUnavailable,
				"The identity provider is temporarily unavailable.",
				err,
			)
		}
		return AuthResult{}, err
	}

	tokens, err := v.generateTokens(ext.AdminID, ext.Email)
	if err != nil {
		v.logger.Errorf("failed to generate tokens for admin %s: %v", ext.AdminID, err)
		return AuthResult{}, apierrors.Wrap(apierrors.CodeInternal, "Could not complete authentication.", err)
	}

	return AuthResult{
		AdminID:     ext.AdminID,
		DisplayName: ext.DisplayName,
		Email:       ext.Email,
		Tokens:      tokens,
	}, nil
}

// AuthenticateByToken implements §4.2's second operation: verify signature
// and expiry locally, no call to the external provider, and no fresh
// tokens in the result.
func (v *Validator) AuthenticateByToken(ctx context.Context, accessToken string) (AuthResult, error) {
	claims, err := v.parseClaims(accessToken)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		AdminID:     claims.AdminID,
		DisplayName: "",
		Email:       claims.Email,
	}, nil
}

// Refresh implements §4.2's third operation: exchange a refresh token for a
// new access token, rotating both tokens together.
func (v *Validator) Refresh(ctx context.Context, refreshToken string) (AuthTokens, error) {
	claims, err := v.parseClaims(refreshToken)
	if err != nil {
		return AuthTokens{}, apierrors.Wrap(apierrors.CodeRefreshExpired, "Your session has expired, please sign in again.", err)
	}

	return v.generateTokens(claims.AdminID, claims.Email)
}

func (v *Validator) parseClaims(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, apierrors.New(apierrors.CodeTokenInvalid, "token parse/verify failed", "Your session is invalid, please sign in again.")
	}
	return claims, nil
}

func (v *Validator) generateTokens(adminID, email string) (AuthTokens, error) {
	now := time.Now()
	expiresAt := now.Add(v.accessTokenTTL)

	accessClaims := &Claims{
		AdminID: adminID,
		Email:   email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   adminID,
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(v.jwtSecret)
	if err != nil {
		return AuthTokens{}, err
	}

	refreshClaims := &Claims{
		AdminID: adminID,
		Email:   email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(v.refreshTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   adminID,
		},
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(v.jwtSecret)
	if err != nil {
		return AuthTokens{}, err
	}

	return AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}
