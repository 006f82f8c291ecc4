package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminIdentity is the durable record the Admin Identity Store (C2) owns,
// per spec §3. Every session ID listed in OwnedSessions must exist in the
// Session Registry with this identity as owner.
type AdminIdentity struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"createdAt"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
	OwnedSessions []string `json:"ownedSessions"`
}

// Claims are the JWT claims embedded in access and refresh tokens the
// Identity Validator (C1) issues.
type Claims struct {
	AdminID string `json:"adminId"`
	Email   string `json:"email"`
	jwt.RegisteredClaims
}

// AuthTokens is the tuple returned to a freshly authenticated admin
// connection.
type AuthTokens struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// AuthResult is the tuple §4.2 specifies for Authenticate-by-credentials
// and Authenticate-by-token: (stable admin ID, display name, email, access
// token, refresh token, access-token expiry). Authenticate-by-token omits
// fresh tokens by leaving Tokens zero-valued.
type AuthResult struct {
	AdminID     string
	DisplayName string
	Email       string
	Tokens      AuthTokens
}

// ExternalIdentity is what the external identity provider (§1's black box)
// hands back on a successful credential check.
type ExternalIdentity struct {
	AdminID     string
	DisplayName string
	Email       string
}
