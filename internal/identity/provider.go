package identity

import (
	"context"
	"errors"

	"github.com/thunder45/service-translate/internal/apierrors"
	"golang.org/x/crypto/bcrypt"
)

// ExternalProvider is the contract the server consumes from the identity
// provider named in §1's out-of-scope list — a black box the server only
// talks to through this interface. Production deployments back it with an
// HTTP client against the configured IdentityProviderConfig.Endpoint;
// CheckCredentials never sees a cached secret (§4.2: "the component never
// caches secrets, only the validated identity tuple").
type ExternalProvider interface {
	CheckCredentials(ctx context.Context, displayName, secret string) (ExternalIdentity, error)
}

// ErrProviderUnavailable signals the identity-provider-outage case in §7:
// "Identity-provider outage during token validation causes the affected
// admin connection to be closed with a session-expired notice."
var ErrProviderUnavailable = errors.New("identity provider unavailable")

// StaticProvider is a minimal ExternalProvider backed by an in-memory
// display-name/secret table, standing in for the identity provider during
// local development and tests — the real deployment swaps this for an HTTP
// client without touching the Validator.
type StaticProvider struct {
	byName map[string]staticEntry
}

type staticEntry struct {
	adminID    string
	email      string
	secretHash []byte
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{byName: make(map[string]staticEntry)}
}

// Register adds a credential pair the provider will accept, hashing the
// secret with bcrypt rather than holding it in the clear. Intended for
// test/dev wiring only.
func (p *StaticProvider) Register(adminID, displayName, email, secret string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.byName[displayName] = staticEntry{adminID: adminID, email: email, secretHash: hash}
	return nil
}

func (p *StaticProvider) CheckCredentials(ctx context.Context, displayName, secret string) (ExternalIdentity, error) {
	entry, ok := p.byName[displayName]
	if !ok || bcrypt.CompareHashAndPassword(entry.secretHash, []byte(secret)) != nil {
		return ExternalIdentity{}, apierrors.New(
			apierrors.CodeInvalidCredentials,
			"no matching display name/secret",
			"Invalid username or password.",
		)
	}
	return ExternalIdentity{AdminID: entry.adminID, DisplayName: displayName, Email: entry.email}, nil
}
