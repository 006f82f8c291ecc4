// Package frames defines the WebSocket wire envelope (§6): every frame is
// a JSON object carrying a `type` discriminator, decoded into the
// concrete struct the Message Router expects for that type.
package frames

import (
	"encoding/json"
	"time"

	"github.com/thunder45/service-translate/internal/apierrors"
	"github.com/thunder45/service-translate/internal/session"
)

type Type string

const (
	TypeAdminAuth             Type = "admin-auth"
	TypeAdminAuthResponse     Type = "admin-auth-response"
	TypeStartSession          Type = "start-session"
	TypeEndSession            Type = "end-session"
	TypeUpdateSessionConfig   Type = "update-session-config"
	TypeTranslation           Type = "translation"
	TypeJoinSession           Type = "join-session"
	TypeChangeLanguage        Type = "change-language"
	TypeLeaveSession          Type = "leave-session"
	TypeSessionMetadata       Type = "session-metadata"
	TypeError                 Type = "error"
	TypeSessionStatusUpdate   Type = "session-status-update"
	TypeTokenExpiryWarning    Type = "token-expiry-warning"
	TypeSessionExpired        Type = "session-expired"
)

// Envelope is the outer shape every frame shares; Payload is re-decoded
// into the type-specific struct once Type is known.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"-"`
}

// Parse reads the discriminator and returns the raw bytes alongside it so
// the caller can unmarshal into the right struct, matching the tagged-
// union decode spec §4.6 step 1 requires.
func Parse(data []byte) (Type, []byte, error) {
	var probe struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", nil, apierrors.New(apierrors.CodeValidationMalformedFrame, err.Error(), "Malformed message.")
	}
	if probe.Type == "" {
		return "", nil, apierrors.New(apierrors.CodeValidationMalformedFrame, "missing type field", "Malformed message.")
	}
	return probe.Type, data, nil
}

// --- admin -> server ---

type AdminAuthMethod string

const (
	AuthMethodCredentials AdminAuthMethod = "credentials"
	AuthMethodToken       AdminAuthMethod = "token"
)

type AdminAuth struct {
	Type        Type            `json:"type"`
	Method      AdminAuthMethod `json:"method"`
	Username    string          `json:"username,omitempty"`
	Password    string          `json:"password,omitempty"`
	AccessToken string          `json:"accessToken,omitempty"`
}

type StartSession struct {
	Type      Type                 `json:"type"`
	SessionID string               `json:"sessionId,omitempty"`
	Config    session.Configuration `json:"config"`
}

type EndSession struct {
	Type      Type   `json:"type"`
	SessionID string `json:"sessionId"`
}

type UpdateSessionConfig struct {
	Type      Type                 `json:"type"`
	SessionID string               `json:"sessionId"`
	Config    session.Configuration `json:"config"`
}

type Translation struct {
	Type           Type      `json:"type"`
	SessionID      string    `json:"sessionId"`
	Language       string    `json:"language"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	SequenceNumber int       `json:"sequenceNumber"`
}

// --- listener -> server ---

type AudioCapabilities struct {
	LocalTTS  bool `json:"localTts"`
	AudioSink bool `json:"audioSink"`
}

type JoinSession struct {
	Type              Type              `json:"type"`
	SessionID         string            `json:"sessionId"`
	PreferredLanguage string            `json:"preferredLanguage"`
	AudioCapabilities AudioCapabilities `json:"audioCapabilities"`
}

type ChangeLanguage struct {
	Type        Type   `json:"type"`
	SessionID   string `json:"sessionId"`
	NewLanguage string `json:"newLanguage"`
}

type LeaveSession struct {
	Type      Type   `json:"type"`
	SessionID string `json:"sessionId"`
}

// --- server -> admin ---

type AdminAuthResponse struct {
	Type          Type     `json:"type"`
	Success       bool     `json:"success"`
	AdminID       string   `json:"adminId,omitempty"`
	AccessToken   string   `json:"accessToken,omitempty"`
	RefreshToken  string   `json:"refreshToken,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt,omitempty"`
	OwnedSessions []string `json:"ownedSessions,omitempty"`
}

type SessionStatusUpdate struct {
	Type        Type           `json:"type"`
	SessionID   string         `json:"sessionId"`
	Status      session.Status `json:"status"`
	ClientCount int            `json:"clientCount"`
}

type TokenExpiryWarning struct {
	Type          Type          `json:"type"`
	ExpiresAt     time.Time     `json:"expiresAt"`
	TimeRemaining time.Duration `json:"timeRemaining"`
}

type SessionExpired struct {
	Type          Type          `json:"type"`
	ExpiresAt     time.Time     `json:"expiresAt"`
	TimeRemaining time.Duration `json:"timeRemaining"`
}

// --- server -> listener ---

type SessionMetadata struct {
	Type               Type                  `json:"type"`
	Config             session.Configuration `json:"config"`
	AvailableLanguages []string              `json:"availableLanguages"`
	TTSAvailable       bool                  `json:"ttsAvailable"`
}

type OutboundTranslation struct {
	Type         Type      `json:"type"`
	Text         string    `json:"text"`
	Language     string    `json:"language"`
	Timestamp    time.Time `json:"timestamp"`
	AudioURL     string    `json:"audioUrl,omitempty"`
	UseLocalTTS  bool      `json:"useLocalTts,omitempty"`
}

// --- server -> any ---

type ErrorFrame struct {
	Type    Type   `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// FromError builds the wire error frame for an apierrors.Error, per §7.
func FromError(err error) ErrorFrame {
	e, ok := apierrors.As(err)
	if !ok {
		return ErrorFrame{Type: TypeError, Code: string(apierrors.CodeInternal), Message: "internal error"}
	}
	return ErrorFrame{Type: TypeError, Code: string(e.Code), Message: e.UserMessage}
}
