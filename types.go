package goTokens

import (
	"context"
	"io"
	"net/http"
	"time"

	internalaudit "github.com/MrEthical07/goTokens/internal/audit"
	"github.com/MrEthical07/goTokens/internal/tokens"
	"github.com/MrEthical07/goTokens/token"
)

// Kind is the closed enumeration of credential kinds.
type Kind = token.Kind

const (
	// KindAccess is a short-lived bearer credential, validated offline.
	KindAccess = token.KindAccess
	// KindRefresh is a long-lived rotation credential.
	KindRefresh = token.KindRefresh
	// KindReset is a one-time password-reset credential.
	KindReset = token.KindReset
	// KindTwoFactor is the challenge credential accompanying a 2FA code.
	KindTwoFactor = token.KindTwoFactor
)

// Mode selects how a credential kind is issued and checked.
type Mode = tokens.Mode

const (
	// ModeStore keeps the whole credential in Redis.
	ModeStore = tokens.ModeStore
	// ModeCodec issues self-contained signed credentials; not revocable.
	ModeCodec = tokens.ModeCodec
	// ModeHybrid signs and mirrors into the store; immediately revocable.
	ModeHybrid = tokens.ModeHybrid
)

// ReplayPolicy decides what happens when a rotated-out refresh token is
// presented again (spec'd as a configurable policy, not a fixed behavior).
type ReplayPolicy uint8

const (
	// ReplayReject fails the rotation and nothing else.
	ReplayReject ReplayPolicy = iota
	// ReplayRevokeAll additionally revokes every refresh token of the
	// subject as a compromise response.
	ReplayRevokeAll
)

// UserRecord is the account view this subsystem needs. Everything else
// about the user lives with the persistence collaborator.
type UserRecord struct {
	SubjectID        string
	Identifier       string
	Email            string
	PasswordHash     string
	Active           bool
	TwoFactorEnabled bool
}

// UserProvider is the identity-persistence collaborator. Lookups happen
// once at credential-verification time, never on token validation.
type UserProvider interface {
	FindByID(ctx context.Context, subjectID string) (*UserRecord, error)
	FindByIdentifier(ctx context.Context, identifier string) (*UserRecord, error)
	UpdatePasswordHash(ctx context.Context, subjectID, newHash string) error
}

// PasswordHasher is the opaque hashing collaborator. The default
// implementation lives in the password sub-package.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) (bool, error)
}

// ResetEmail is the payload for a password-reset message.
type ResetEmail struct {
	To         string
	Token      string
	TTLMinutes int
}

// TwoFactorEmail is the payload for a 2FA code message.
type TwoFactorEmail struct {
	To         string
	Code       string
	TTLMinutes int
}

// Mailer is the outbound delivery collaborator. Calls are fire-and-forget
// from the engine's perspective: failures are audited, never surfaced to
// the caller, and never reveal account existence.
type Mailer interface {
	SendResetEmail(ctx context.Context, mail ResetEmail) error
	SendTwoFactorEmail(ctx context.Context, mail TwoFactorEmail) error
}

// LoginResult is returned by [Engine.Login] and [Engine.ConfirmTwoFactor].
// Either the token pair is populated, or TwoFactorRequired is set and
// Challenge must be presented together with the delivered code.
type LoginResult struct {
	AccessToken  string
	RefreshToken string

	TwoFactorRequired bool
	Challenge         string
}

// AccessClaims is the outcome of a successful access-token validation.
// Degraded reports that the blacklist could not be consulted and the
// documented fail-open path was taken.
type AccessClaims struct {
	SubjectID string
	TokenID   string
	ExpiresAt time.Time
	Degraded  bool
}

// CookieSpec describes how the caller should transport the refresh token.
// This subsystem produces the token string only; cookie mechanics belong to
// the HTTP surface.
type CookieSpec struct {
	Name     string
	HTTPOnly bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON lines to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
