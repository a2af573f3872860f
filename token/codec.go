package token

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind is the closed enumeration of credential kinds. The codec refuses to
// decode a token under the wrong kind tag.
type Kind uint8

const (
	// KindAccess is a short-lived bearer credential, validated offline.
	KindAccess Kind = iota
	// KindRefresh is a long-lived rotation credential.
	KindRefresh
	// KindReset is a one-time password-reset credential.
	KindReset
	// KindTwoFactor is the challenge credential accompanying a 2FA code.
	KindTwoFactor

	kindCount
)

var kindNames = [kindCount]string{"access", "refresh", "reset", "twofactor"}

// String returns the stable wire name of the kind.
func (k Kind) String() string {
	if k >= kindCount {
		return "unknown"
	}
	return kindNames[k]
}

// Valid reports whether k is a defined credential kind.
func (k Kind) Valid() bool {
	return k < kindCount
}

// Kinds returns every defined credential kind, in declaration order.
func Kinds() []Kind {
	return []Kind{KindAccess, KindRefresh, KindReset, KindTwoFactor}
}

var (
	// ErrMalformed is returned when the token is not a structurally valid
	// signed credential.
	ErrMalformed = errors.New("credential malformed")
	// ErrSignature is returned when the signature does not verify under the
	// kind's secret.
	ErrSignature = errors.New("credential signature invalid")
	// ErrExpired is returned when the credential's expiry is in the past,
	// beyond the configured leeway.
	ErrExpired = errors.New("credential expired")
	// ErrKindMismatch is returned when a credential carries a different kind
	// tag than the one it is decoded under.
	ErrKindMismatch = errors.New("credential kind mismatch")
)

const (
	minSecretLen = 16
	maxLeeway    = 10 * time.Second
	// DefaultLeeway is the clock skew tolerance applied when Config.Leeway
	// is zero. Bounded by maxLeeway at construction.
	DefaultLeeway = 2 * time.Second
)

// Config defines the codec's signing material and validation behavior.
type Config struct {
	// Secrets maps every credential kind to its HMAC secret. All four kinds
	// must be present, at least 16 bytes each, and pairwise distinct.
	Secrets map[Kind][]byte
	// Issuer is stamped into the iss claim and enforced on decode when set.
	Issuer string
	// Leeway is the permitted clock skew for expiry checks, in [0, 10s].
	// Zero selects DefaultLeeway.
	Leeway time.Duration
}

// Claims is the decoded content of a signed credential.
type Claims struct {
	SubjectID string
	TokenID   string
	Kind      Kind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type wireClaims struct {
	KindTag string `json:"knd"`
	jwt.RegisteredClaims
}

// Manager signs and verifies credentials. Immutable after NewManager.
type Manager struct {
	config Config
}

// NewManager validates the signing material and returns a codec.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, fmt.Errorf("leeway must be in [0, %s]", maxLeeway)
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = DefaultLeeway
	}

	secrets := make(map[Kind][]byte, kindCount)
	for _, kind := range Kinds() {
		secret := cfg.Secrets[kind]
		if len(secret) < minSecretLen {
			return nil, fmt.Errorf("%s secret must be at least %d bytes", kind, minSecretLen)
		}
		secrets[kind] = append([]byte(nil), secret...)
	}
	for i, a := range Kinds() {
		for _, b := range Kinds()[i+1:] {
			if bytes.Equal(secrets[a], secrets[b]) {
				return nil, fmt.Errorf("%s and %s must not share a signing secret", a, b)
			}
		}
	}
	cfg.Secrets = secrets

	return &Manager{config: cfg}, nil
}

// Leeway returns the active clock skew tolerance.
func (m *Manager) Leeway() time.Duration {
	return m.config.Leeway
}

// Encode signs a credential of the given kind. The subject id, token id, and
// expiry are embedded; the token id doubles as the store key in hybrid mode.
func (m *Manager) Encode(subjectID, tokenID string, kind Kind, expiresAt time.Time) (string, error) {
	if !kind.Valid() {
		return "", ErrKindMismatch
	}
	if subjectID == "" || tokenID == "" {
		return "", errors.New("subject id and token id required")
	}

	claims := wireClaims{
		KindTag: kind.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ID:        tokenID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	if m.config.Issuer != "" {
		claims.Issuer = m.config.Issuer
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secrets[kind])
}

// Decode verifies signature, expiry, and kind tag, in that order. The error
// distinguishes malformed input, a bad signature, expiry, and kind mismatch
// so callers can classify without string matching.
func (m *Manager) Decode(tokenStr string, kind Kind) (*Claims, error) {
	if !kind.Valid() {
		return nil, ErrKindMismatch
	}
	if tokenStr == "" {
		return nil, ErrMalformed
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(m.config.Leeway),
		jwt.WithExpirationRequired(),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &wireClaims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secrets[kind], nil
	})
	if err != nil {
		classified := classifyParseError(err)
		if errors.Is(classified, ErrSignature) && m.signedUnderOtherKind(tokenStr, kind) {
			// The token is genuine, just presented under the wrong kind.
			return nil, ErrKindMismatch
		}
		return nil, classified
	}

	claims, ok := parsed.Claims.(*wireClaims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if claims.KindTag != kind.String() {
		return nil, ErrKindMismatch
	}
	if claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return nil, ErrMalformed
	}

	out := &Claims{
		SubjectID: claims.Subject,
		TokenID:   claims.ID,
		Kind:      kind,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

// signedUnderOtherKind reports whether the token verifies under the secret
// of the kind it claims to carry. Expiry is deliberately ignored here; the
// probe only decides signature provenance.
func (m *Manager) signedUnderOtherKind(tokenStr string, requested Kind) bool {
	unverified := &wireClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, unverified); err != nil {
		return false
	}

	var claimed Kind
	found := false
	for _, k := range Kinds() {
		if unverified.KindTag == k.String() {
			claimed, found = k, true
			break
		}
	}
	if !found || claimed == requested {
		return false
	}

	probe := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := probe.ParseWithClaims(tokenStr, &wireClaims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secrets[claimed], nil
	})
	return err == nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrSignature
	default:
		return ErrMalformed
	}
}
