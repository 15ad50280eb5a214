package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ecoagris/portal/internal/models"
	"github.com/ecoagris/portal/internal/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultIDTokenTTL = time.Hour

	MinSessionTTL = 5 * time.Minute
	MaxSessionTTL = 14 * 24 * time.Hour

	// RecentSignInWindow bounds how old an ID token's sign-in may be when it
	// is exchanged for a session cookie.
	RecentSignInWindow = 5 * time.Minute

	sessionIssuerSuffix = "/session"
)

// AuthorityConfig configures an Authority.
type AuthorityConfig struct {
	Issuer     string
	Audience   string
	IDTokenTTL time.Duration

	// Now overrides the clock, used by tests.
	Now func() time.Time
}

// Authority is the identity provider: it signs users in with a password,
// issues and verifies ID tokens, mints session cookies and verifies them
// against the account's current state.
type Authority struct {
	keys       *KeyManager
	users      store.UserStore
	issuer     string
	audience   string
	idTokenTTL time.Duration
	now        func() time.Time
}

// NewAuthority creates an Authority signing with keys and reading accounts from users.
func NewAuthority(keys *KeyManager, users store.UserStore, cfg AuthorityConfig) (*Authority, error) {
	if keys == nil {
		return nil, errors.New("key manager is required")
	}
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}

	if cfg.IDTokenTTL <= 0 {
		cfg.IDTokenTTL = DefaultIDTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Authority{
		keys:       keys,
		users:      users,
		issuer:     strings.TrimSuffix(cfg.Issuer, "/"),
		audience:   cfg.Audience,
		idTokenTTL: cfg.IDTokenTTL,
		now:        cfg.Now,
	}, nil
}

// Issuer returns the ID token issuer.
func (a *Authority) Issuer() string {
	return a.issuer
}

// Keys returns the signing key manager.
func (a *Authority) Keys() *KeyManager {
	return a.keys
}

// CreateUser registers a new account with a bcrypt hashed password.
func (a *Authority) CreateUser(ctx context.Context, email, password, displayName string) (*models.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	return a.CreateUserWithHash(ctx, email, hash, displayName)
}

// CreateUserWithHash registers a new account with an existing bcrypt hash.
func (a *Authority) CreateUserWithHash(ctx context.Context, email, passwordHash, displayName string) (*models.User, error) {
	if email == "" {
		return nil, errors.New("email is required")
	}
	if !IsPasswordHash(passwordHash) {
		return nil, errors.New("password hash is not a bcrypt hash")
	}

	uid, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate uid: %w", err)
	}

	now := a.now()
	user := &models.User{
		UID:          uid,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := a.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Str("uid", uid.String()).Str("email", email).Msg("Created user")

	return user, nil
}

// SignInWithPassword exchanges an email and password for an ID token.
// Unknown emails and wrong passwords both return ErrInvalidCredentials.
func (a *Authority) SignInWithPassword(ctx context.Context, email, password string) (string, error) {
	user, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if err := comparePassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if user.Disabled {
		return "", ErrUserDisabled
	}

	now := a.now()
	if err := a.users.RecordLogin(ctx, user.UID, now); err != nil {
		log.Warn().Err(err).Str("uid", user.UID.String()).Msg("Failed to record login")
	}

	return a.sign(user.UID, user.Email, now, now, now.Add(a.idTokenTTL), a.issuer)
}

// IssueIDToken signs an ID token for uid as if the user had just signed in.
func (a *Authority) IssueIDToken(ctx context.Context, uid uuid.UUID) (string, error) {
	user, err := a.activeUser(ctx, uid, time.Time{})
	if err != nil {
		return "", err
	}

	now := a.now()
	return a.sign(user.UID, user.Email, now, now, now.Add(a.idTokenTTL), a.issuer)
}

// VerifyIDToken checks the signature, issuer, audience and expiry of an ID token.
func (a *Authority) VerifyIDToken(ctx context.Context, idToken string) (*Token, error) {
	return a.parse(idToken, a.issuer)
}

// CreateSessionCookie mints a session cookie from a verified ID token. The
// sign-in must be recent and expiresIn must lie in [MinSessionTTL, MaxSessionTTL].
func (a *Authority) CreateSessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error) {
	if expiresIn < MinSessionTTL || expiresIn > MaxSessionTTL {
		return "", ErrInvalidSessionTTL
	}

	token, err := a.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", err
	}

	now := a.now()
	if now.Sub(token.AuthTime) > RecentSignInWindow {
		return "", ErrRecentSignInRequired
	}

	if _, err := a.activeUser(ctx, token.UID, token.AuthTime); err != nil {
		return "", err
	}

	return a.sign(token.UID, token.Email, token.AuthTime, now, now.Add(expiresIn), a.sessionIssuer())
}

// VerifySessionCookieAndCheckRevoked verifies a session cookie and then reads
// the account on every call, rejecting missing, disabled and revoked accounts.
func (a *Authority) VerifySessionCookieAndCheckRevoked(ctx context.Context, cookie string) (*Token, error) {
	token, err := a.parse(cookie, a.sessionIssuer())
	if err != nil {
		return nil, err
	}

	if _, err := a.activeUser(ctx, token.UID, token.AuthTime); err != nil {
		return nil, err
	}

	return token, nil
}

// RevokeRefreshTokens invalidates every session minted from a sign-in at or
// before now.
func (a *Authority) RevokeRefreshTokens(ctx context.Context, uid uuid.UUID) error {
	validAfter := a.now().Truncate(time.Microsecond)

	if err := a.users.SetTokensValidAfter(ctx, uid, validAfter); err != nil {
		return fmt.Errorf("failed to revoke tokens: %w", err)
	}

	log.Info().Str("uid", uid.String()).Time("valid_after", validAfter).Msg("Revoked refresh tokens")

	return nil
}

// SetDisabled enables or disables an account. Disabling also revokes sessions.
func (a *Authority) SetDisabled(ctx context.Context, uid uuid.UUID, disabled bool) error {
	if err := a.users.SetDisabled(ctx, uid, disabled); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if disabled {
		return a.RevokeRefreshTokens(ctx, uid)
	}

	return nil
}

func (a *Authority) sessionIssuer() string {
	return a.issuer + sessionIssuerSuffix
}

// activeUser loads the account and checks it may still hold a session
// signed in at authTime. A zero authTime skips the revocation check.
func (a *Authority) activeUser(ctx context.Context, uid uuid.UUID, authTime time.Time) (*models.User, error) {
	user, err := a.users.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: unknown subject", ErrTokenInvalid)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if user.Disabled {
		return nil, ErrUserDisabled
	}

	if !authTime.IsZero() && user.SignInRevoked(authTime) {
		return nil, ErrSessionRevoked
	}

	return user, nil
}

func (a *Authority) sign(uid uuid.UUID, email string, authTime, issuedAt, expiresAt time.Time, issuer string) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   uid.String(),
			Audience:  jwt.ClaimStrings{a.audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:          email,
		AuthTime:       authTime.Unix(),
		AuthTimeMicros: authTime.UnixMicro(),
	}

	return a.keys.SignJWT(claims)
}

func (a *Authority) parse(raw, issuer string) (*Token, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, a.keys.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(a.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, classifyJWTError(err)
	}

	return tokenFromClaims(claims)
}
