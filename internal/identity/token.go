package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the JWT claims carried by ID tokens and session cookies.
type Claims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	AuthTime int64  `json:"auth_time"`

	// AuthTimeMicros is the sign-in instant in microseconds, the precision
	// revocation watermarks are stored at.
	AuthTimeMicros int64 `json:"auth_time_us,omitempty"`
}

// Token is a verified ID token or session cookie.
type Token struct {
	UID       uuid.UUID
	Email     string
	Issuer    string
	AuthTime  time.Time
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func tokenFromClaims(claims *Claims) (*Token, error) {
	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid subject: %v", ErrTokenInvalid, err)
	}

	if claims.AuthTime == 0 {
		return nil, fmt.Errorf("%w: missing auth_time", ErrTokenInvalid)
	}

	token := &Token{
		UID:      uid,
		Email:    claims.Email,
		Issuer:   claims.Issuer,
		AuthTime: time.Unix(claims.AuthTime, 0),
	}
	if claims.AuthTimeMicros != 0 {
		if claims.AuthTimeMicros/1_000_000 != claims.AuthTime {
			return nil, fmt.Errorf("%w: auth_time_us disagrees with auth_time", ErrTokenInvalid)
		}
		token.AuthTime = time.UnixMicro(claims.AuthTimeMicros)
	}
	if claims.IssuedAt != nil {
		token.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		token.ExpiresAt = claims.ExpiresAt.Time
	}

	return token, nil
}

// classifyJWTError maps jwt parse failures onto the provider's error set.
func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}
