package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"rollcall/pkg/types"
)

// Claims is the signed claim set carried by an identity token. The
// custom fields mirror types.Identity; RegisteredClaims carries the
// expiry and a unique token ID.
type Claims struct {
	Email  string `json:"email"`
	Role   string `json:"role"`
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Codec issues and verifies identity tokens. Both the HTTP layer and
// the real-time handshake use the same codec, so identity needs no
// server-side session table.
type Codec struct {
	secret []byte
	ttl    time.Duration
}

// NewCodec creates a codec with the given HMAC secret and token
// lifetime.
func NewCodec(secret string, ttl time.Duration) *Codec {
	return &Codec{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// IssueToken signs a token for a user.
func (c *Codec) IssueToken(user *types.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:  user.Email,
		Role:   user.Role,
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// DecodeToken parses and verifies a token string, checking signature,
// signing method, and expiry. It returns the embedded identity.
func (c *Codec) DecodeToken(raw string) (types.Identity, error) {
	if raw == "" {
		return types.Identity{}, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return types.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return types.Identity{}, ErrInvalidToken
	}

	if !types.IsValidRole(claims.Role) {
		return types.Identity{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return types.Identity{
		Email:  claims.Email,
		Role:   claims.Role,
		UserID: claims.UserID,
	}, nil
}
