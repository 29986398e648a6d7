package auth

import (
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// Verifier validates bearer credentials with identical semantics on the
// HTTP request path and the websocket handshake path.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret []byte) Verifier {
	return Verifier{secret: secret}
}

// GenerateToken creates a signed JWT for a specific user.
// Token issuance belongs to the account service; the relay only signs
// tokens in tests and local tooling.
func (v Verifier) GenerateToken(identity domain.Identity, duration time.Duration) (string, error) {
	expirationTime := time.Now().Add(duration)

	claims := &CustomClaims{
		UserID:      identity.ID,
		DisplayName: identity.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "chat-relay",
		},
	}

	// HS256 (HMAC with SHA256), signed with the server's secret key.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify parses and validates the signature and expiration of a JWT string
// and yields the identity it carries. Any failure (expired, malformed,
// signature mismatch) maps to ErrInvalidToken so callers reject the single
// request or connection, never the process.
func (v Verifier) Verify(tokenString string) (domain.Identity, error) {
	if tokenString == "" {
		return domain.Identity{}, errors.ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return domain.Identity{}, errors.ErrInvalidToken
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return domain.Identity{}, errors.ErrInvalidToken
	}
	return domain.Identity{ID: claims.UserID, DisplayName: claims.DisplayName}, nil
}
