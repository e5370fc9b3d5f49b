// Package identity verifies sessions and webhooks issued by the hosted
// identity provider and fetches user profiles from its backend API.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ourofino-storefront/internal/domain"
)

var ErrInvalidSession = errors.New("invalid session token")

type sessionClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
}

// SessionVerifier checks RS256 session tokens against the provider public key.
type SessionVerifier struct {
	parser *jwt.Parser
	key    any
}

// NewSessionVerifier parses a PEM encoded RSA public key. Literal "\n"
// sequences are accepted so the key can live in a single env var.
func NewSessionVerifier(publicKeyPEM string) (*SessionVerifier, error) {
	pem := strings.ReplaceAll(strings.TrimSpace(publicKeyPEM), `\n`, "\n")
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("parse session public key: %w", err)
	}
	return &SessionVerifier{
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}), jwt.WithLeeway(5*time.Second), jwt.WithExpirationRequired()),
		key:    key,
	}, nil
}

// Verify returns the identity carried by a valid token. Only the user id is
// guaranteed; profile claims are filled when the token template includes them.
func (v *SessionVerifier) Verify(token string) (domain.Identity, error) {
	claims := &sessionClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return v.key, nil })
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return domain.Identity{}, ErrInvalidSession
	}
	return domain.Identity{
		UserID:    claims.Subject,
		Email:     claims.Email,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		ImageURL:  claims.ImageURL,
	}, nil
}
