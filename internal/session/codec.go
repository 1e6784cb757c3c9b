package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/desertthunder/songbridge/internal/shared"
)

const issuer = "songbridge"

// CookieOptions controls the attributes of the session cookie.
type CookieOptions struct {
	Name     string
	MaxAge   time.Duration
	Secure   bool
	SameSite http.SameSite
}

// Codec signs session ids into HS256 tokens carried by the session cookie.
type Codec struct {
	secret []byte
	opts   CookieOptions
}

// NewCodec creates a codec signing with secret.
func NewCodec(secret string, opts CookieOptions) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: session secret is empty", shared.ErrInvalidConfig)
	}
	if opts.Name == "" {
		opts.Name = "songbridge_session"
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 14 * 24 * time.Hour
	}
	return &Codec{secret: []byte(secret), opts: opts}, nil
}

func (c *Codec) CookieName() string { return c.opts.Name }

// Encode produces a signed token naming sessionID.
func (c *Codec) Encode(sessionID string) (string, error) {
	issued := now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        sessionID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(c.opts.MaxAge)),
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Decode verifies a token and returns the session id it names.
func (c *Codec) Decode(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if !token.Valid || claims.ID == "" {
		return "", fmt.Errorf("%w: session token has no id", shared.ErrInvalidInput)
	}
	return claims.ID, nil
}

// Cookie builds the session cookie for sessionID.
func (c *Codec) Cookie(sessionID string) (*http.Cookie, error) {
	value, err := c.Encode(sessionID)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     c.opts.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.opts.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   c.opts.Secure,
		SameSite: c.opts.SameSite,
	}, nil
}

// ExpiredCookie builds a cookie that removes the session cookie from the browser.
func (c *Codec) ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     c.opts.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.opts.Secure,
		SameSite: c.opts.SameSite,
	}
}

// SessionID reads and verifies the session cookie of r.
func (c *Codec) SessionID(r *http.Request) (string, error) {
	cookie, err := r.Cookie(c.opts.Name)
	if err != nil {
		return "", err
	}
	return c.Decode(cookie.Value)
}
