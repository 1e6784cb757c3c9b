package services

import (
	"fmt"
	"strings"

	"github.com/desertthunder/songbridge/internal/shared"
)

const (
	youtubeMusicOrigin    = "https://music.youtube.com"
	defaultAcceptLanguage = "en-US,en;q=0.9"
)

// requiredHeaders must be present and non-empty in an imported header set.
var requiredHeaders = []string{"cookie", "x-goog-authuser"}

// NormalizeHeaders reduces parsed browser headers to the fixed set the YouTube Music client sends.
//
// Missing optional headers get defaults; anything else is dropped.
func NormalizeHeaders(parsed shared.Headers) (shared.Headers, error) {
	for _, name := range requiredHeaders {
		if strings.TrimSpace(parsed.Get(name)) == "" {
			return nil, shared.NewAuthError("missing required header",
				fmt.Errorf("%w: %s", shared.ErrMissingCredentials, name))
		}
	}

	return shared.Headers{
		"accept":            "*/*",
		"accept-language":   valueOr(parsed.Get("accept-language"), defaultAcceptLanguage),
		"authorization":     parsed.Get("authorization"),
		"content-type":      "application/json",
		"cookie":            parsed.Get("cookie"),
		"user-agent":        parsed.Get("user-agent"),
		"x-goog-authuser":   parsed.Get("x-goog-authuser"),
		"x-goog-visitor-id": parsed.Get("x-goog-visitor-id"),
		"x-origin":          youtubeMusicOrigin,
	}, nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// sapisidFromCookie extracts the cookie used to sign InnerTube requests.
func sapisidFromCookie(cookie string) string {
	var fallback string
	for part := range strings.SplitSeq(cookie, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch name {
		case "__Secure-3PAPISID":
			return value
		case "SAPISID":
			fallback = value
		}
	}
	return fallback
}
