package services

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/oauth2"
)

const verifierEntropy = 64

// GenerateChallengePair returns a fresh PKCE verifier and its S256 challenge.
//
// The verifier is 64 random bytes, base64url encoded without padding.
func GenerateChallengePair() (verifier, challenge string) {
	verifier = randomToken(verifierEntropy)
	return verifier, ChallengeFor(verifier)
}

// ChallengeFor derives the S256 code challenge of verifier.
func ChallengeFor(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

func randomToken(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}
