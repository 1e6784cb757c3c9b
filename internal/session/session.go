package session

import (
	"context"
	"sync"
	"time"

	"github.com/desertthunder/songbridge/internal/models"
	"github.com/desertthunder/songbridge/internal/shared"
)

var now = time.Now

// tokenSkew treats tokens this close to expiry as already expired.
const tokenSkew = 30 * time.Second

// Session is the credential state of one browser.
//
// All accessors are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	id           string
	createdAt    time.Time
	accessToken  string
	tokenExpiry  time.Time
	profile      *models.Profile
	oauthState   string
	codeVerifier string
	youtubeAuth  bool
}

// New creates an empty session with a fresh id.
func New() *Session {
	return &Session{id: shared.GenerateID(), createdAt: now()}
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// SetAccessToken stores a Spotify access token. A zero expiry means the token does not expire.
func (s *Session) SetAccessToken(token string, expiry time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = token
	s.tokenExpiry = expiry
}

// AccessToken returns the Spotify token, or false when it is absent or expired.
func (s *Session) AccessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken == "" {
		return "", false
	}
	if !s.tokenExpiry.IsZero() && now().Add(tokenSkew).After(s.tokenExpiry) {
		return "", false
	}
	return s.accessToken, true
}

// HasValidToken reports whether [Session.AccessToken] would succeed.
func (s *Session) HasValidToken() bool {
	_, ok := s.AccessToken()
	return ok
}

// BeginAuthorization records the PKCE verifier and OAuth state of a login in progress,
// replacing any earlier attempt.
func (s *Session) BeginAuthorization(verifier, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codeVerifier = verifier
	s.oauthState = state
}

// TakeCodeVerifier returns the stored verifier and removes it from the session.
func (s *Session) TakeCodeVerifier() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.codeVerifier
	s.codeVerifier = ""
	return v, v != ""
}

// TakeState returns the stored OAuth state and removes it from the session.
func (s *Session) TakeState() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.oauthState
	s.oauthState = ""
	return st, st != ""
}

func (s *Session) Profile() *models.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return nil
	}
	p := *s.profile
	return &p
}

func (s *Session) SetProfile(p *models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
}

// YouTubeAuthenticated reports whether this browser completed the YouTube Music header import.
func (s *Session) YouTubeAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.youtubeAuth
}

func (s *Session) SetYouTubeAuthenticated(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.youtubeAuth = v
}

// ClearSpotify drops the Spotify token, profile and any login in progress.
func (s *Session) ClearSpotify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = ""
	s.tokenExpiry = time.Time{}
	s.profile = nil
	s.codeVerifier = ""
	s.oauthState = ""
}

// Snapshot is a read-only view of a session for status responses.
type Snapshot struct {
	ID                   string          `json:"id"`
	SpotifyAuthenticated bool            `json:"spotify_authenticated"`
	YouTubeAuthenticated bool            `json:"youtube_authenticated"`
	Profile              *models.Profile `json:"profile,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:                   s.id,
		SpotifyAuthenticated: s.HasValidToken(),
		YouTubeAuthenticated: s.YouTubeAuthenticated(),
		Profile:              s.Profile(),
	}
}

type ctxKey struct{}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session attached by [WithSession], or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}
