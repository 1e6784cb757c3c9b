// Spotify Web API client for reading playlists, authorized with the PKCE flow.
//
// Response shapes follow https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"github.com/desertthunder/songbridge/internal/models"
	"github.com/desertthunder/songbridge/internal/session"
	"github.com/desertthunder/songbridge/internal/shared"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	spotifyProvider = "spotify"

	playlistFields = "name,description,tracks.items(track(name,artists(name))),tracks.next"
	tracksFields   = "items(track(name,artists(name))),next"
	tracksPageSize = 100
)

// SpotifyScopes are the permissions requested at login.
var SpotifyScopes = []string{
	"user-read-private",
	"user-read-email",
	"playlist-read-private",
	"playlist-read-collaborative",
}

// SpotifyOptions configures a [SpotifyService].
type SpotifyOptions struct {
	ClientID     string
	ClientSecret string // optional; PKCE clients are public
	RedirectURI  string
	AuthURL      string // defaults to the Spotify accounts service
	TokenURL     string
	Client       ClientOptions
}

type spotifyArtist struct {
	Name string `json:"name"`
}

type spotifyTrack struct {
	Name    string          `json:"name"`
	Artists []spotifyArtist `json:"artists"`
}

type spotifyPlaylistItem struct {
	Track *spotifyTrack `json:"track"`
}

type spotifyTrackPage struct {
	Items []spotifyPlaylistItem `json:"items"`
	Next  *string               `json:"next"`
}

type spotifyPlaylist struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Tracks      spotifyTrackPage `json:"tracks"`
}

type spotifySimplePlaylist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
	Owner       struct {
		DisplayName string `json:"display_name"`
	} `json:"owner"`
	Tracks struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

type spotifyPlaylistPage struct {
	Items  []spotifySimplePlaylist `json:"items"`
	Total  int                     `json:"total"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
	Next   *string                 `json:"next"`
}

// PlaylistPage is one page of the signed-in user's playlists.
type PlaylistPage struct {
	Items   []models.PlaylistSummary `json:"items"`
	Total   int                      `json:"total"`
	Limit   int                      `json:"limit"`
	Offset  int                      `json:"offset"`
	HasNext bool                     `json:"has_next"`
}

// SpotifyService reads profiles and playlists from the Spotify Web API.
//
// It holds no per-user state: tokens and PKCE verifiers live in the caller's [session.Session].
type SpotifyService struct {
	config *oauth2.Config
	api    *resty.Client
	logger *log.Logger
}

// NewSpotifyService creates a Spotify client.
func NewSpotifyService(opts SpotifyOptions) (*SpotifyService, error) {
	if opts.ClientID == "" {
		return nil, fmt.Errorf("%w: spotify client id", shared.ErrMissingCredentials)
	}
	if opts.RedirectURI == "" {
		return nil, fmt.Errorf("%w: spotify redirect uri", shared.ErrMissingCredentials)
	}
	if opts.AuthURL == "" {
		opts.AuthURL = spotifyAuthURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = spotifyTokenURL
	}
	if opts.Client.BaseURL == "" {
		opts.Client.BaseURL = spotifyBaseURL
	}

	logger := opts.Client.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &SpotifyService{
		config: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURI,
			Scopes:       SpotifyScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		api:    newRestClient(opts.Client, isGet),
		logger: logger.WithPrefix(spotifyProvider),
	}, nil
}

func (s *SpotifyService) Name() string { return "Spotify" }

// AuthorizeURL starts a login: it stores a fresh PKCE verifier and OAuth state in sess
// and returns the URL the user must visit.
func (s *SpotifyService) AuthorizeURL(sess *session.Session) string {
	verifier, challenge := GenerateChallengePair()
	state := randomToken(24)
	sess.BeginAuthorization(verifier, state)

	return s.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("code_challenge", challenge),
	)
}

// ExchangeCode trades an authorization code for an access token.
//
// The verifier is taken from sess and discarded whatever the outcome. Without a verifier no request is made.
// The exchange is never retried.
func (s *SpotifyService) ExchangeCode(ctx context.Context, sess *session.Session, code string) (*oauth2.Token, error) {
	verifier, ok := sess.TakeCodeVerifier()
	if !ok {
		return nil, shared.NewAuthError("missing verifier", shared.ErrMissingVerifier)
	}
	if code == "" {
		return nil, &shared.ValidationError{Field: "code", Message: "is required"}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.api.GetClient())
	token, err := s.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, &shared.UpstreamError{Provider: spotifyProvider, Status: re.Response.StatusCode, Body: string(re.Body)}
		}
		return nil, fmt.Errorf("%w: spotify token exchange: %w", shared.ErrAPIRequest, err)
	}

	s.logger.Debug("exchanged authorization code", "token", shared.Redact(token.AccessToken), "expiry", token.Expiry)
	return token, nil
}

// CheckState validates the state returned to the callback against the one stored by [SpotifyService.AuthorizeURL].
//
// The stored state is consumed.
func CheckState(sess *session.Session, returned string) error {
	expected, ok := sess.TakeState()
	if !ok || returned == "" || expected != returned {
		return shared.NewAuthError("state mismatch", shared.ErrInvalidState)
	}
	return nil
}

func (s *SpotifyService) get(ctx context.Context, token, endpoint string, query map[string]string, out any) error {
	if token == "" {
		return shared.NewAuthError("no spotify access token", shared.ErrTokenExpired)
	}

	resp, err := s.api.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(query).
		Get(endpoint)
	if err != nil {
		return fmt.Errorf("%w: spotify GET %s: %w", shared.ErrAPIRequest, endpoint, err)
	}

	err = decodeResponse(resp, spotifyProvider, out)
	var upstream *shared.UpstreamError
	if errors.As(err, &upstream) && upstream.Status == http.StatusUnauthorized {
		return shared.NewAuthError("spotify rejected the access token", err)
	}
	return err
}

// UserProfile fetches the profile of the token's owner.
func (s *SpotifyService) UserProfile(ctx context.Context, token string) (*models.Profile, error) {
	var profile models.Profile
	if err := s.get(ctx, token, "/me", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UserPlaylists fetches one page of the user's playlists. Limit is clamped to 1..50.
func (s *SpotifyService) UserPlaylists(ctx context.Context, token string, limit, offset int) (*PlaylistPage, error) {
	limit = min(max(limit, 1), 50)
	offset = max(offset, 0)

	var page spotifyPlaylistPage
	query := map[string]string{"limit": strconv.Itoa(limit), "offset": strconv.Itoa(offset)}
	if err := s.get(ctx, token, "/me/playlists", query, &page); err != nil {
		return nil, err
	}

	result := &PlaylistPage{
		Items:   make([]models.PlaylistSummary, 0, len(page.Items)),
		Total:   page.Total,
		Limit:   page.Limit,
		Offset:  page.Offset,
		HasNext: page.Next != nil,
	}
	for _, p := range page.Items {
		result.Items = append(result.Items, models.PlaylistSummary{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			TrackCount:  p.Tracks.Total,
			Owner:       p.Owner.DisplayName,
			Public:      p.Public,
		})
	}
	return result, nil
}

// Playlist fetches a playlist with every track, following pagination.
//
// Items without a track (removed or local files) are skipped.
func (s *SpotifyService) Playlist(ctx context.Context, token, playlistID string) (*models.SourcePlaylist, error) {
	if playlistID == "" {
		return nil, &shared.ValidationError{Field: "playlist_id", Message: "is required"}
	}

	escaped := url.PathEscape(playlistID)

	var sp spotifyPlaylist
	if err := s.get(ctx, token, "/playlists/"+escaped, map[string]string{"fields": playlistFields}, &sp); err != nil {
		return nil, fmt.Errorf("fetch playlist %s: %w", playlistID, err)
	}

	playlist := &models.SourcePlaylist{
		ID:          playlistID,
		Name:        sp.Name,
		Description: sp.Description,
	}
	playlist.Tracks = appendTracks(playlist.Tracks, sp.Tracks.Items)

	next := sp.Tracks.Next
	for next != nil {
		offset, limit := pageWindow(*next, len(playlist.Tracks))

		var page spotifyTrackPage
		query := map[string]string{
			"fields": tracksFields,
			"offset": strconv.Itoa(offset),
			"limit":  strconv.Itoa(limit),
		}
		if err := s.get(ctx, token, "/playlists/"+escaped+"/tracks", query, &page); err != nil {
			return nil, fmt.Errorf("fetch tracks of %s at offset %d: %w", playlistID, offset, err)
		}
		if len(page.Items) == 0 {
			break
		}

		playlist.Tracks = appendTracks(playlist.Tracks, page.Items)
		next = page.Next
	}

	s.logger.Debug("fetched playlist", "id", playlistID, "tracks", len(playlist.Tracks))
	return playlist, nil
}

func appendTracks(dst []models.SourceTrack, items []spotifyPlaylistItem) []models.SourceTrack {
	for _, item := range items {
		if item.Track == nil || item.Track.Name == "" {
			continue
		}
		artists := make([]string, 0, len(item.Track.Artists))
		for _, a := range item.Track.Artists {
			if a.Name != "" {
				artists = append(artists, a.Name)
			}
		}
		dst = append(dst, models.SourceTrack{Title: item.Track.Name, Artists: artists})
	}
	return dst
}

// pageWindow reads offset and limit from a Spotify "next" URL.
func pageWindow(next string, fallbackOffset int) (offset, limit int) {
	offset, limit = fallbackOffset, tracksPageSize

	u, err := url.Parse(next)
	if err != nil {
		return offset, limit
	}
	q := u.Query()
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = v
	}
	return offset, limit
}
