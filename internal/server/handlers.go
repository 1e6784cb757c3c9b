package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/songbridge/internal/models"
	"github.com/desertthunder/songbridge/internal/services"
	"github.com/desertthunder/songbridge/internal/session"
	"github.com/desertthunder/songbridge/internal/shared"
)

const (
	defaultPlaylistLimit = 50
	defaultHistoryLimit  = 20
	maxAuthBody          = 1 << 20
)

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type statusResponse struct {
	session.Snapshot
	YouTube services.YouTubeStatus `json:"youtube"`
	Error   string                 `json:"error,omitempty"`
}

type playlistsResponse struct {
	Profile   *models.Profile        `json:"profile"`
	Playlists *services.PlaylistPage `json:"playlists"`
}

type youtubeAuthRequest struct {
	HeadersRaw string `json:"headers_raw"`
}

type convertResponse struct {
	Status            string               `json:"status"`
	YouTubePlaylistID string               `json:"youtube_playlist_id"`
	Matched           int                  `json:"matched"`
	Total             int                  `json:"total"`
	Unmatched         []models.SourceTrack `json:"unmatched,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Status: "error", Message: message})
}

// fail maps err onto a status code. Internal failures are logged and not echoed to the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := shared.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		message = "internal server error"
	} else {
		s.logger.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	writeError(w, status, message)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleIndex reports the authentication state of the caller.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	resp := statusResponse{
		Snapshot: sess.Snapshot(),
		YouTube:  s.opts.YouTube.Status(),
		Error:    r.URL.Query().Get("error"),
	}
	resp.YouTubeAuthenticated = resp.YouTubeAuthenticated && s.opts.YouTube.IsAuthenticated()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	http.Redirect(w, r, s.opts.Spotify.AuthorizeURL(sess), http.StatusTemporaryRedirect)
}

// handleCallback completes the Spotify login and sends the browser on to its playlists.
// Any failure redirects to the index with an error message instead.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	q := r.URL.Query()

	if err := s.completeLogin(r.Context(), sess, q); err != nil {
		s.logger.Warn("spotify login failed", "session", sess.ID(), "err", err)
		http.Redirect(w, r, "/?"+url.Values{"error": {"Authentication failed"}}.Encode(), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/playlists", http.StatusSeeOther)
}

func (s *Server) completeLogin(ctx context.Context, sess *session.Session, q url.Values) error {
	if denied := q.Get("error"); denied != "" {
		sess.TakeCodeVerifier()
		sess.TakeState()
		return shared.NewAuthError("authorization denied: "+denied, shared.ErrAuthFailed)
	}
	if err := services.CheckState(sess, q.Get("state")); err != nil {
		sess.TakeCodeVerifier()
		return err
	}

	token, err := s.opts.Spotify.ExchangeCode(ctx, sess, q.Get("code"))
	if err != nil {
		return err
	}

	profile, err := s.opts.Spotify.UserProfile(ctx, token.AccessToken)
	if err != nil {
		return err
	}

	sess.SetAccessToken(token.AccessToken, token.Expiry)
	sess.SetProfile(profile)
	s.logger.Info("spotify login", "session", sess.ID(), "user", profile.ID)
	return nil
}

// handleLogout ends the browser session. The process-wide YouTube Music connection is kept.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	sess.ClearSpotify()
	s.opts.Sessions.Delete(sess.ID())

	http.SetCookie(w, s.opts.Codec.ExpiredCookie())
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	token, ok := sess.AccessToken()
	profile := sess.Profile()
	if !ok || profile == nil {
		http.Redirect(w, r, "/login", http.StatusTemporaryRedirect)
		return
	}

	limit, err := intParam(r, "limit", defaultPlaylistLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	page, err := s.opts.Spotify.UserPlaylists(r.Context(), token, limit, offset)
	if err != nil {
		var authErr *shared.AuthError
		if errors.As(err, &authErr) {
			sess.ClearSpotify()
		}
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, playlistsResponse{Profile: profile, Playlists: page})
}

func (s *Server) handleYouTubeAuth(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	var body youtubeAuthRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAuthBody)).Decode(&body); err != nil {
		s.fail(w, r, &shared.ValidationError{Field: "body", Message: "must be a JSON object with headers_raw"})
		return
	}
	if strings.TrimSpace(body.HeadersRaw) == "" {
		s.fail(w, r, &shared.ValidationError{Field: "headers_raw", Message: "is required"})
		return
	}

	if err := s.opts.YouTube.Authenticate(r.Context(), sess, body.HeadersRaw); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleYouTubeCheck(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{
		"authenticated": sess.YouTubeAuthenticated() && s.opts.YouTube.IsAuthenticated(),
	})
}

func (s *Server) handleYouTubeLogout(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if err := s.opts.YouTube.Logout(sess); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	ctx := r.Context()
	if s.opts.ConvertTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ConvertTimeout)
		defer cancel()
	}

	result, err := s.opts.Converter.Convert(ctx, sess, r.PathValue("playlist_id"), nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, convertResponse{
		Status:            "success",
		YouTubePlaylistID: result.TargetPlaylistID,
		Matched:           result.Matched,
		Total:             result.Total,
		Unmatched:         result.Unmatched,
	})
}

// handleConversions lists the signed-in user's conversion history, newest first.
func (s *Server) handleConversions(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	profile := sess.Profile()
	if profile == nil {
		s.fail(w, r, shared.NewAuthError("spotify login required", nil))
		return
	}

	limit, err := intParam(r, "limit", defaultHistoryLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	conversions, err := s.opts.History.ListByUser(r.Context(), profile.ID, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if conversions == nil {
		conversions = []*models.Conversion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversions": conversions})
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, &shared.ValidationError{Field: name, Message: "must be a non-negative integer"}
	}
	return v, nil
}
