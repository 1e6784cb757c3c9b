package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/songbridge/internal/models"
	"github.com/desertthunder/songbridge/internal/services"
	"github.com/desertthunder/songbridge/internal/session"
	"github.com/desertthunder/songbridge/internal/shared"
	"github.com/desertthunder/songbridge/internal/tasks"
)

// Middleware wraps an [http.Handler] with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows the patterns it serves.
type Handler interface {
	http.Handler
	Routes() []string // ServeMux patterns, e.g. "GET /callback"
}

// Router registers handlers behind a middleware stack.
type Router interface {
	Use(middleware ...Middleware)
	Handle(method, path string, handler http.Handler)
	Handler(handler Handler)
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// SpotifyAPI is the part of [services.SpotifyService] the web layer uses.
type SpotifyAPI interface {
	CodeExchanger
	AuthorizeURL(sess *session.Session) string
	UserProfile(ctx context.Context, token string) (*models.Profile, error)
	UserPlaylists(ctx context.Context, token string, limit, offset int) (*services.PlaylistPage, error)
}

// CodeExchanger trades an authorization code for a token using the verifier stored in sess.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, sess *session.Session, code string) (*oauth2.Token, error)
}

// YouTubeAPI is the part of [services.YouTubeSession] the web layer uses.
type YouTubeAPI interface {
	IsAuthenticated() bool
	Authenticate(ctx context.Context, sess *session.Session, raw string) error
	Logout(sess *session.Session) error
	Status() services.YouTubeStatus
}

// PlaylistConverter runs one conversion.
type PlaylistConverter interface {
	Convert(ctx context.Context, sess *session.Session, playlistID string, progress chan<- tasks.ProgressUpdate) (*models.ConversionResult, error)
}

// ConversionHistory lists recorded conversions.
type ConversionHistory interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Conversion, error)
}

// Options wires a [Server].
type Options struct {
	Config         shared.ServerConfig
	ConvertTimeout time.Duration
	Spotify        SpotifyAPI
	YouTube        YouTubeAPI
	Converter      PlaylistConverter
	History        ConversionHistory // optional
	Sessions       *session.Store
	Codec          *session.Codec
	Logger         *log.Logger
}

// Server is the songbridge web service.
type Server struct {
	opts   Options
	router *BasicRouter
	logger *log.Logger
}

// New validates opts and registers every route.
func New(opts Options) (*Server, error) {
	switch {
	case opts.Spotify == nil:
		return nil, fmt.Errorf("%w: spotify client", shared.ErrServiceUnavailable)
	case opts.YouTube == nil:
		return nil, fmt.Errorf("%w: youtube music session", shared.ErrServiceUnavailable)
	case opts.Converter == nil:
		return nil, fmt.Errorf("%w: converter", shared.ErrServiceUnavailable)
	case opts.Sessions == nil || opts.Codec == nil:
		return nil, fmt.Errorf("%w: session store", shared.ErrInvalidConfig)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	s := &Server{
		opts:   opts,
		router: NewBasicRouter(),
		logger: opts.Logger.WithPrefix("http"),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router
	r.Use(Recoverer(s.logger), RequestLogger(s.logger))

	r.HandleFunc(http.MethodGet, "/health", s.handleHealth)

	r.Use(Sessions(s.opts.Sessions, s.opts.Codec, s.logger))
	r.HandleFunc(http.MethodGet, "/{$}", s.handleIndex)
	r.HandleFunc(http.MethodGet, "/login", s.handleLogin)
	r.HandleFunc(http.MethodGet, "/callback", s.handleCallback)
	r.HandleFunc(http.MethodGet, "/logout", s.handleLogout)
	r.HandleFunc(http.MethodGet, "/playlists", s.handlePlaylists)
	r.HandleFunc(http.MethodPost, "/youtube/auth", s.handleYouTubeAuth)
	r.HandleFunc(http.MethodGet, "/youtube/check-auth", s.handleYouTubeCheck)
	r.HandleFunc(http.MethodPost, "/youtube/logout", s.handleYouTubeLogout)
	r.HandleFunc(http.MethodPost, "/convert/{playlist_id}", s.handleConvert)
	if s.opts.History != nil {
		r.HandleFunc(http.MethodGet, "/conversions", s.handleConversions)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on the configured address until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Config.Addr(),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
