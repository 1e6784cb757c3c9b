package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/songbridge/internal/models"
	"github.com/desertthunder/songbridge/internal/repositories"
	"github.com/desertthunder/songbridge/internal/server"
	"github.com/desertthunder/songbridge/internal/services"
	"github.com/desertthunder/songbridge/internal/session"
	"github.com/desertthunder/songbridge/internal/shared"
	"github.com/desertthunder/songbridge/internal/tasks"
	"github.com/desertthunder/songbridge/internal/ui"
)

const defaultLoginTimeout = 2 * time.Minute

// Convert logs in to Spotify through a local callback server and converts one playlist.
func (r *Runner) Convert(ctx context.Context, cmd *cli.Command) error {
	playlistID := cmd.StringArg("playlist")
	if playlistID == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	youtube, err := r.youtubeSession()
	if err != nil {
		return err
	}
	if err := youtube.Restore(ctx); err != nil {
		return fmt.Errorf("youtube music is not connected, run 'songbridge youtube auth' first: %w", err)
	}

	spotify, err := r.spotifyService()
	if err != nil {
		return err
	}

	sess := session.New()
	sess.SetYouTubeAuthenticated(true)

	token, err := r.spotifyLogin(ctx, spotify, sess, cmd.Bool("no-browser"), cmd.Duration("login-timeout"))
	if err != nil {
		return err
	}
	sess.SetAccessToken(token.AccessToken, token.Expiry)

	profile, err := spotify.UserProfile(ctx, token.AccessToken)
	if err != nil {
		return err
	}
	sess.SetProfile(profile)
	logger := shared.WithLogger(r.logger, "user", profile.ID)

	opts := tasks.ConverterOptions{
		Concurrency: r.config.Conversion.Concurrency,
		SearchRate:  r.config.Conversion.SearchRate,
		Logger:      logger,
	}
	if db, err := r.openDatabase(); err != nil {
		logger.Warn("conversion history disabled", "err", err)
	} else {
		defer db.Close()
		opts.Recorder = repositories.NewConversionRepository(db)
	}

	converter := tasks.NewConverter(spotify, youtube, opts)
	run := func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*models.ConversionResult, error) {
		if timeout := r.config.Conversion.ConvertTimeout; timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return converter.Convert(ctx, sess, playlistID, progress)
	}

	if cmd.Bool("plain") || !r.interactive() {
		return r.convertPlain(ctx, playlistID, run)
	}
	return r.convertTUI(ctx, playlistID, run)
}

// convertPlain prints one line per progress update followed by a summary.
func (r *Runner) convertPlain(ctx context.Context, playlistID string, run ui.ConvertFunc) error {
	r.writePlain("Converting playlist %s...\n", playlistID)

	progress := make(chan tasks.ProgressUpdate, 64)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for update := range progress {
			switch update.Phase {
			case tasks.SearchTracks:
				r.writePlain("   %s\n", update.Message)
			case tasks.Done:
			default:
				r.writePlain("→ %s\n", update.Message)
			}
		}
	}()

	result, err := run(ctx, progress)
	close(progress)
	<-printed

	if err != nil {
		return err
	}
	return r.writeSummary(result)
}

// convertTUI runs the conversion behind the interactive progress view.
func (r *Runner) convertTUI(ctx context.Context, playlistID string, run ui.ConvertFunc) error {
	model := ui.NewConvertModel(ctx, playlistID, run)

	// Keep log lines from tearing the view while it runs.
	if level := r.logger.GetLevel(); level < log.ErrorLevel {
		r.logger.SetLevel(log.ErrorLevel)
		defer r.logger.SetLevel(level)
	}

	if _, err := tea.NewProgram(model, tea.WithContext(ctx), tea.WithOutput(r.output)).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	result, err := model.Result()
	if err != nil {
		return err
	}
	return r.writeSummary(result)
}

func (r *Runner) writeSummary(result *models.ConversionResult) error {
	r.writePlain("\n")
	r.writePlainHeader("Conversion Complete!")
	r.writePlain("Source: %s (%d tracks)\n", result.SourceName, result.Total)
	r.writePlain("%s\n", ui.Summary(result))

	if len(result.Unmatched) > 0 {
		r.writePlain("\nNo match for %d tracks:\n", len(result.Unmatched))
		for _, t := range result.Unmatched {
			r.writePlain("  - %s\n", t)
		}
	}
	return nil
}

// spotifyLogin runs the authorization code flow with PKCE, receiving the redirect on a local server
// bound to the configured redirect URI.
func (r *Runner) spotifyLogin(ctx context.Context, spotify *services.SpotifyService, sess *session.Session, noBrowser bool, timeout time.Duration) (*oauth2.Token, error) {
	addr, path, err := server.CallbackAddr(r.config.Credentials.Spotify.RedirectURI)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultLoginTimeout
	}

	authURL := spotify.AuthorizeURL(sess)
	oauthHandler := server.NewOAuthHandler(spotify, sess, path)
	router := server.NewBasicRouter()
	router.Handler(oauthHandler)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for the spotify callback on %s: %w", addr, err)
	}
	httpServer := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Debug("waiting for spotify callback", "addr", addr, "path", path)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down callback server", "error", err)
		}
	}()

	if noBrowser {
		r.writePlain("Open this URL in your browser to log in to Spotify:\n%s\n\n", authURL)
	} else {
		r.writePlain("→ Opening browser for Spotify login...\n")
		if err := r.openBrowser(authURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
		}
	}
	r.writePlain("→ Waiting for authorization (%v timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("callback server error: %w", err)
	case <-timer.C:
		return nil, shared.NewAuthError(fmt.Sprintf("spotify login timed out after %v", timeout), context.DeadlineExceeded)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := result.Error(); err != nil {
		return nil, fmt.Errorf("authorization failed: %w", err)
	}
	if result.Token == nil {
		return nil, shared.NewAuthError("no token received", shared.ErrAuthFailed)
	}

	r.writePlain("✓ Spotify login complete\n")
	return result.Token, nil
}
