package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/songbridge/internal/repositories"
	"github.com/desertthunder/songbridge/internal/server"
	"github.com/desertthunder/songbridge/internal/services"
	"github.com/desertthunder/songbridge/internal/session"
	"github.com/desertthunder/songbridge/internal/shared"
	"github.com/desertthunder/songbridge/internal/tasks"
)

// Serve wires the providers, history store and session layer into the web service and runs it until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.config
	if host := cmd.String("host"); host != "" {
		config.Server.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		config.Server.Port = int(port)
	}

	if err := config.Validate(); err != nil {
		return err
	}
	if config.EnsureSessionSecret() {
		r.logger.Warn("no session secret configured; sessions will not survive a restart")
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()
	history := repositories.NewConversionRepository(db)

	spotify, err := r.spotifyService()
	if err != nil {
		return err
	}

	youtube, err := r.youtubeSession()
	if err != nil {
		return err
	}
	if err := youtube.Restore(ctx); err != nil {
		if !errors.Is(err, shared.ErrMissingCredentials) {
			r.logger.Warn("stored youtube music headers were not restored", "err", err)
		}
	} else {
		r.logger.Info("youtube music connection restored")
	}

	if config.Credentials.YouTube.WatchArtifact && config.Credentials.YouTube.ArtifactBackend != "keyring" {
		watcher, err := services.WatchArtifact(config.Credentials.YouTube.ArtifactPath, youtube.Invalidate, r.logger)
		if err != nil {
			return fmt.Errorf("failed to watch youtube music artifact: %w", err)
		}
		defer watcher.Close()
		go watcher.Run(ctx)
	}

	converter := tasks.NewConverter(spotify, youtube, tasks.ConverterOptions{
		Concurrency: config.Conversion.Concurrency,
		SearchRate:  config.Conversion.SearchRate,
		Recorder:    history,
		Logger:      r.logger,
	})

	sessions := session.NewStore(config.Server.SessionMaxAge)
	sessions.Start()
	defer sessions.Stop()

	codec, err := session.NewCodec(config.Server.SessionSecret, session.CookieOptions{
		Name:     config.Server.SessionCookie,
		MaxAge:   config.Server.SessionMaxAge,
		Secure:   config.Server.CookieSecure,
		SameSite: config.Server.SameSiteMode(),
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		Config:         config.Server,
		ConvertTimeout: config.Conversion.ConvertTimeout,
		Spotify:        spotify,
		YouTube:        youtube,
		Converter:      converter,
		History:        history,
		Sessions:       sessions,
		Codec:          codec,
		Logger:         r.logger,
	})
	if err != nil {
		return err
	}

	r.logger.Info("starting songbridge", "addr", config.Server.Addr(), "client_id", shared.Redact(config.Credentials.Spotify.ClientID))
	return srv.ListenAndServe(ctx)
}
