package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/songbridge/internal/shared"
)

// YouTubeAuth connects YouTube Music from copied browser request headers.
//
// Accepts either a cURL command or a file holding a cURL command or raw header lines.
func (r *Runner) YouTubeAuth(ctx context.Context, cmd *cli.Command) error {
	curlCmd := cmd.String("curl")
	file := cmd.String("file")

	if curlCmd == "" && file == "" {
		return fmt.Errorf("%w: either --curl or --file must be provided", shared.ErrMissingArgument)
	}
	if curlCmd != "" && file != "" {
		return fmt.Errorf("%w: cannot specify both --curl and --file", shared.ErrInvalidArgument)
	}

	raw := curlCmd
	if file != "" {
		headers, err := shared.ParseHeadersFile(file)
		if err != nil {
			return err
		}
		r.logger.Info("parsed headers from file", "file", file, "headers", len(headers))
		raw = headers.Lines()
	}

	youtube, err := r.youtubeSession()
	if err != nil {
		return err
	}

	r.logger.Info("verifying youtube music headers")
	if err := youtube.Authenticate(ctx, nil, raw); err != nil {
		return err
	}

	status := youtube.Status()
	r.writePlain("✓ YouTube Music connected\n")
	r.writePlain("Headers saved to: %s\n", status.Location)
	r.writePlainln("Next steps:")
	r.writePlain("Run 'songbridge convert <spotify-playlist-id>' to convert a playlist\n")
	return nil
}

// YouTubeStatus reports whether a connection is stored, optionally probing it.
func (r *Runner) YouTubeStatus(ctx context.Context, cmd *cli.Command) error {
	youtube, err := r.youtubeSession()
	if err != nil {
		return err
	}

	var verifyErr error
	if cmd.Bool("verify") {
		verifyErr = youtube.Verify(ctx)
	}
	status := youtube.Status()

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	r.writePlainHeader("YouTube Music")
	r.writePlain("Location: %s\n", status.Location)
	if !status.ArtifactExists {
		r.writePlain("Headers: ✗ not stored\n")
		return nil
	}
	r.writePlain("Headers: ✓ stored\n")

	switch {
	case !cmd.Bool("verify"):
		r.writePlain("Connection: not checked (use --verify)\n")
	case verifyErr != nil:
		r.writePlain("Connection: ✗ %v\n", verifyErr)
	default:
		r.writePlain("Connection: ✓ verified at %s\n", status.LastVerified.Format(time.RFC3339))
	}
	return nil
}

// YouTubeLogout removes the stored connection.
func (r *Runner) YouTubeLogout(ctx context.Context, cmd *cli.Command) error {
	youtube, err := r.youtubeSession()
	if err != nil {
		return err
	}
	if err := youtube.Logout(nil); err != nil {
		return err
	}
	return r.writePlain("✓ YouTube Music headers removed\n")
}
