package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/songbridge/internal/models"
	"github.com/desertthunder/songbridge/internal/repositories"
)

// History lists recorded conversions, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	limit := int(cmd.Int("limit"))
	user := cmd.String("user")

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()
	repo := repositories.NewConversionRepository(db)

	var conversions []*models.Conversion
	if user != "" {
		conversions, err = repo.ListByUser(ctx, user, limit)
	} else {
		conversions, err = repo.List(ctx, limit)
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if conversions == nil {
			conversions = []*models.Conversion{}
		}
		return r.writeJSON(conversions, cmd.Bool("pretty"))
	}

	if len(conversions) == 0 {
		return r.writePlain("No conversions recorded\n")
	}

	r.writePlainHeader("Conversions")
	for _, c := range conversions {
		name := c.SourcePlaylistName
		if name == "" {
			name = c.SourcePlaylistID
		}
		r.writePlain("%s  %-9s %s  %d/%d matched\n",
			c.StartedAt.Local().Format(time.DateTime), c.Status, name, c.TracksMatched, c.TracksTotal)
		if c.TargetPlaylistID != "" {
			r.writePlain("    → %s\n", c.TargetPlaylistID)
		}
		if c.ErrorMessage != "" {
			r.writePlain("    ✗ %s\n", c.ErrorMessage)
		}
	}
	return nil
}
