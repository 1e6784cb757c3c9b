// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand handles configuration and database setup.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Create the config file, generate a session secret and migrate the database",
				Action: r.SetupInit,
			},
			{
				Name:   "migrations",
				Usage:  "List database migrations and whether they are applied",
				Action: r.SetupMigrations,
			},
			{
				Name:   "rollback",
				Usage:  "Revert the most recently applied migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// serveCommand runs the web service.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Override the configured listen host",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Override the configured listen port",
			},
		},
		Action: r.Serve,
	}
}

// youtubeCommand manages the YouTube Music connection.
func youtubeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "youtube",
		Aliases: []string{"yt", "ytmusic"},
		Usage:   "YouTube Music connection",
		Commands: []*cli.Command{
			{
				Name:  "auth",
				Usage: "Connect using request headers copied from a signed-in browser",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "curl",
						Usage: "cURL command from browser DevTools (Copy as cURL)",
					},
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"curl-file"},
						Usage:   "Path to a file holding a cURL command or raw header lines",
					},
				},
				Action: r.YouTubeAuth,
			},
			{
				Name:  "status",
				Usage: "Show whether a YouTube Music connection is stored and still valid",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "verify",
						Usage: "Probe YouTube Music with the stored headers; a failed check keeps them",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.YouTubeStatus,
			},
			{
				Name:   "logout",
				Usage:  "Remove the stored YouTube Music headers",
				Action: r.YouTubeLogout,
			},
		},
	}
}

// convertCommand converts one playlist from the terminal.
func convertCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "convert",
		Usage: "Convert a Spotify playlist into a new YouTube Music playlist",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "playlist",
			},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "plain",
				Usage: "Print progress lines instead of the interactive view",
			},
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Print the Spotify login URL instead of opening a browser",
			},
			&cli.DurationFlag{
				Name:  "login-timeout",
				Usage: "How long to wait for the Spotify login to complete",
				Value: defaultLoginTimeout,
			},
		},
		Action: r.Convert,
	}
}

// historyCommand lists recorded conversions.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded conversions, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of conversions to show",
				Value:   20,
			},
			&cli.StringFlag{
				Name:  "user",
				Usage: "Only show conversions by this Spotify user id",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
			},
		},
		Action: r.History,
	}
}
