package commands

import "github.com/urfave/cli/v3"

// App builds the cutlinectl command tree.
func App() *cli.Command {
	apiFlag := &cli.StringFlag{
		Name:    "api",
		Usage:   "cutline API base URL",
		Value:   "http://localhost:8080",
		Sources: cli.EnvVars("CUTLINE_API_URL"),
	}

	return &cli.Command{
		Name:  "cutlinectl",
		Usage: "inspect and drive cutline render jobs",
		Flags: []cli.Flag{
			apiFlag,
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
				Value: "warn",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "status",
				Usage:     "print the current record of a job",
				ArgsUsage: "<jobId>",
				Action:    StatusAction,
			},
			{
				Name:      "watch",
				Usage:     "follow a job until it completes or fails",
				ArgsUsage: "<jobId>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mode",
						Usage: "auto (push, falling back to poll), push or poll",
						Value: "auto",
					},
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "poll interval",
						Value: DefaultPollInterval,
					},
				},
				Action: WatchAction,
			},
			{
				Name:  "notify",
				Usage: "send a status update as the render worker would",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "job", Usage: "job id", Required: true},
					&cli.StringFlag{Name: "status", Usage: "pending, processing, completed or failed", Required: true},
					&cli.IntFlag{Name: "progress", Usage: "percentage 0-100"},
					&cli.StringFlag{Name: "message", Usage: "progress note"},
					&cli.StringFlag{Name: "video-url", Usage: "output URL (completed only)"},
					&cli.StringFlag{Name: "error", Usage: "failure reason (failed only)"},
				},
				Action: NotifyAction,
			},
			{
				Name:  "submit",
				Usage: "submit a render job",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "video-url", Usage: "source video URL", Required: true},
					&cli.StringFlag{Name: "captions", Usage: "JSON file with a caption array", Required: true},
					&cli.StringFlag{Name: "style", Usage: "bottom-centered, top-bar or karaoke", Value: "bottom-centered"},
					&cli.BoolFlag{Name: "watch", Usage: "follow the job after submitting"},
				},
				Action: SubmitAction,
			},
			{
				Name:  "export",
				Usage: "convert a caption JSON file to SRT or WebVTT",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "captions", Usage: "JSON file with a caption array", Required: true},
					&cli.StringFlag{Name: "format", Usage: "srt or vtt", Value: "srt"},
					&cli.StringFlag{Name: "out", Usage: "output file (stdout when empty)"},
					&cli.BoolFlag{Name: "local", Usage: "render locally instead of calling the API"},
				},
				Action: ExportAction,
			},
			{
				Name:  "gdrive-auth",
				Usage: "obtain a Google Drive refresh token for the gdrive storage provider",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "env file with GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET",
						Value: ".env",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "how long to wait for the browser callback",
						Value: DefaultAuthTimeout,
					},
				},
				Action: GDriveAuthAction,
			},
		},
	}
}
