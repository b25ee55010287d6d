// Package commands implements the cutlinectl subcommands.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"cutline/internal/captions"
	"cutline/internal/client"
	"cutline/internal/jobs"
	"cutline/internal/pkg/logger"
)

const DefaultPollInterval = client.DefaultPollInterval

// stdout is swapped in tests.
var stdout io.Writer = os.Stdout

func newLogger(cmd *cli.Command) *logger.Logger {
	return logger.New(logger.Config{
		Level:       cmd.String("log-level"),
		Format:      "text",
		Output:      os.Stderr,
		ServiceName: "cutlinectl",
	})
}

func newClient(cmd *cli.Command, opts ...client.Option) *client.Client {
	opts = append([]client.Option{client.WithLogger(newLogger(cmd))}, opts...)
	return client.New(cmd.String("api"), opts...)
}

func jobArg(cmd *cli.Command) (string, error) {
	id := cmd.Args().First()
	if id == "" {
		return "", fmt.Errorf("a job id is required")
	}
	return id, nil
}

func printRecord(rec jobs.Record) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

// printProgress writes one human-readable line per record.
func printProgress(rec jobs.Record) {
	line := fmt.Sprintf("%s  %-10s %3d%%", rec.UpdatedAt.Local().Format(time.TimeOnly), rec.Status, rec.Progress)
	switch {
	case rec.Message != "":
		line += "  " + rec.Message
	case rec.VideoURL != "":
		line += "  " + rec.VideoURL
	case rec.Error != "":
		line += "  " + rec.Error
	}
	fmt.Fprintln(stdout, line)
}

func readCaptions(path string) ([]captions.Caption, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read captions: %w", err)
	}
	var list []captions.Caption
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("parse captions %s: %w", path, err)
	}
	if err := captions.Validate(list); err != nil {
		return nil, err
	}
	return list, nil
}
