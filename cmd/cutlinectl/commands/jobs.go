package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"cutline/internal/captions"
	"cutline/internal/client"
	"cutline/internal/gateway"
	"cutline/internal/jobs"
)

// StatusAction prints the job's current record.
func StatusAction(ctx context.Context, cmd *cli.Command) error {
	id, err := jobArg(cmd)
	if err != nil {
		return err
	}
	rec, err := newClient(cmd).Status(ctx, id)
	if err != nil {
		return err
	}
	return printRecord(rec)
}

// WatchAction follows a job until it is terminal and exits non-zero when
// the job failed.
func WatchAction(ctx context.Context, cmd *cli.Command) error {
	id, err := jobArg(cmd)
	if err != nil {
		return err
	}
	c := newClient(cmd, client.WithPollInterval(cmd.Duration("interval")))
	return watch(ctx, c, cmd.String("mode"), id)
}

func watch(ctx context.Context, c *client.Client, mode, id string) error {
	var (
		rec jobs.Record
		err error
	)
	switch mode {
	case "auto", "":
		rec, err = c.Watch(ctx, id, printProgress)
	case "push":
		rec, err = c.Stream(ctx, id, printProgress)
	case "poll":
		rec, err = c.Poll(ctx, id, printProgress)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	if err != nil {
		return err
	}
	if rec.Status == jobs.StatusFailed {
		return fmt.Errorf("job %s failed: %s", id, rec.Error)
	}
	return nil
}

// NotifyAction posts one status update.
func NotifyAction(ctx context.Context, cmd *cli.Command) error {
	u := jobs.Update{
		JobID:    cmd.String("job"),
		Status:   jobs.Status(cmd.String("status")),
		Message:  cmd.String("message"),
		VideoURL: cmd.String("video-url"),
		Error:    cmd.String("error"),
	}
	if cmd.IsSet("progress") {
		p := cmd.Int("progress")
		u.Progress = &p
	}

	applied, err := newClient(cmd).Notify(ctx, u)
	if err != nil {
		return err
	}
	if !applied {
		fmt.Fprintf(stdout, "job %s is already terminal; update ignored\n", u.JobID)
		return nil
	}
	fmt.Fprintf(stdout, "job %s updated\n", u.JobID)
	return nil
}

// SubmitAction submits a render and optionally follows it.
func SubmitAction(ctx context.Context, cmd *cli.Command) error {
	list, err := readCaptions(cmd.String("captions"))
	if err != nil {
		return err
	}
	req := gateway.RenderRequest{
		VideoURL: cmd.String("video-url"),
		Captions: list,
		Style:    captions.Style(cmd.String("style")),
	}
	if err := req.Validate(); err != nil {
		return err
	}

	c := newClient(cmd)
	res, err := c.Submit(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "submitted job %s\n", res.JobID)
	if res.CaptionsURL != "" {
		fmt.Fprintf(stdout, "captions: %s\n", res.CaptionsURL)
	}

	if !cmd.Bool("watch") {
		return nil
	}
	return watch(ctx, c, "auto", res.JobID)
}

// ExportAction converts a caption file to subtitles.
func ExportAction(ctx context.Context, cmd *cli.Command) error {
	list, err := readCaptions(cmd.String("captions"))
	if err != nil {
		return err
	}
	format, err := captions.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	var out string
	if cmd.Bool("local") {
		out = captions.Render(list, format)
	} else {
		out, err = newClient(cmd).Export(ctx, list, format)
		if err != nil {
			return err
		}
	}

	if path := cmd.String("out"); path != "" {
		return os.WriteFile(path, []byte(out), 0o644)
	}
	_, err = fmt.Fprint(stdout, out)
	return err
}
