package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rpkimon/internal/bootstrap"
	"rpkimon/internal/bootstrap/config"
	"rpkimon/internal/bootstrap/logging"
	"rpkimon/internal/errs"
	"rpkimon/internal/usecase/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest RPKI validation reports",
}

var ingestRunCmd = newIngestRunCmd(services{}, config.Config{})

// newIngestRunCmd builds "ingest run". When svc.Ingest is set the command
// runs against it with cfg instead of bootstrapping the application.
func newIngestRunCmd(svc services, cfg config.Config) *cobra.Command {
	runWithService := func(cmd *cobra.Command, cfg config.Config, svc services) error {
		if svc.Ingest == nil {
			return errors.New("ingest service is not configured")
		}

		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		input, err := readRunInput(cmd, cfg.Ingest)
		if err != nil {
			return err
		}

		result, err := svc.Ingest.Run(ctx, input)
		if err != nil {
			logging.Error(ctx, "ingest run failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "ingest run")
		}
		if err := printRunResult(cmd.OutOrStdout(), result); err != nil {
			return errs.Wrap(err, "write ingest output")
		}

		sendNotify := cfg.Notify.Enabled
		if cmd.Flags().Changed("notify") {
			sendNotify, _ = cmd.Flags().GetBool("notify")
		}
		if !sendNotify {
			return nil
		}
		if svc.Notify == nil {
			return errors.New("notify service is not configured")
		}
		dispatched, err := svc.Notify.Dispatch(ctx, result.Update.ID)
		if err != nil {
			return errs.Wrap(err, "dispatch notifications")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "notifications: sent=%d failed=%d\n", dispatched.Sent, dispatched.Failed); err != nil {
			return errs.Wrap(err, "write notify output")
		}
		return nil
	}

	runE := withApp(func(cmd *cobra.Command, app *bootstrap.App, appSvc services) error {
		return runWithService(cmd, app.Config, appSvc)
	})
	if svc.Ingest != nil {
		runE = func(cmd *cobra.Command, _ []string) error {
			return runWithService(cmd, cfg, svc)
		}
	}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest the ghostbusters, repositories and objects reports as one update",
		RunE:  runE,
	}
	cmd.Flags().String("ghostbusters", "", "Ghostbusters report (default from ingest.ghostbusters_file)")
	cmd.Flags().String("repositories", "", "Repositories report (default from ingest.repositories_file)")
	cmd.Flags().String("objects", "", "Objects report (default from ingest.objects_file)")
	cmd.Flags().StringSlice("skip", nil, "Batches to leave out: ghostbusters, repositories, objects")
	cmd.Flags().Bool("notify", false, "Send owner notifications after the run (default from notify.enabled)")
	return cmd
}

func readRunInput(cmd *cobra.Command, cfg config.IngestConfig) (ingest.RunInput, error) {
	skip, _ := cmd.Flags().GetStringSlice("skip")
	skipped := make(map[string]bool, len(skip))
	for _, name := range skip {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case ingest.BatchGhostbusters, ingest.BatchRepositories, ingest.BatchObjects:
			skipped[name] = true
		default:
			return ingest.RunInput{}, fmt.Errorf("unknown batch %q", name)
		}
	}

	read := func(batch string, flag string, fallback string) ([]byte, error) {
		if skipped[batch] {
			return nil, nil
		}
		path, _ := cmd.Flags().GetString(flag)
		if strings.TrimSpace(path) == "" {
			path = fallback
		}
		if strings.TrimSpace(path) == "" {
			return nil, nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrapf(err, "read %s report", batch)
		}
		return data, nil
	}

	var input ingest.RunInput
	var err error
	if input.Ghostbusters, err = read(ingest.BatchGhostbusters, "ghostbusters", cfg.GhostbustersFile); err != nil {
		return ingest.RunInput{}, err
	}
	if input.Repositories, err = read(ingest.BatchRepositories, "repositories", cfg.RepositoriesFile); err != nil {
		return ingest.RunInput{}, err
	}
	if input.Objects, err = read(ingest.BatchObjects, "objects", cfg.ObjectsFile); err != nil {
		return ingest.RunInput{}, err
	}
	return input, nil
}

func printRunResult(w io.Writer, result ingest.RunResult) error {
	if _, err := fmt.Fprintf(w, "update: id=%d run_id=%s time=%s\n",
		result.Update.ID, result.Update.RunID, result.Update.TimeStamp.Format(time.RFC3339)); err != nil {
		return err
	}
	for _, batch := range result.Batches {
		if batch.Err != "" {
			if _, err := fmt.Fprintf(w, "  %s: rejected: %s\n", batch.Batch, batch.Err); err != nil {
				return err
			}
			continue
		}
		for _, section := range batch.Sections {
			if _, err := fmt.Fprintf(w, "  %s.%s: total=%d ingested=%d skipped=%d\n",
				batch.Batch, section.Section, section.Total, section.Ingested, len(section.Failures)); err != nil {
				return err
			}
			for _, failure := range section.Failures {
				if _, err := fmt.Fprintf(w, "    skipped %s[%d]: %s\n", failure.Section, failure.Index, failure.Reason); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.AddCommand(ingestRunCmd)
}
