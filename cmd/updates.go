package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rpkimon/internal/bootstrap"
	"rpkimon/internal/bootstrap/logging"
	"rpkimon/internal/errs"
	"rpkimon/internal/ports"
	"rpkimon/internal/usecase/ingest"
)

var updatesCmd = &cobra.Command{
	Use:   "updates",
	Short: "Inspect and delete ingestion updates",
}

var updatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent updates with their event counts",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc services) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		limit, _ := cmd.Flags().GetInt("limit")
		items, err := svc.Ingest.ListUpdates(ctx, limit)
		if err != nil {
			return errs.Wrap(err, "list updates")
		}

		w := cmd.OutOrStdout()
		if len(items) == 0 {
			_, err := fmt.Fprintln(w, "no updates")
			return err
		}
		for _, item := range items {
			if err := printUpdateLine(w, item); err != nil {
				return errs.Wrap(err, "write updates output")
			}
		}
		return nil
	}),
}

var updatesShowCmd = &cobra.Command{
	Use:   "show <update-id>",
	Short: "Show the events recorded by one update",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc services) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		updateID, err := parseUpdateID(cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		events, err := svc.Ingest.ListUpdateEvents(ctx, updateID)
		if err != nil {
			return errs.Wrapf(err, "show update %d", updateID)
		}
		if err := printUpdateEvents(cmd.OutOrStdout(), events); err != nil {
			return errs.Wrap(err, "write update output")
		}
		return nil
	}),
}

var updatesDeleteCmd = &cobra.Command{
	Use:   "delete <update-id>",
	Short: "Delete an update and its events; owners and other shared rows stay",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc services) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		updateID, err := parseUpdateID(cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		if err := svc.Ingest.DeleteUpdate(ctx, updateID); err != nil {
			logging.Error(ctx, "delete update failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrapf(err, "delete update %d", updateID)
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted update: %d\n", updateID); err != nil {
			return errs.Wrap(err, "write delete output")
		}
		return nil
	}),
}

func parseUpdateID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid update id %q", raw)
	}
	return id, nil
}

func printUpdateLine(w io.Writer, item ports.UpdateSummary) error {
	_, err := fmt.Fprintf(w, "%d\t%s\t%s\tunreachabilities=%d inconsistencies=%d errors=%d\n",
		item.ID, item.RunID, item.TimeStamp.Format(time.RFC3339),
		item.Unreachabilities, item.Inconsistencies, item.Errors)
	return err
}

func printUpdateEvents(w io.Writer, events ingest.UpdateEvents) error {
	if err := printUpdateLine(w, events.Update); err != nil {
		return err
	}
	for _, u := range events.Unreachabilities {
		messages := make([]string, 0, len(u.ErrorMessages))
		for _, m := range u.ErrorMessages {
			messages = append(messages, m.Text)
		}
		if _, err := fmt.Fprintf(w, "unreachable %s urls=[%s] errors=[%s]\n",
			u.PublicationPoint.Repository,
			strings.Join(u.PublicationPoint.URLs, ", "),
			strings.Join(messages, "; ")); err != nil {
			return err
		}
	}
	for _, i := range events.Inconsistencies {
		if _, err := fmt.Fprintf(w, "inconsistency %s %s owner=%s accepted=[%s] rejected=[%s] vrps=%d: %s\n",
			i.ObjectType, i.AffectedObject, i.Owner.ID,
			strings.Join(i.AcceptingRPs, ", "), strings.Join(i.RejectingRPs, ", "),
			len(i.AffectedVRPs), i.Reason); err != nil {
			return err
		}
	}
	for _, e := range events.Errors {
		if _, err := fmt.Fprintf(w, "error %s %s owner=%s vrps=%d: %s\n",
			e.ObjectType, e.Name, e.Owner.ID, len(e.AffectedVRPs), e.Reason); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(updatesCmd)
	updatesCmd.AddCommand(updatesListCmd, updatesShowCmd, updatesDeleteCmd)
	updatesListCmd.Flags().Int("limit", 20, "Maximum number of updates to list")
}
