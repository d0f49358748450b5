package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"rpkimon/internal/bootstrap"
	"rpkimon/internal/bootstrap/logging"
	"rpkimon/internal/errs"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Build and send per-owner issue digests",
}

var notifyPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print the notifications an update would send",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc services) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		updateID, _ := cmd.Flags().GetUint64("update")
		digests, err := svc.Notify.Digests(ctx, updateID)
		if err != nil {
			return errs.Wrapf(err, "build digests for update %d", updateID)
		}

		w := cmd.OutOrStdout()
		if len(digests) == 0 {
			_, err := fmt.Fprintf(w, "no owner with an email has issues in update %d\n", updateID)
			return err
		}
		for _, digest := range digests {
			msg, err := svc.Notify.Render(digest)
			if err != nil {
				return errs.Wrapf(err, "render digest for %s", digest.Owner.ID)
			}
			if _, err := fmt.Fprintf(w, "To: %s\nFrom: %s\nSubject: %s\n\n%s\n", msg.To, msg.From, msg.Subject, msg.Body); err != nil {
				return errs.Wrap(err, "write preview output")
			}
		}
		return nil
	}),
}

var notifySendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send the notifications of an update",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc services) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		updateID, _ := cmd.Flags().GetUint64("update")
		result, err := svc.Notify.Dispatch(ctx, updateID)
		if err != nil {
			logging.Error(ctx, "dispatch notifications failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrapf(err, "dispatch notifications for update %d", updateID)
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "notifications: update=%d sent=%d failed=%d\n", result.UpdateID, result.Sent, result.Failed); err != nil {
			return errs.Wrap(err, "write send output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyPreviewCmd, notifySendCmd)
	for _, c := range []*cobra.Command{notifyPreviewCmd, notifySendCmd} {
		c.Flags().Uint64("update", 0, "Update id")
		_ = c.MarkFlagRequired("update")
	}
}
