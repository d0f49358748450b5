package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rpkimon/internal/bootstrap"
	"rpkimon/internal/errs"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last completed ingest run",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc services) error {
		last, found, err := svc.Ingest.LastRun(cmd.Context())
		if err != nil {
			return errs.Wrap(err, "load last run")
		}

		w := cmd.OutOrStdout()
		if !found {
			_, err := fmt.Fprintln(w, "no ingest run recorded")
			return err
		}
		rejected := "-"
		if len(last.Rejected) > 0 {
			rejected = strings.Join(last.Rejected, ",")
		}
		_, err = fmt.Fprintf(w, "last run: update=%d run_id=%s started=%s finished=%s ingested=%d skipped=%d rejected=%s\n",
			last.UpdateID, last.RunID,
			last.StartedAt.Format(time.RFC3339), last.FinishedAt.Format(time.RFC3339),
			last.Ingested, last.Skipped, rejected)
		return err
	}),
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
