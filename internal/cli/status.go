package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/tokend/internal/infra/postgres"
)

var statusNamespace string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent refresh runs for a cache namespace",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusNamespace, "namespace", "token:info:", "cache namespace to inspect")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("Status requires a configured database")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database, "")
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	runs, err := postgres.NewRunsRepo(db).RecentRuns(ctx, statusNamespace, 20)
	if err != nil {
		slog.Error("Failed to list refresh runs", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "RUN\tSHARD\tOK\tFAILED\tSTARTED\tDURATION")

	for _, run := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\n",
			run.ID, run.Shard, run.Succeeded, len(run.FailedKeys),
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	_ = w.Flush()
}
