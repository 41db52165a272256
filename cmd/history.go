package cmd

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/user/vulnvalid/pkg/config"
	"github.com/user/vulnvalid/pkg/logging"
	"github.com/user/vulnvalid/pkg/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List persisted validation runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("no postgres_dsn configured; run history requires persistence")
		}

		log := logging.New(cfg.Logging, DebugMode)
		defer logging.Sync(log)

		ctx := cmd.Context()
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		s, err := store.New(ctx, pool, log)
		if err != nil {
			return err
		}

		runs, err := s.ListRuns(ctx, historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No validation runs recorded.")
			return nil
		}

		fmt.Printf("%-36s  %-20s  %-8s  %-10s  %s\n", "RUN", "DATE", "MODE", "VULNERABLE", "REPORT")
		for _, r := range runs {
			fmt.Printf("%-36s  %-20s  %-8s  %-10d  %s\n",
				r.RunID,
				r.CreatedAt.Local().Format(time.RFC3339),
				r.Mode,
				r.Summary.Vulnerable,
				r.ReportPath,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs to show")
	rootCmd.AddCommand(historyCmd)
}
