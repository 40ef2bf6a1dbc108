package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	catalogapp "github.com/stacklok/catalog-aggregator/internal/app"
	"github.com/stacklok/catalog-aggregator/internal/config"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Aggregate all sources once and print the result",
	Long: `Resolve every configured source once, without starting the server, and print
the same JSON array GET /api/repos would return to stdout.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		compact, err := cmd.Flags().GetBool("compact")
		if err != nil {
			return err
		}
		return fetchCatalog(cmd.Context(), cfg, cmd.OutOrStdout(), compact)
	},
}

func init() {
	fetchCmd.Flags().Bool("compact", false, "Print the result without indentation")
}

// fetchCatalog runs one aggregation bounded by the configured refresh timeout and writes it to w
func fetchCatalog(ctx context.Context, cfg *config.Config, w io.Writer, compact bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := catalogapp.NewCatalogApp(ctx, catalogapp.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.GetRefreshTimeout())
	defer cancel()

	result := app.Aggregate(runCtx)
	slog.Info("Aggregation finished", "sources", len(cfg.GetSources()), "resolved", len(result))

	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
