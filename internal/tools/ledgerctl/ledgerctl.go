// Package ledgerctl implements the admin CLI for browsing the XP ledger.
package ledgerctl

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	entrypoint "github.com/emberforum/engagement/internal/platform/cmd"
	"github.com/emberforum/engagement/internal/services/engagement/domain"
	"github.com/emberforum/engagement/internal/services/engagement/storage/sqlite"
)

// Config holds ledger browsing configuration.
type Config struct {
	DBPath    string        `env:"EMBERFORUM_ENGAGEMENT_DB_PATH" envDefault:"data/engagement.db"`
	Filter    string        `env:"EMBERFORUM_LEDGER_FILTER"`
	PageSize  int           `env:"EMBERFORUM_LEDGER_PAGE_SIZE" envDefault:"50"`
	PageToken string        `env:"EMBERFORUM_LEDGER_PAGE_TOKEN"`
	Timeout   time.Duration `env:"EMBERFORUM_LEDGER_TIMEOUT" envDefault:"10s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The engagement SQLite database path")
	fs.StringVar(&cfg.Filter, "filter", cfg.Filter, "AIP-160 ledger filter, e.g. user_id = \"u-1\"")
	fs.IntVar(&cfg.PageSize, "page-size", cfg.PageSize, "Entries per page")
	fs.StringVar(&cfg.PageToken, "page-token", cfg.PageToken, "Page token from a previous run")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Overall command timeout")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run lists one page of ledger entries matching the configured filter.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open engagement store: %w", err)
	}
	defer store.Close()

	engine, err := domain.NewEngine(domain.DefaultAwardConfig(), domain.Deps{Store: store})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	page, err := engine.ListLedger(ctx, cfg.Filter, cfg.PageSize, cfg.PageToken)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AWARDED AT\tUSER\tACTION\tRAW\tCAPPED\tSOURCE REF")
	for _, entry := range page.Entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			entry.AwardedAt.Format(time.RFC3339),
			entry.UserID,
			entry.ActionType,
			entry.RawAmount,
			entry.CappedAmount,
			entry.SourceRef,
		)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if page.NextPageToken != "" {
		fmt.Fprintf(out, "\nnext page: -page-token %s\n", page.NextPageToken)
	}
	return nil
}
