package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/cayyus/engineerverse/internal/bsky"
	"github.com/cayyus/engineerverse/internal/config"
	"github.com/cayyus/engineerverse/internal/store"
)

// --- batch command ---

var (
	batchRounds int
	batchSearch bool
	batchLimit  int
	batchCursor string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Preview query batches and term weights",
	Long: "Simulate consecutive batch windows and print the queries each one selects, " +
		"followed by the resulting term weights. With --search, curate one live page " +
		"from Bluesky instead.",
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if batchSearch {
		return searchPage(cmd.Context(), cmd.OutOrStdout(), cfg, batchCursor, batchLimit)
	}
	return previewBatches(cmd.OutOrStdout(), cfg, time.Now(), batchRounds)
}

// previewBatches generates rounds consecutive batches starting at start on a
// simulated clock and prints them with the final weights.
func previewBatches(w io.Writer, cfg *config.Config, start time.Time, rounds int) error {
	if rounds < 1 {
		rounds = 1
	}
	now := start
	stack, err := buildCuration(cfg, nil, nil, nil, func() time.Time { return now })
	if err != nil {
		return err
	}

	for i := 0; i < rounds; i++ {
		id := stack.cache.CurrentBatchID()
		queries := stack.cache.GetOrCreateBatch(id)
		fmt.Fprintf(w, "## %s\n", id)
		for j, q := range queries {
			fmt.Fprintf(w, "  %d. %s\n", j+1, q)
		}
		fmt.Fprintln(w)
		now = now.Add(stack.cache.Duration())
	}

	terms := stack.sampler.Snapshot()
	sort.SliceStable(terms, func(i, j int) bool { return terms[i].Weight > terms[j].Weight })
	fmt.Fprintf(w, "## Weights after %d round(s)\n", rounds)
	for _, t := range terms {
		fmt.Fprintf(w, "  %-20s %-12s %.4f\n", t.Name, t.Category, t.Weight)
	}
	fmt.Fprintf(w, "  total %.4f\n", terms.TotalWeight())
	return nil
}

// searchPage curates a single page against the live Bluesky API.
func searchPage(ctx context.Context, w io.Writer, cfg *config.Config, cursor string, limit int) error {
	client, err := bsky.NewClient(cfg.Bluesky)
	if err != nil {
		return err
	}
	stack, err := buildCuration(cfg, nil, nil, nil, nil)
	if err != nil {
		return err
	}
	curator := newCurator(cfg, stack, client, nil, nil)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	res, err := curator.Curate(ctx, cursor, limit)
	if err != nil {
		return fmt.Errorf("curate: %w", err)
	}
	if len(res.Feed) == 0 {
		fmt.Fprintln(w, "No posts found.")
	}
	for i, it := range res.Feed {
		fmt.Fprintf(w, "%d. %s\n", i+1, it.Post)
	}
	if res.Cursor != "" {
		fmt.Fprintf(w, "\ncursor: %s\n", res.Cursor)
	}
	return nil
}

// --- history command ---

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently generated batches from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
		return printHistory(cmd.OutOrStdout(), db, historyLimit)
	},
}

func printHistory(w io.Writer, db *store.DB, limit int) error {
	batches, err := db.RecentBatches(limit)
	if err != nil {
		return fmt.Errorf("recent batches: %w", err)
	}
	if len(batches) == 0 {
		fmt.Fprintln(w, "No batches recorded yet. Serve some feed requests first.")
		return nil
	}
	for _, b := range batches {
		fmt.Fprintf(w, "%s  %s  (%d queries)\n", time.UnixMilli(b.CreatedAt).UTC().Format(time.RFC3339), b.BatchID, len(b.Queries))
		for _, q := range b.Queries {
			fmt.Fprintf(w, "    %s\n", q)
		}
	}
	return nil
}

func init() {
	batchCmd.Flags().IntVarP(&batchRounds, "rounds", "r", 3, "Number of batch windows to simulate")
	batchCmd.Flags().BoolVar(&batchSearch, "search", false, "Curate one live page from Bluesky")
	batchCmd.Flags().IntVarP(&batchLimit, "limit", "n", 0, "Page size for --search (0 uses the configured default)")
	batchCmd.Flags().StringVar(&batchCursor, "cursor", "", "Cursor to resume from with --search")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of batches")
}
