package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cayyus/engineerverse/internal/bsky"
	"github.com/cayyus/engineerverse/internal/config"
	"github.com/cayyus/engineerverse/internal/store"
)

// FeedPublisher writes the feed generator record to the publisher's repo.
type FeedPublisher interface {
	bsky.Authenticator
	Session() *bsky.Session
	PutFeedGenerator(ctx context.Context, rkey string, rec bsky.FeedGeneratorRecord) (*bsky.RecordRef, error)
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the feed generator record to Bluesky",
	Long: "Create or update the app.bsky.feed.generator record for this feed in the " +
		"account given by BLUESKY_USERNAME, and remember the resulting URI.",
	RunE: runPublish,
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := bsky.NewClient(cfg.Bluesky)
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	return publish(ctx, cmd.OutOrStdout(), cfg.Feed, client, db, time.Now())
}

func publish(ctx context.Context, w io.Writer, feed config.FeedConfig, client FeedPublisher, db *store.DB, now time.Time) error {
	if err := client.Authenticate(ctx); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	rec := bsky.NewFeedGeneratorRecord(feed.ServiceDID, feed.DisplayName, feed.Description, now)
	ref, err := client.PutFeedGenerator(ctx, feed.RecordName, rec)
	if err != nil {
		return err
	}

	if _, err := db.RecordPublication(store.Publication{
		RecordName:  feed.RecordName,
		URI:         ref.URI,
		CID:         ref.CID,
		ServiceDID:  feed.ServiceDID,
		PublishedAt: now.UnixMilli(),
	}); err != nil {
		return fmt.Errorf("record publication: %w", err)
	}

	fmt.Fprintf(w, "Feed published: %s\n", ref.URI)

	if sess := client.Session(); sess != nil && feed.PublisherDID != "" && feed.PublisherDID != sess.DID {
		fmt.Fprintf(os.Stderr, "warning: FEEDGEN_PUBLISHER_DID is %s but the record was written as %s\n",
			feed.PublisherDID, sess.DID)
	}
	return nil
}
