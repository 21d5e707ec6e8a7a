package engine

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/cayyus/engineerverse/internal/bsky"
	"github.com/cayyus/engineerverse/internal/metrics"
)

const (
	DefaultLimit         = 50
	DefaultSearchHardCap = 100
	DefaultSearchTimeout = 10 * time.Second
)

// SearchClient is the collaborator that supplies raw search results.
type SearchClient interface {
	bsky.Authenticator
	bsky.Searcher
}

// FeedItem is one entry of a feed skeleton.
type FeedItem struct {
	Post string `json:"post"`
}

// Result is one page of curated posts.
type Result struct {
	Feed   []FeedItem `json:"feed"`
	Cursor string     `json:"cursor,omitempty"`
}

// CuratorOption configures a Curator.
type CuratorOption func(*Curator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) CuratorOption {
	return func(c *Curator) { c.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) CuratorOption {
	return func(c *Curator) { c.metrics = m }
}

// WithDefaultLimit sets the page size used when the caller passes limit <= 0.
func WithDefaultLimit(n int) CuratorOption {
	return func(c *Curator) {
		if n > 0 {
			c.defaultLimit = n
		}
	}
}

// WithSearchHardCap bounds the per-query over-fetch.
func WithSearchHardCap(n int) CuratorOption {
	return func(c *Curator) {
		if n > 0 {
			c.hardCap = n
		}
	}
}

// WithSearchTimeout bounds each search call.
func WithSearchTimeout(d time.Duration) CuratorOption {
	return func(c *Curator) {
		if d > 0 {
			c.searchTimeout = d
		}
	}
}

// Curator pages through the results of a cached batch of queries.
// It holds no per-caller state; the position lives in the cursor.
type Curator struct {
	cache  *BatchCache
	client SearchClient

	logger        *slog.Logger
	metrics       *metrics.Metrics
	defaultLimit  int
	hardCap       int
	searchTimeout time.Duration
}

// NewCurator creates a curator reading batches from cache and posts from client.
func NewCurator(cache *BatchCache, client SearchClient, opts ...CuratorOption) *Curator {
	c := &Curator{
		cache:         cache,
		client:        client,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		defaultLimit:  DefaultLimit,
		hardCap:       DefaultSearchHardCap,
		searchTimeout: DefaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cache returns the batch cache the curator reads from.
func (c *Curator) Cache() *BatchCache { return c.cache }

// Curate returns up to limit posts starting at cursor. A malformed cursor
// restarts the current batch. The cursor on the result is set when the page
// is full; a full page that exhausts the batch, or a continuation that finds
// the batch already consumed, points at the next window.
// Any search failure fails the whole call with a *SearchError.
func (c *Curator) Curate(ctx context.Context, cursor string, limit int) (*Result, error) {
	start := time.Now()
	res, err := c.curate(ctx, cursor, limit)
	c.metrics.ObserveCuration(err == nil, time.Since(start).Seconds())
	return res, err
}

func (c *Curator) curate(ctx context.Context, token string, limit int) (*Result, error) {
	cur, err := DecodeCursor(token, c.cache.CurrentBatchID())
	if err != nil {
		c.logger.Warn("malformed cursor, starting over", "cursor", token, "error", err)
		c.metrics.IncMalformedCursor()
	}
	if limit <= 0 {
		limit = c.defaultLimit
	}

	queries := c.cache.GetOrCreateBatch(cur.BatchID)
	res := &Result{Feed: make([]FeedItem, 0, min(limit, c.hardCap))}
	if len(queries) == 0 {
		return res, nil
	}
	if cur.QueryIndex >= len(queries) {
		c.rollover(res)
		return res, nil
	}

	if err := c.client.Authenticate(ctx); err != nil {
		return nil, &SearchError{Err: err}
	}

	// min(hardCap, 2*limit) without overflowing on huge limits.
	fetch := c.hardCap
	if limit <= c.hardCap/2 {
		fetch = limit * 2
	}
	for i := cur.QueryIndex; i < len(queries); i++ {
		posts, err := c.search(ctx, queries[i], fetch)
		if err != nil {
			return nil, &SearchError{Query: queries[i], Err: err}
		}

		j := 0
		if i == cur.QueryIndex {
			j = cur.PostIndex
		}
		for ; j < len(posts); j++ {
			res.Feed = append(res.Feed, FeedItem{Post: posts[j].URI})
			if len(res.Feed) < limit {
				continue
			}
			next := Cursor{QueryIndex: i, PostIndex: j + 1, BatchID: cur.BatchID}
			if i == len(queries)-1 && j+1 == len(posts) {
				next = Cursor{BatchID: c.cache.NextBatchID()}
			}
			res.Cursor = next.String()
			c.logger.Debug("curated page", "batch_id", cur.BatchID, "items", len(res.Feed), "cursor", res.Cursor)
			return res, nil
		}
	}

	// A continuation that finds nothing left moves on to the next window
	// instead of ending the stream.
	if len(res.Feed) == 0 && (cur.QueryIndex > 0 || cur.PostIndex > 0) {
		c.rollover(res)
	}
	c.logger.Debug("batch exhausted", "batch_id", cur.BatchID, "items", len(res.Feed), "cursor", res.Cursor)
	return res, nil
}

// rollover points res at the start of the next window's batch.
func (c *Curator) rollover(res *Result) {
	res.Cursor = Cursor{BatchID: c.cache.NextBatchID()}.String()
}

func (c *Curator) search(ctx context.Context, query string, limit int) ([]bsky.PostView, error) {
	ctx, cancel := context.WithTimeout(ctx, c.searchTimeout)
	defer cancel()

	start := time.Now()
	posts, err := c.client.SearchPosts(ctx, query, limit)
	c.metrics.ObserveSearch(err == nil, time.Since(start).Seconds())
	return posts, err
}
