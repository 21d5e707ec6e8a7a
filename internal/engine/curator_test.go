package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cayyus/engineerverse/internal/bsky"
	"github.com/cayyus/engineerverse/internal/metrics"
)

func makePosts(prefix string, n int) []bsky.PostView {
	posts := make([]bsky.PostView, n)
	for i := range posts {
		posts[i] = bsky.PostView{URI: fmt.Sprintf("at://did:plc:%s/app.bsky.feed.post/%d", prefix, i)}
	}
	return posts
}

func postURIs(items []FeedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Post
	}
	return out
}

// curatorFixture builds a two-query batch ["#a", "#b"] in that order; the
// fixed sources always pick the first remaining term.
type curatorFixture struct {
	clock   *testClock
	cache   *BatchCache
	client  *bsky.MockClient
	curator *Curator
	reg     *prometheus.Registry
}

func newCuratorFixture(t *testing.T, opts ...CuratorOption) *curatorFixture {
	t.Helper()
	s := NewSampler(uniformTerms("#a", "#b"),
		WithRand(fixedSource{0}),
		WithSeededRand(func(int64) Float64Source { return fixedSource{0} }),
	)
	m := metrics.New()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	clock := newTestClock(epoch)
	cache := NewBatchCache(s, 300*time.Second, WithClock(clock.Now), WithBatchSize(2), WithCacheMetrics(m))
	client := &bsky.MockClient{Results: map[string][]bsky.PostView{
		"#a": makePosts("a", 3),
		"#b": makePosts("b", 4),
	}}
	opts = append([]CuratorOption{WithMetrics(m)}, opts...)
	return &curatorFixture{
		clock:   clock,
		cache:   cache,
		client:  client,
		curator: NewCurator(cache, client, opts...),
		reg:     reg,
	}
}

func counterTotal(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	total := 0.0
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestCuratePaginatesAcrossQueries(t *testing.T) {
	f := newCuratorFixture(t)
	ctx := context.Background()
	batchID := f.cache.CurrentBatchID()

	page1, err := f.curator.Curate(ctx, "", 5)
	if err != nil {
		t.Fatalf("Curate: %v", err)
	}
	want1 := []string{
		"at://did:plc:a/app.bsky.feed.post/0",
		"at://did:plc:a/app.bsky.feed.post/1",
		"at://did:plc:a/app.bsky.feed.post/2",
		"at://did:plc:b/app.bsky.feed.post/0",
		"at://did:plc:b/app.bsky.feed.post/1",
	}
	if got := postURIs(page1.Feed); !slices.Equal(got, want1) {
		t.Errorf("page 1 = %v, want %v", got, want1)
	}
	if page1.Cursor != "1:2:"+batchID {
		t.Errorf("cursor = %q, want %q", page1.Cursor, "1:2:"+batchID)
	}

	page2, err := f.curator.Curate(ctx, page1.Cursor, 5)
	if err != nil {
		t.Fatalf("Curate: %v", err)
	}
	want2 := []string{
		"at://did:plc:b/app.bsky.feed.post/2",
		"at://did:plc:b/app.bsky.feed.post/3",
	}
	if got := postURIs(page2.Feed); !slices.Equal(got, want2) {
		t.Errorf("page 2 = %v, want %v", got, want2)
	}
	if page2.Cursor != "" {
		t.Errorf("short page cursor = %q, want none", page2.Cursor)
	}
}

func TestCurateTwoPartCursorUsesCurrentBatch(t *testing.T) {
	f := newCuratorFixture(t)
	res, err := f.curator.Curate(context.Background(), "1:2", 5)
	if err != nil {
		t.Fatalf("Curate: %v", err)
	}
	if len(res.Feed) != 2 || res.Feed[0].Post != "at://did:plc:b/app.bsky.feed.post/2" {
		t.Errorf("feed = %v", postURIs(res.Feed))
	}
}

func TestCurateRequestsOverFetchBoundedByHardCap(t *testing.T) {
	f := newCuratorFixture(t, WithSearchHardCap(100))
	ctx := context.Background()

	f.curator.Curate(ctx, "", 5)
	if got := f.client.Calls[0].Limit; got != 10 {
		t.Errorf("search limit for page of 5 = %d, want 10", got)
	}

	f.client.Calls = nil
	f.curator.Curate(ctx, "", 80)
	if got := f.client.Calls[0].Limit; got != 100 {
		t.Errorf("search limit for page of 80 = %d, want 100", got)
	}
}

func TestCurateMalformedCursorEqualsNoCursor(t *testing.T) {
	f := newCuratorFixture(t)
	ctx := context.Background()

	fresh, err := f.curator.Curate(ctx, "", 4)
	if err != nil {
		t.Fatalf("Curate: %v", err)
	}
	garbage, err := f.curator.Curate(ctx, "garbage", 4)
	if err != nil {
		t.Fatalf("Curate(garbage): %v", err)
	}
	if !slices.Equal(postURIs(garbage.Feed), postURIs(fresh.Feed)) || garbage.Cursor != fresh.Cursor {
		t.Errorf("garbage = %+v, want %+v", garbage, fresh)
	}
	if garbage.Feed[0].Post != "at://did:plc:a/app.bsky.feed.post/0" {
		t.Errorf("first post = %q, want query 0 post 0", garbage.Feed[0].Post)
	}
	if n := counterTotal(t, f.reg, metrics.MetricMalformedCursorsTotal); n != 1 {
		t.Errorf("malformed cursor count = %v, want 1", n)
	}
}

func TestCurateDefaultLimit(t *testing.T) {
	f := newCuratorFixture(t, WithDefaultLimit(4))
	res, err := f.curator.Curate(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("Curate: %v", err)
	}
	if len(res.Feed) != 4 || res.Cursor == "" {
		t.Errorf("feed len = %d, cursor = %q; want 4 and a cursor", len(res.Feed), res.Cursor)
	}
}

func TestCurateShortPageOmitsCursor(t *testing.T) {
	f := newCuratorFixture(t)
	res, err := f.curator.Curate(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("Curate: %v", err)
	}
	if len(res.Feed) != 7 || res.Cursor != "" {
		t.Errorf("feed len = %d, cursor = %q; want 7 and none", len(res.Feed), res.Cursor)
	}
}

func TestCurateExhaustedBatchRollsOver(t *testing.T) {
	f := newCuratorFixture(t)
	ctx := context.Background()

	res, err := f.curator.Curate(ctx, "", 7)
	if err != nil {
		t.Fatalf("Curate: %v", err)
	}
	next := f.cache.NextBatchID()
	if res.Cursor != "0:0:"+next {
		t.Fatalf("cursor = %q, want %q", res.Cursor, "0:0:"+next)
	}

	res, err = f.curator.Curate(ctx, res.Cursor, 3)
	if err != nil {
		t.Fatalf("Curate(rollover): %v", err)
	}
	if len(res.Feed) != 3 || res.Feed[0].Post != "at://did:plc:a/app.bsky.feed.post/0" {
		t.Errorf("rollover page = %v", postURIs(res.Feed))
	}
	if res.Cursor != "0:3:"+next {
		t.Errorf("cursor = %q, want %q", res.Cursor, "0:3:"+next)
	}
}

// The rollover id comes from the wall clock, so a client that follows it
// late lands on a window that is already in the past. It is still served,
// regenerated from its own seed.
func TestCurateRolloverCursorFollowedLate(t *testing.T) {
	f := newCuratorFixture(t)
	ctx := context.Background()

	res, _ := f.curator.Curate(ctx, "", 7)
	f.clock.Advance(time.Hour)

	late, err := f.curator.Curate(ctx, res.Cursor, 2)
	if err != nil {
		t.Fatalf("Curate: %v", err)
	}
	cur, _ := DecodeCursor(res.Cursor, "")
	if late.Cursor != "0:2:"+cur.BatchID {
		t.Errorf("late cursor = %q, want batch %s kept", late.Cursor, cur.BatchID)
	}
}

func TestCuratePastBatchCursorIsNotSubstituted(t *testing.T) {
	f := newCuratorFixture(t)
	past := BatchIDAt(epoch.Add(-24*time.Hour), 300*time.Second)

	res, err := f.curator.Curate(context.Background(), "0:1:"+past, 2)
	if err != nil {
		t.Fatalf("Curate: %v", err)
	}
	if res.Cursor != "0:3:"+past {
		t.Errorf("cursor = %q, want %q", res.Cursor, "0:3:"+past)
	}
	if f.cache.Len() != 1 || f.cache.Batches()[0].ID != past {
		t.Errorf("cached = %+v, want only %s", f.cache.Batches(), past)
	}
}

func TestCurateQueryIndexPastBatchEndRollsOver(t *testing.T) {
	f := newCuratorFixture(t)
	res, err := f.curator.Curate(context.Background(), "9:0", 5)
	if err != nil {
		t.Fatalf("Curate: %v", err)
	}
	want := "0:0:" + f.cache.NextBatchID()
	if len(res.Feed) != 0 || res.Cursor != want {
		t.Errorf("res = %+v, want empty page with cursor %q", res, want)
	}
	if f.client.AuthCalls != 0 || f.client.CallCount() != 0 {
		t.Error("collaborator called for a consumed batch")
	}
}

// A full page can end exactly at the end of a query whose successors turn
// out to be empty. The follow-up finds nothing and moves to the next window.
func TestCurateConsumedContinuationRollsOver(t *testing.T) {
	f := newCuratorFixture(t)
	f.client.Results["#b"] = nil
	ctx := context.Background()

	res, err := f.curator.Curate(ctx, "", 3)
	if err != nil {
		t.Fatalf("Curate: %v", err)
	}
	id := f.cache.CurrentBatchID()
	if res.Cursor != "0:3:"+id {
		t.Fatalf("cursor = %q, want %q", res.Cursor, "0:3:"+id)
	}

	res, err = f.curator.Curate(ctx, res.Cursor, 3)
	if err != nil {
		t.Fatalf("Curate(continuation): %v", err)
	}
	want := "0:0:" + f.cache.NextBatchID()
	if len(res.Feed) != 0 || res.Cursor != want {
		t.Errorf("res = %+v, want empty page with cursor %q", res, want)
	}
}

func TestCurateEmptyResultsFromOriginEndStream(t *testing.T) {
	f := newCuratorFixture(t)
	f.client.Results = map[string][]bsky.PostView{}

	res, err := f.curator.Curate(context.Background(), "", 5)
	if err != nil {
		t.Fatalf("Curate: %v", err)
	}
	if len(res.Feed) != 0 || res.Cursor != "" {
		t.Errorf("res = %+v, want empty page without cursor", res)
	}
}

func TestCurateHugeLimit(t *testing.T) {
	for _, limit := range []int{1 << 40, math.MaxInt/2 + 1, math.MaxInt} {
		f := newCuratorFixture(t)
		res, err := f.curator.Curate(context.Background(), "", limit)
		if err != nil {
			t.Fatalf("limit=%d: Curate: %v", limit, err)
		}
		if len(res.Feed) != 7 || res.Cursor != "" {
			t.Errorf("limit=%d: feed len = %d, cursor = %q; want 7 and none", limit, len(res.Feed), res.Cursor)
		}
		for _, call := range f.client.Calls {
			if call.Limit != DefaultSearchHardCap {
				t.Errorf("limit=%d: search limit = %d, want %d", limit, call.Limit, DefaultSearchHardCap)
			}
		}
	}
}

func TestCurateEmptyBatch(t *testing.T) {
	cache := NewBatchCache(NewSampler(nil), 300*time.Second)
	client := &bsky.MockClient{}
	res, err := NewCurator(cache, client).Curate(context.Background(), "", 5)
	if err != nil {
		t.Fatalf("Curate: %v", err)
	}
	if res.Feed == nil || len(res.Feed) != 0 || res.Cursor != "" {
		t.Errorf("res = %+v, want empty feed without cursor", res)
	}
	if client.AuthCalls != 0 || client.CallCount() != 0 {
		t.Errorf("collaborator called for empty batch")
	}
}

func TestCurateSearchFailureFailsWholeCall(t *testing.T) {
	f := newCuratorFixture(t)
	boom := errors.New("upstream 502")
	f.client.Errs = map[string]error{"#b": boom}

	res, err := f.curator.Curate(context.Background(), "", 5)
	if res != nil {
		t.Errorf("res = %+v, want nil", res)
	}
	if !errors.Is(err, ErrSearchProvider) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want search provider failure wrapping %v", err, boom)
	}
	var se *SearchError
	if !errors.As(err, &se) || se.Query != "#b" {
		t.Errorf("SearchError = %+v, want query #b", se)
	}
	if n := counterTotal(t, f.reg, metrics.MetricSearchRequestsTotal); n != 2 {
		t.Errorf("search requests = %v, want 2", n)
	}
}

func TestCurateAuthFailure(t *testing.T) {
	f := newCuratorFixture(t)
	f.client.AuthErr = errors.New("bad password")

	_, err := f.curator.Curate(context.Background(), "", 5)
	var se *SearchError
	if !errors.As(err, &se) || se.Query != "" {
		t.Fatalf("err = %v, want auth SearchError", err)
	}
	if f.client.CallCount() != 0 {
		t.Errorf("searched after auth failure")
	}
}

// blockingSearcher waits for its context before returning.
type blockingSearcher struct{}

func (blockingSearcher) Authenticate(context.Context) error { return nil }

func (blockingSearcher) SearchPosts(ctx context.Context, query string, limit int) ([]bsky.PostView, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCurateSearchTimeout(t *testing.T) {
	s := NewSampler(uniformTerms("#a"))
	cache := NewBatchCache(s, 300*time.Second)
	c := NewCurator(cache, blockingSearcher{}, WithSearchTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := c.Curate(context.Background(), "", 5)
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, ErrSearchProvider) {
		t.Fatalf("err = %v, want deadline exceeded search failure", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("timeout not applied")
	}
}

func TestCurateConcurrentCallsShareBatch(t *testing.T) {
	f := newCuratorFixture(t)
	ctx := context.Background()

	const callers = 16
	results := make([]*Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.curator.Curate(ctx, "", 5)
			if err != nil {
				t.Errorf("Curate: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if results[i] == nil || results[0] == nil {
			continue
		}
		if results[i].Cursor != results[0].Cursor {
			t.Errorf("caller %d cursor = %q, want %q", i, results[i].Cursor, results[0].Cursor)
		}
	}
	if f.cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", f.cache.Len())
	}
	if n := counterTotal(t, f.reg, metrics.MetricCurationRequestsTotal); n != callers {
		t.Errorf("curation requests = %v, want %d", n, callers)
	}
}
