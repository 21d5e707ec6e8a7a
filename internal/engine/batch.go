package engine

import (
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/cayyus/engineerverse/internal/metrics"
)

const (
	DefaultCacheDuration = 300 * time.Second
	DefaultBatchSize     = 8

	batchIDPrefix = "batch_"
)

// Batch is the ordered query list used for one rotation of the feed.
type Batch struct {
	ID        string    `json:"id"`
	Queries   []string  `json:"queries"`
	CreatedAt time.Time `json:"created_at"`
}

// BatchRecorder receives every generated batch.
type BatchRecorder interface {
	RecordBatch(id string, queries []string, createdAt time.Time) error
}

// BatchIDAt returns the id of the window containing t.
func BatchIDAt(t time.Time, window time.Duration) string {
	secs := int64(window / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return batchIDPrefix + strconv.FormatInt(t.Unix()/secs, 10)
}

// ValidBatchID reports whether id has the "batch_<window>" form.
func ValidBatchID(id string) bool {
	rest, ok := strings.CutPrefix(id, batchIDPrefix)
	if !ok || rest == "" {
		return false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	return err == nil && n >= 0
}

// seedFor derives the sampler seed for a batch id.
func seedFor(id string) int64 {
	return int64(xxhash.Sum64String(id) & math.MaxInt64)
}

// BatchCacheOption configures a BatchCache.
type BatchCacheOption func(*BatchCache)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) BatchCacheOption {
	return func(c *BatchCache) { c.now = now }
}

// WithBatchSize sets how many queries each batch holds.
func WithBatchSize(n int) BatchCacheOption {
	return func(c *BatchCache) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithRecorder attaches a ledger for generated batches.
func WithRecorder(r BatchRecorder) BatchCacheOption {
	return func(c *BatchCache) { c.recorder = r }
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l *slog.Logger) BatchCacheOption {
	return func(c *BatchCache) { c.logger = l }
}

// WithCacheMetrics sets the metrics sink.
func WithCacheMetrics(m *metrics.Metrics) BatchCacheOption {
	return func(c *BatchCache) { c.metrics = m }
}

// BatchCache maps time-window batch ids to generated query lists.
// Entries live for twice the window duration.
type BatchCache struct {
	sampler   *Sampler
	duration  time.Duration
	batchSize int
	now       func() time.Time
	recorder  BatchRecorder
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu      sync.RWMutex
	entries map[string]Batch
	group   singleflight.Group
}

// NewBatchCache creates a cache drawing batches from sampler.
func NewBatchCache(sampler *Sampler, duration time.Duration, opts ...BatchCacheOption) *BatchCache {
	if duration < time.Second {
		duration = DefaultCacheDuration
	}
	c := &BatchCache{
		sampler:   sampler,
		duration:  duration,
		batchSize: DefaultBatchSize,
		now:       time.Now,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		entries:   make(map[string]Batch),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Duration returns the window size.
func (c *BatchCache) Duration() time.Duration { return c.duration }

// CurrentBatchID is the id of the window containing now.
func (c *BatchCache) CurrentBatchID() string {
	return BatchIDAt(c.now(), c.duration)
}

// NextBatchID is the id of the window after the current one, by wall clock.
func (c *BatchCache) NextBatchID() string {
	return BatchIDAt(c.now().Add(c.duration), c.duration)
}

// GetOrCreateBatch returns the query list for id, generating and caching it
// when no live entry exists. Generation is seeded from id, so a past window
// that was evicted is rebuilt from its own seed.
func (c *BatchCache) GetOrCreateBatch(id string) []string {
	if b, ok := c.lookup(id); ok {
		c.metrics.IncCacheLookup(metrics.LookupHit)
		return cloneStrings(b.Queries)
	}
	c.metrics.IncCacheLookup(metrics.LookupMiss)

	v, _, _ := c.group.Do(id, func() (any, error) {
		if b, ok := c.lookup(id); ok {
			return b, nil
		}
		return c.generate(id), nil
	})
	return cloneStrings(v.(Batch).Queries)
}

func (c *BatchCache) lookup(id string) (Batch, bool) {
	c.mu.RLock()
	b, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok || c.now().Sub(b.CreatedAt) > 2*c.duration {
		return Batch{}, false
	}
	return b, true
}

func (c *BatchCache) generate(id string) Batch {
	terms := c.sampler.SelectManySeeded(c.batchSize, seedFor(id))
	queries := make([]string, len(terms))
	for i, t := range terms {
		queries[i] = t.Name
	}
	b := Batch{ID: id, Queries: queries, CreatedAt: c.now()}

	c.mu.Lock()
	c.entries[id] = b
	evicted := c.evictLocked(b.CreatedAt)
	c.mu.Unlock()

	c.metrics.IncBatchGenerated()
	c.metrics.AddEvictions(evicted)
	c.logger.Info("generated batch", "batch_id", id, "queries", queries, "evicted", evicted)

	if c.recorder != nil {
		if err := c.recorder.RecordBatch(b.ID, b.Queries, b.CreatedAt); err != nil {
			c.logger.Warn("record batch failed", "batch_id", id, "error", err)
		}
	}
	return b
}

func (c *BatchCache) evictLocked(now time.Time) int {
	n := 0
	for id, b := range c.entries {
		if now.Sub(b.CreatedAt) > 2*c.duration {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// EvictExpired drops every entry older than twice the window duration.
func (c *BatchCache) EvictExpired() int {
	c.mu.Lock()
	n := c.evictLocked(c.now())
	c.mu.Unlock()
	c.metrics.AddEvictions(n)
	return n
}

// Len returns the number of cached batches, expired or not.
func (c *BatchCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Batches returns the cached batches ordered by creation time.
func (c *BatchCache) Batches() []Batch {
	c.mu.RLock()
	out := make([]Batch, 0, len(c.entries))
	for _, b := range c.entries {
		b.Queries = cloneStrings(b.Queries)
		out = append(out, b)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
