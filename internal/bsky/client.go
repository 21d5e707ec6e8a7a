// Package bsky talks to a Bluesky PDS over XRPC: session creation, post
// search and feed generator record publishing.
package bsky

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cayyus/engineerverse/internal/config"
)

// Searcher finds posts matching a query.
type Searcher interface {
	SearchPosts(ctx context.Context, query string, limit int) ([]PostView, error)
}

// Authenticator establishes credentials before a run of searches. It must be
// idempotent.
type Authenticator interface {
	Authenticate(ctx context.Context) error
}

// PostView is the subset of app.bsky.feed.defs#postView the feed needs.
type PostView struct {
	URI       string `json:"uri"`
	CID       string `json:"cid"`
	Author    Author `json:"author"`
	IndexedAt string `json:"indexedAt"`
}

// Author identifies a post's creator.
type Author struct {
	DID    string `json:"did"`
	Handle string `json:"handle"`
}

// Session is the result of com.atproto.server.createSession.
type Session struct {
	DID        string    `json:"did"`
	Handle     string    `json:"handle"`
	AccessJwt  string    `json:"accessJwt"`
	RefreshJwt string    `json:"refreshJwt"`
	CreatedAt  time.Time `json:"-"`
}

// NewClient creates an XRPC client from the bluesky config section.
func NewClient(cfg config.BlueskyConfig) (*Client, error) {
	if cfg.Identifier == "" || cfg.Password == "" {
		return nil, fmt.Errorf("bluesky client requires BLUESKY_USERNAME and BLUESKY_PASSWORD")
	}
	host := cfg.Host
	if host == "" {
		host = defaultHost
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ttl := cfg.SessionTTL()
	if ttl <= 0 {
		ttl = 90 * time.Minute
	}
	return &Client{
		host:       host,
		identifier: cfg.Identifier,
		password:   cfg.Password,
		http:       &http.Client{Timeout: timeout},
		sessionTTL: ttl,
		now:        time.Now,
	}, nil
}
