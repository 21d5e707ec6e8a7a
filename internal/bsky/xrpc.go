package bsky

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	appbsky "github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
)

const defaultHost = "https://bsky.social"

// ErrNotAuthenticated is returned by calls that need a session before
// Authenticate has succeeded.
var ErrNotAuthenticated = errors.New("not authenticated")

// Client calls XRPC methods on a PDS with a password session.
type Client struct {
	host       string
	identifier string
	password   string
	http       *http.Client
	sessionTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	session *Session
}

// xrpcClient returns an indigo client for one call, authorised as sess when
// non-nil. A fresh value per call keeps the session swap race-free.
func (c *Client) xrpcClient(sess *Session) *xrpc.Client {
	xc := &xrpc.Client{
		Client: c.http,
		Host:   strings.TrimRight(c.host, "/"),
	}
	if sess != nil {
		xc.Auth = &xrpc.AuthInfo{
			AccessJwt:  sess.AccessJwt,
			RefreshJwt: sess.RefreshJwt,
			Handle:     sess.Handle,
			Did:        sess.DID,
		}
	}
	return xc
}

// Authenticate creates a session unless a fresh one is already held.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil && c.now().Sub(c.session.CreatedAt) < c.sessionTTL {
		return nil
	}

	out, err := comatproto.ServerCreateSession(ctx, c.xrpcClient(nil), &comatproto.ServerCreateSession_Input{
		Identifier: c.identifier,
		Password:   c.password,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	c.session = &Session{
		DID:        out.Did,
		Handle:     out.Handle,
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		CreatedAt:  c.now(),
	}
	return nil
}

// Session returns the current session, or nil before Authenticate.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// SearchPosts runs app.bsky.feed.searchPosts and returns posts in the order
// the provider ranked them.
func (c *Client) SearchPosts(ctx context.Context, query string, limit int) ([]PostView, error) {
	sess := c.Session()
	if sess == nil {
		return nil, ErrNotAuthenticated
	}

	out, err := appbsky.FeedSearchPosts(ctx, c.xrpcClient(sess),
		"", "", "", "", int64(limit), "", query, "", "", nil, "", "")
	if err != nil {
		return nil, fmt.Errorf("search posts %q: %w", query, err)
	}

	posts := make([]PostView, 0, len(out.Posts))
	for _, p := range out.Posts {
		if p == nil {
			continue
		}
		pv := PostView{URI: p.Uri, CID: p.Cid, IndexedAt: p.IndexedAt}
		if p.Author != nil {
			pv.Author = Author{DID: p.Author.Did, Handle: p.Author.Handle}
		}
		posts = append(posts, pv)
	}
	return posts, nil
}

// RecordRef identifies a written record.
type RecordRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// putRecord writes record into the session's repo under collection/rkey.
func (c *Client) putRecord(ctx context.Context, collection, rkey string, record *lexutil.LexiconTypeDecoder) (*RecordRef, error) {
	sess := c.Session()
	if sess == nil {
		return nil, ErrNotAuthenticated
	}

	out, err := comatproto.RepoPutRecord(ctx, c.xrpcClient(sess), &comatproto.RepoPutRecord_Input{
		Repo:       sess.DID,
		Collection: collection,
		Rkey:       rkey,
		Record:     record,
	})
	if err != nil {
		return nil, fmt.Errorf("put record %s/%s: %w", collection, rkey, err)
	}
	return &RecordRef{URI: out.Uri, CID: out.Cid}, nil
}
