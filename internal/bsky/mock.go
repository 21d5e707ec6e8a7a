package bsky

import (
	"context"
	"sync"
)

// SearchCall records one MockClient.SearchPosts invocation.
type SearchCall struct {
	Query string
	Limit int
}

// MockClient is a test double for Searcher and Authenticator.
// Results are returned per query, truncated to the requested limit.
type MockClient struct {
	Results map[string][]PostView
	Errs    map[string]error
	AuthErr error

	mu        sync.Mutex
	Calls     []SearchCall
	AuthCalls int
}

// Authenticate records the call and returns AuthErr.
func (m *MockClient) Authenticate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AuthCalls++
	return m.AuthErr
}

// SearchPosts records the call and returns the canned results for query.
func (m *MockClient) SearchPosts(ctx context.Context, query string, limit int) ([]PostView, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, SearchCall{Query: query, Limit: limit})
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.Errs[query]; ok {
		return nil, err
	}
	posts := m.Results[query]
	if limit >= 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	out := make([]PostView, len(posts))
	copy(out, posts)
	return out, nil
}

// CallCount returns how many searches were made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
