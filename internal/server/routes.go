package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cayyus/engineerverse/internal/bsky"
	"github.com/cayyus/engineerverse/internal/store"
)

// XRPC error names.
const (
	ErrNameInvalidRequest       = "InvalidRequest"
	ErrNameUnsupportedAlgorithm = "UnsupportedAlgorithm"
	ErrNameInternalServerError  = "InternalServerError"
	ErrNameServiceUnavailable   = "ServiceUnavailable"
)

func (s *Server) handleGetFeedSkeleton(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	feed := q.Get("feed")
	if feed == "" {
		writeXRPCError(w, r, http.StatusBadRequest, ErrNameInvalidRequest, "feed parameter is required")
		return
	}
	if feed != s.feedURI {
		writeXRPCError(w, r, http.StatusBadRequest, ErrNameUnsupportedAlgorithm, "Unsupported algorithm")
		return
	}

	limit := s.defaultLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > s.maxLimit {
			writeXRPCError(w, r, http.StatusBadRequest, ErrNameInvalidRequest,
				fmt.Sprintf("limit must be an integer between 1 and %d", s.maxLimit))
			return
		}
		limit = n
	}

	if s.curator == nil {
		writeXRPCError(w, r, http.StatusServiceUnavailable, ErrNameServiceUnavailable, "engine not configured")
		return
	}

	res, err := s.curator.Curate(r.Context(), q.Get("cursor"), limit)
	if err != nil {
		s.logger.Error("curation failed",
			"request_id", GetRequestID(r.Context()),
			"viewer_did", GetViewerDID(r.Context()),
			"error", err)
		writeXRPCError(w, r, http.StatusInternalServerError, ErrNameInternalServerError,
			"Error fetching posts: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDescribeFeedGenerator(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, bsky.DescribeFeedGeneratorOutput{
		DID: s.feed.ServiceDID,
		Feeds: []bsky.FeedDescription{{
			URI:         s.feedURI,
			DisplayName: s.feed.DisplayName,
			Description: s.feed.Description,
		}},
	})
}

func (s *Server) handleDIDDocument(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(s.feed.ServiceDID, "did:web:") {
		writeXRPCError(w, r, http.StatusNotFound, "NotFound", "service did is not a did:web")
		return
	}
	writeJSON(w, http.StatusOK, bsky.NewDIDDocument(s.feed.ServiceDID, s.feed.Hostname))
}

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, `{"error":"store not configured"}`, http.StatusServiceUnavailable)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			http.Error(w, `{"error":"limit must be between 1 and 500"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	batches, err := s.db.RecentBatches(limit)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusInternalServerError)
		return
	}
	if batches == nil {
		batches = []store.BatchRecord{}
	}
	total, err := s.db.CountBatches()
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batches": batches,
		"total":   total,
	})
}

func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	if s.sampler == nil {
		http.Error(w, `{"error":"engine not configured"}`, http.StatusServiceUnavailable)
		return
	}
	terms := s.sampler.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"terms":        terms,
		"total_weight": terms.TotalWeight(),
	})
}
