package server

import (
	"context"
	"net/http"
)

type requestIDKey struct{}

type requestInfoKey struct{}

// requestInfo collects per-request fields the access log reports after the
// handler returns.
type requestInfo struct {
	viewerDID string
	errorCode string
}

func withRequestInfo(ctx context.Context) (context.Context, *requestInfo) {
	info := &requestInfo{}
	return context.WithValue(ctx, requestInfoKey{}, info), info
}

func getRequestInfo(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info
}

// GetRequestID returns the request ID from context, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GetViewerDID returns the DID of the requesting account, or "" for
// anonymous requests.
func GetViewerDID(ctx context.Context) string {
	if info := getRequestInfo(ctx); info != nil {
		return info.viewerDID
	}
	return ""
}

// setErrorCode records the XRPC error name for the access log.
func setErrorCode(r *http.Request, code string) {
	if info := getRequestInfo(r.Context()); info != nil {
		info.errorCode = code
	}
}
