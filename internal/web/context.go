package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/ferry/internal/core"
)

// withRequestMetadata copies the client IP and User-Agent into ctx so the
// transfer logs can attribute the operation.
func withRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithClientIP(ctx, clientIP(r))
	return core.ContextWithUserAgent(ctx, r.UserAgent())
}

// clientIP returns the host part of RemoteAddr, which TrustedRealIP has
// already rewritten for requests from trusted proxies.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
