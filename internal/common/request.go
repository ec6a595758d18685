package common

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/studymate/backend/pkg/xcontext"
)

// ClientIP returns the address of the caller. Forwarded headers are only
// honored behind a trusted proxy and must hold a valid IP. It is empty outside
// of a request.
func ClientIP(ctx context.Context, trustProxy bool) string {
	req := xcontext.HTTPRequest(ctx)
	if req == nil {
		return ""
	}

	if trustProxy {
		if ip := forwardedIP(req.Header.Get("X-Forwarded-For")); ip != nil {
			return ip.String()
		}

		if ip := net.ParseIP(strings.TrimSpace(req.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		host = strings.TrimSpace(req.RemoteAddr)
	}

	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}

	return ""
}

// forwardedIP returns the first valid hop of an X-Forwarded-For header.
func forwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}

	for _, hop := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(hop)); ip != nil {
			return ip
		}
	}

	return nil
}

// DeviceInfo returns the explicit device description, falling back to the
// User-Agent of the request.
func DeviceInfo(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}

	if req := xcontext.HTTPRequest(ctx); req != nil {
		return req.Header.Get("User-Agent")
	}

	return ""
}

func BearerHeader(req *http.Request) string {
	if req == nil {
		return ""
	}
	return req.Header.Get("Authorization")
}

// CookieValue returns the value of the named cookie of the current request.
func CookieValue(ctx context.Context, name string) string {
	req := xcontext.HTTPRequest(ctx)
	if req == nil {
		return ""
	}

	cookie, err := req.Cookie(name)
	if err != nil {
		return ""
	}

	return cookie.Value
}
