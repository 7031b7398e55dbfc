// Package clientip resolves the originating client address of a request,
// honouring X-Forwarded-For / X-Real-IP only from trusted proxies.
package clientip

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
)

type contextKey struct{}

// Resolver knows which upstream proxies may set forwarding headers.
type Resolver struct {
	trusted []*net.IPNet
}

// NewResolver parses the trusted proxy CIDRs. Bare IPs are accepted as /32 or /128.
func NewResolver(cidrs []string) (*Resolver, error) {
	r := &Resolver{}
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			if ip := net.ParseIP(raw); ip != nil {
				if ip.To4() != nil {
					raw += "/32"
				} else {
					raw += "/128"
				}
			}
		}
		_, cidr, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		r.trusted = append(r.trusted, cidr)
	}
	return r, nil
}

// Resolve returns the client IP for req. Forwarding headers are ignored
// unless the direct peer is a trusted proxy.
func (r *Resolver) Resolve(req *http.Request) string {
	if req == nil {
		return ""
	}
	remoteIP := remoteHost(req.RemoteAddr)

	if r != nil && r.isTrusted(remoteIP) {
		if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
				return ip
			}
		}
		if realIP := strings.TrimSpace(req.Header.Get("X-Real-IP")); net.ParseIP(realIP) != nil {
			return realIP
		}
	}
	return remoteIP
}

func (r *Resolver) isTrusted(ip string) bool {
	if len(r.trusted) == 0 {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, cidr := range r.trusted {
		if cidr.Contains(parsed) {
			return true
		}
	}
	return false
}

// Middleware stores the resolved client IP in the request context.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := WithIP(req.Context(), r.Resolve(req))
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKey{}, ip)
}

// FromRequest returns the IP stored by Middleware, or the peer address
// when the middleware did not run.
func FromRequest(req *http.Request) string {
	if req == nil {
		return ""
	}
	if ip, ok := req.Context().Value(contextKey{}).(string); ok && ip != "" {
		return ip
	}
	return remoteHost(req.RemoteAddr)
}

func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
