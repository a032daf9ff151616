package server

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// originPolicy is the set of browser origins allowed to open a WebSocket.
// Entries are kept as lower-case scheme://host.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	list     []string
	ignored  []string
}

// newOriginPolicy parses configured origins. "*" allows every origin;
// entries that are not absolute URLs are set aside in ignored.
func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{allowed: make(map[string]struct{}, len(origins))}
	for _, raw := range origins {
		entry := strings.TrimSpace(raw)
		switch {
		case entry == "":
		case entry == "*":
			p.allowAll = true
		default:
			origin, ok := canonicalOrigin(entry)
			if !ok {
				p.ignored = append(p.ignored, entry)
				continue
			}
			if _, dup := p.allowed[origin]; !dup {
				p.allowed[origin] = struct{}{}
				p.list = append(p.list, origin)
			}
		}
	}
	return p
}

func canonicalOrigin(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}

// allows reports whether an Origin header value may connect. Requests
// without an Origin are refused even when every origin is allowed.
func (p originPolicy) allows(header string) bool {
	origin, ok := canonicalOrigin(header)
	if !ok {
		return false
	}
	if p.allowAll {
		return true
	}
	_, ok = p.allowed[origin]
	return ok
}

// originGuard is the upgrader's CheckOrigin. It reads the active policy on
// every request so SetConfig takes effect without rebuilding the hub.
type originGuard struct {
	log *zap.Logger
}

func (g originGuard) check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if currentOriginPolicy().allows(origin) {
		return true
	}
	g.log.Info("blocked websocket connection from disallowed origin",
		zap.String("origin", origin), zap.String("addr", r.RemoteAddr))
	return false
}
