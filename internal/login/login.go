// Package login models the injected cookie/auth-header collaborator
// referenced by spec.md §6 ("Login provider") and
// original_source/core/login.py: cookies and auth negotiation happen
// outside the crawler core, which only consumes ready-made values.
package login

import "net/http"

// Provider returns ready-made cookies and auth headers to inject into
// both fetchers. Authentication negotiation itself is out of scope
// (spec.md §1 non-goals).
type Provider interface {
	Cookies() []*http.Cookie
	AuthHeaders() map[string]string
}

// NoopProvider supplies no cookies or headers, the common
// unauthenticated case.
type NoopProvider struct{}

func (NoopProvider) Cookies() []*http.Cookie         { return nil }
func (NoopProvider) AuthHeaders() map[string]string { return nil }

// StaticProvider injects a fixed set of cookies and headers acquired
// ahead of time by an external login/cookie acquirer.
type StaticProvider struct {
	cookies     []*http.Cookie
	authHeaders map[string]string
}

// NewStaticProvider builds a Provider over pre-acquired credentials.
func NewStaticProvider(cookies []*http.Cookie, authHeaders map[string]string) StaticProvider {
	return StaticProvider{cookies: cookies, authHeaders: authHeaders}
}

func (p StaticProvider) Cookies() []*http.Cookie { return p.cookies }

func (p StaticProvider) AuthHeaders() map[string]string { return p.authHeaders }
