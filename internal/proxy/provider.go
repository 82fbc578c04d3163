package proxy

import (
	"fmt"
	"net/url"
	"strings"
)

// ProxyRequest is the validated input of one proxy call.
type ProxyRequest struct {
	Provider string
	ID       string
	TMDB     string
	Type     string
}

const defaultMediaType = "movie"

// Provider turns a request into the upstream embed URL.
type Provider interface {
	Name() string
	Target(req ProxyRequest) string
}

// pathEmbed builds {base}/embed/{type}/{id}.
type pathEmbed struct {
	name string
	base string
}

func (p pathEmbed) Name() string { return p.name }

func (p pathEmbed) Target(req ProxyRequest) string {
	return p.base + "/embed/" + url.PathEscape(req.Type) + "/" + url.PathEscape(req.ID)
}

// queryEmbed builds {base}/embed/{type}?tmdb={tmdb|id}.
type queryEmbed struct {
	name string
	base string
}

func (p queryEmbed) Name() string { return p.name }

func (p queryEmbed) Target(req ProxyRequest) string {
	tmdb := req.TMDB
	if tmdb == "" {
		tmdb = req.ID
	}
	return p.base + "/embed/" + url.PathEscape(req.Type) + "?tmdb=" + url.QueryEscape(tmdb)
}

// Registry is a read-only name -> provider table. Lookups are exact and
// case-sensitive. Names keep registration order for error messages.
type Registry struct {
	byName map[string]Provider
	names  []string
}

// NewRegistry builds a registry. Names that differ only in case are
// rejected as duplicates.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{byName: make(map[string]Provider, len(providers))}
	folded := make(map[string]struct{}, len(providers))
	for _, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("provider must not be nil")
		}
		name := p.Name()
		if strings.TrimSpace(name) == "" || name != strings.TrimSpace(name) {
			return nil, fmt.Errorf("invalid provider name %q", name)
		}
		key := strings.ToLower(name)
		if _, ok := folded[key]; ok {
			return nil, fmt.Errorf("duplicate provider %q", name)
		}
		folded[key] = struct{}{}
		r.byName[name] = p
		r.names = append(r.names, name)
	}
	return r, nil
}

// DefaultRegistry registers vidsrc (alias of vidsrc-to), vidsrc-to and
// vidsrc-me against the given base URLs.
func DefaultRegistry(vidsrcTo, vidsrcMe string) *Registry {
	vidsrcTo = strings.TrimRight(vidsrcTo, "/")
	vidsrcMe = strings.TrimRight(vidsrcMe, "/")
	r, err := NewRegistry(
		pathEmbed{name: "vidsrc", base: vidsrcTo},
		pathEmbed{name: "vidsrc-to", base: vidsrcTo},
		queryEmbed{name: "vidsrc-me", base: vidsrcMe},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the provider registered under exactly name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Names lists the registered providers in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Resolve validates the query and builds the upstream URL. The id check
// runs first so a missing id is reported whatever the provider.
func (r *Registry) Resolve(provider string, q url.Values) (ProxyRequest, string, error) {
	req := ProxyRequest{
		Provider: provider,
		ID:       q.Get("id"),
		TMDB:     q.Get("tmdb"),
		Type:     q.Get("type"),
	}
	if req.ID == "" {
		return req, "", &MissingParameterError{Name: "id"}
	}
	if req.Type == "" {
		req.Type = defaultMediaType
	}
	p, ok := r.Get(req.Provider)
	if !ok {
		return req, "", &UnsupportedProviderError{Provider: provider, Supported: r.Names()}
	}
	return req, p.Target(req), nil
}
