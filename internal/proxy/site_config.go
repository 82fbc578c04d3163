package proxy

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// SiteConfig overrides the fetch for one embed host. It is read from
// <sites_dir>/<host>.json, e.g. {"mode":"browser","headers":{"Referer":"https://vidsrc.to/"}}.
type SiteConfig struct {
	Mode    string            `json:"mode"`
	Headers map[string]string `json:"headers,omitempty"`
}

// siteConfigStore resolves a target to the most specific host file,
// trying www.vidsrc.to, then vidsrc.to, then to. Misses are cached too.
type siteConfigStore struct {
	dir    string
	logger zerolog.Logger

	mu    sync.RWMutex
	cache map[string]*SiteConfig
}

func newSiteConfigStore(dir string, logger zerolog.Logger) *siteConfigStore {
	return &siteConfigStore{
		dir:    dir,
		logger: logger,
		cache:  make(map[string]*SiteConfig),
	}
}

func (s *siteConfigStore) Find(target string) *SiteConfig {
	if s == nil || s.dir == "" {
		return nil
	}
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	host := strings.ToLower(u.Hostname())

	s.mu.RLock()
	cfg, ok := s.cache[host]
	s.mu.RUnlock()
	if ok {
		return cfg
	}

	labels := strings.Split(host, ".")
	for i := 0; i < len(labels) && cfg == nil; i++ {
		cfg = s.load(strings.Join(labels[i:], "."))
	}
	s.mu.Lock()
	s.cache[host] = cfg
	s.mu.Unlock()
	return cfg
}

func (s *siteConfigStore) load(host string) *SiteConfig {
	path := filepath.Join(s.dir, host+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cfg SiteConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("ignoring malformed site config")
		return nil
	}
	cfg.Mode = strings.TrimSpace(strings.ToLower(cfg.Mode))
	return &cfg
}

// apply merges the site headers over hdr.
func (c *SiteConfig) apply(hdr http.Header) {
	if c == nil {
		return
	}
	for k, v := range c.Headers {
		hdr.Set(k, v)
	}
}

// reset drops cached lookups so edited files are read again.
func (s *siteConfigStore) reset() {
	s.mu.Lock()
	s.cache = make(map[string]*SiteConfig)
	s.mu.Unlock()
}

// ReloadSites forgets cached per-host overrides.
func (s *Server) ReloadSites() {
	s.sites.reset()
	s.logger.Info().Str("dir", s.cfg.SitesDir).Msg("site configs reloaded")
}
