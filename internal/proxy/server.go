package proxy

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"embedproxy/internal/audit"
	"embedproxy/internal/metrics"
	"embedproxy/sanitize"
)

const defaultSitesDir = "config/sites"

// Endpoints is the public route list, logged at startup and returned with
// every 404.
var Endpoints = []string{
	"GET /health",
	"GET /proxy/vidsrc?id=MOVIE_ID",
	"GET /proxy/vidsrc-to?id=MOVIE_ID&type=movie",
	"GET /proxy/vidsrc-me?id=MOVIE_ID&tmdb=TMDB_ID&type=movie",
	"GET /api/health",
	"GET /api/proxy/{provider}",
}

// Config describes server wiring and runtime behaviour.
type Config struct {
	Logger    zerolog.Logger
	Clock     func() time.Time
	Providers *Registry
	Upstream  UpstreamOptions
	// Mode names the fetcher used when no site config overrides it.
	Mode     string
	Fetchers []Fetcher
	SitesDir string
	Rules    *sanitize.RuleSet
	Metrics  metrics.Backend
	Audit    audit.Sink
	// Limiter is shared by all clients; nil disables rate limiting.
	Limiter *rate.Limiter
	// Debug exposes panic messages in 500 responses.
	Debug bool
}

// DefaultConfig targets the public vidsrc hosts over plain net/http.
func DefaultConfig() Config {
	return Config{
		Logger:    zerolog.Nop(),
		Clock:     time.Now,
		Providers: DefaultRegistry("https://vidsrc.to", "https://vidsrc.me"),
		Mode:      "http",
		SitesDir:  defaultSitesDir,
		Rules:     sanitize.Default(),
		Metrics:   metrics.Nop{},
		Audit:     audit.Nop{},
	}
}

// Server exposes the HTTP handlers implementing the proxy behaviour.
type Server struct {
	cfg       Config
	mux       *http.ServeMux
	handler   http.Handler
	logger    zerolog.Logger
	providers *Registry
	fetchers  map[string]Fetcher
	sites     *siteConfigStore
	rules     *sanitize.RuleSet
	metrics   metrics.Backend
	audit     audit.Sink
	clock     func() time.Time
}

// New wires a new proxy server with the provided configuration. Zero
// fields fall back to DefaultConfig values.
func New(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	if cfg.Providers == nil {
		cfg.Providers = def.Providers
	}
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.Rules == nil {
		cfg.Rules = def.Rules
	}
	if cfg.Metrics == nil {
		cfg.Metrics = def.Metrics
	}
	if cfg.Audit == nil {
		cfg.Audit = def.Audit
	}
	cfg.Upstream = cfg.Upstream.withDefaults()

	fetchers := make(map[string]Fetcher, len(cfg.Fetchers)+1)
	for _, f := range cfg.Fetchers {
		fetchers[f.Name()] = f
	}
	if _, ok := fetchers["http"]; !ok {
		fetchers["http"] = NewHTTPFetcher(cfg.Upstream.MaxBodyBytes)
	}
	if _, ok := fetchers[cfg.Mode]; !ok {
		cfg.Logger.Warn().Str("mode", cfg.Mode).Msg("no fetcher for mode, using http")
		cfg.Mode = "http"
	}

	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		logger:    cfg.Logger,
		providers: cfg.Providers,
		fetchers:  fetchers,
		sites:     newSiteConfigStore(cfg.SitesDir, cfg.Logger),
		rules:     cfg.Rules,
		metrics:   cfg.Metrics,
		audit:     cfg.Audit,
		clock:     cfg.Clock,
	}
	s.registerRoutes()

	var h http.Handler = s.mux
	h = withRateLimit(cfg.Limiter, s.metrics, h)
	h = withRecover(s.logger, cfg.Debug, h)
	h = withCORS(h)
	s.handler = withLogging(s.logger, s.clock, h)
	return s
}

// Handler exposes the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler { return s }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/proxy/{provider}", s.handleProxy)
	s.mux.HandleFunc("/api/proxy/{provider}", s.handleProxy)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/", s.handleNotFound)
}
