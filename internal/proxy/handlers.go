package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"embedproxy/internal/audit"
	"embedproxy/internal/metrics"
	"embedproxy/sanitize"
)

const (
	healthTimeFormat = "2006-01-02T15:04:05.000Z07:00"
	auditTimeout     = 2 * time.Second
)

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "Method not allowed"})
		return
	}
	start := s.clock()
	provider := r.PathValue("provider")

	req, target, err := s.providers.Resolve(provider, r.URL.Query())
	if err != nil {
		s.reject(w, req, err)
		s.finish(r.Context(), audit.Record{At: start, Provider: req.Provider, MediaID: req.ID, MediaType: req.Type, Status: statusOf(err), Error: err.Error()}, start)
		return
	}

	rec := audit.Record{At: start, Provider: req.Provider, MediaID: req.ID, MediaType: req.Type, TargetURL: target}
	res, err := s.proxy(r.Context(), req, target)
	if err != nil {
		status := statusOf(err)
		s.logger.Error().Err(err).Str("provider", req.Provider).Str("target", target).Msg("proxy failed")
		writeJSON(w, status, map[string]any{
			"error":     "Failed to fetch or clean video content",
			"details":   err.Error(),
			"provider":  provider,
			"targetUrl": target,
		})
		s.metrics.IncCounter(metrics.RequestsTotal, 1, metrics.Labels{"provider": req.Provider, "status": strconv.Itoa(status)})
		rec.Status, rec.Error = status, err.Error()
		s.finish(r.Context(), rec, start)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("X-Frame-Options", "ALLOWALL")
	h.Set("Content-Security-Policy", res.CSP)
	h.Set("Content-Length", strconv.Itoa(len(res.HTML)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(res.HTML))

	s.metrics.IncCounter(metrics.RequestsTotal, 1, metrics.Labels{"provider": req.Provider, "status": "200"})
	rec.Status, rec.Branch, rec.Removed = http.StatusOK, string(res.Branch), res.Report.Total()
	s.finish(r.Context(), rec, start)
}

// proxy runs fetch and sanitize. Nothing is written to the client here so
// a failure in either step never leaks partial HTML.
func (s *Server) proxy(ctx context.Context, req ProxyRequest, target string) (*sanitize.Result, error) {
	up, err := s.fetch(ctx, req, target)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(up.URL)
	if err != nil {
		return nil, &FetchFailedError{Target: target, Err: err}
	}
	res, err := s.rules.Sanitize(up.Body, base)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("provider", req.Provider).
		Str("branch", string(res.Branch)).
		Int("removed_elements", res.Report.RemovedElements).
		Int("stripped_css_rules", res.Report.StrippedCSSRules).
		Int("removed_scripts", res.Report.RemovedScripts).
		Int("stripped_handlers", res.Report.StrippedHandlers).
		Int("rewritten_urls", res.Report.RewrittenURLs).
		Msg("SANITIZE")
	s.reportRemovals(res)
	return res, nil
}

// fetch picks the fetcher (site config may override the mode), applies the
// deadline and normalizes errors into the fetch taxonomy.
func (s *Server) fetch(ctx context.Context, req ProxyRequest, target string) (*Upstream, error) {
	hdr := s.cfg.Upstream.headers()
	f := s.fetchers[s.cfg.Mode]
	if site := s.sites.Find(target); site != nil {
		site.apply(hdr)
		if alt, ok := s.fetchers[site.Mode]; ok {
			f = alt
		}
	}

	timeout := s.cfg.Upstream.Timeout
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := s.clock()
	up, err := f.Fetch(ctx, target, hdr)
	outcome := "ok"
	switch {
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = &FetchTimeoutError{Target: target, Timeout: timeout}
		outcome = "timeout"
	case err != nil:
		var ff *FetchFailedError
		if !errors.As(err, &ff) {
			err = &FetchFailedError{Target: target, Err: err}
		}
		outcome = "error"
	}
	s.metrics.ObserveHistogram(metrics.UpstreamDuration, s.clock().Sub(start).Seconds(),
		metrics.Labels{"provider": req.Provider, "mode": f.Name(), "status": outcome})

	ev := s.logger.Debug()
	if err != nil {
		ev = s.logger.Warn().Err(err)
	}
	ev.Str("mode", f.Name()).Str("target", target).Str("outcome", outcome).Msg("UPSTREAM")
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveHistogram(metrics.UpstreamBytes, float64(len(up.Body)), metrics.Labels{"provider": req.Provider})
	up.URL = firstNonEmpty(up.URL, target)
	return up, nil
}

func (s *Server) reportRemovals(res *sanitize.Result) {
	branch := string(res.Branch)
	for kind, n := range map[string]int{
		"element":     res.Report.RemovedElements,
		"css_rule":    res.Report.StrippedCSSRules,
		"script":      res.Report.RemovedScripts,
		"handler":     res.Report.StrippedHandlers,
		"url_rewrite": res.Report.RewrittenURLs,
	} {
		if n > 0 {
			s.metrics.IncCounter(metrics.SanitizeRemovedTotal, float64(n), metrics.Labels{"branch": branch, "kind": kind})
		}
	}
}

// reject answers validation failures with their 400 body.
func (s *Server) reject(w http.ResponseWriter, req ProxyRequest, err error) {
	body := map[string]any{"error": err.Error()}
	reason := "invalid"
	var up *UnsupportedProviderError
	var mp *MissingParameterError
	switch {
	case errors.As(err, &up):
		body["supportedProviders"] = up.Supported
		reason = "unsupported_provider"
	case errors.As(err, &mp):
		reason = "missing_id"
	}
	s.metrics.IncCounter(metrics.RejectedTotal, 1, metrics.Labels{"reason": reason})
	s.logger.Debug().Str("provider", req.Provider).Str("reason", reason).Msg("rejected")
	writeJSON(w, statusOf(err), body)
}

// finish writes the audit row after the response. It outlives client
// cancellation but is bounded by auditTimeout.
func (s *Server) finish(ctx context.Context, rec audit.Record, start time.Time) {
	rec.DurationMS = s.clock().Sub(start).Milliseconds()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := s.audit.Write(ctx, rec); err != nil {
		s.logger.Warn().Err(err).Msg("audit write failed")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "Method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"timestamp": s.clock().UTC().Format(healthTimeFormat),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":              "Not found",
		"availableEndpoints": Endpoints,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
