// Command sanitize runs the embed pipeline over one page and prints the
// result. The report goes to stderr so stdout can be redirected to a file.
//
//	sanitize https://vidsrc.to/embed/movie/550 > out.html
//	sanitize -base https://vidsrc.to/embed/movie/550 saved.html
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"embedproxy/internal/config"
	"embedproxy/internal/logging"
	"embedproxy/internal/proxy"
	"embedproxy/sanitize"
)

func main() {
	baseFlag := flag.String("base", "", "base URL for a local file (root-relative links resolve against it)")
	modeFlag := flag.String("mode", config.ModeHTTP, "fetch mode for URLs: http, tls or browser")
	timeoutFlag := flag.Duration("timeout", 10*time.Second, "fetch timeout")
	flag.Parse()

	logger := logging.Setup("info", "console", os.Stderr)
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: sanitize [-base url] [-mode http|tls|browser] <url|file>")
		os.Exit(2)
	}
	if err := run(logger, flag.Arg(0), *baseFlag, *modeFlag, *timeoutFlag); err != nil {
		logger.Error().Err(err).Msg("sanitize failed")
		os.Exit(1)
	}
}

func run(logger zerolog.Logger, arg, base, mode string, timeout time.Duration) error {
	var body []byte
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		def := config.Default()
		hdr := http.Header{}
		hdr.Set("User-Agent", def.Upstream.UserAgent)
		hdr.Set("Accept", def.Upstream.Accept)
		hdr.Set("Accept-Language", def.Upstream.AcceptLanguage)
		hdr.Set("Referer", def.Upstream.Referer)

		var f proxy.Fetcher
		switch mode {
		case config.ModeTLS:
			tf, err := proxy.NewTLSFetcher(timeout, def.Upstream.MaxBodyBytes)
			if err != nil {
				return fmt.Errorf("tls client: %w", err)
			}
			f = tf
		case config.ModeBrowser:
			bf := proxy.NewBrowserFetcher(logger, def.Upstream.MaxBodyBytes)
			defer bf.Close()
			f = bf
		default:
			f = proxy.NewHTTPFetcher(def.Upstream.MaxBodyBytes)
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		logger.Info().Str("url", arg).Str("mode", f.Name()).Msg("fetch")
		up, err := f.Fetch(ctx, arg, hdr)
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		body, base = up.Body, up.URL
	} else {
		data, err := os.ReadFile(arg)
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		body = data
	}

	var baseURL *url.URL
	if base != "" {
		u, err := url.Parse(base)
		if err != nil {
			return fmt.Errorf("bad base url %q: %w", base, err)
		}
		baseURL = u
	}
	res, err := sanitize.Sanitize(body, baseURL)
	if err != nil {
		return err
	}

	fmt.Println(res.HTML)
	logger.Info().
		Str("branch", string(res.Branch)).
		Str("csp", res.CSP).
		Int("in_bytes", len(body)).
		Int("out_bytes", len(res.HTML)).
		Int("removed_elements", res.Report.RemovedElements).
		Int("stripped_css_rules", res.Report.StrippedCSSRules).
		Int("removed_scripts", res.Report.RemovedScripts).
		Int("stripped_handlers", res.Report.StrippedHandlers).
		Int("rewritten_urls", res.Report.RewrittenURLs).
		Msg("done")
	return nil
}
