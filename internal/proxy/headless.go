package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// BrowserFetcher loads the embed page in headless Chrome and returns the
// DOM after load. The allocator (and the Chrome process) starts on first use.
type BrowserFetcher struct {
	logger  zerolog.Logger
	maxBody int64

	mu        sync.Mutex
	allocator context.Context
	cancel    context.CancelFunc
	closed    bool
}

func NewBrowserFetcher(logger zerolog.Logger, maxBody int64) *BrowserFetcher {
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &BrowserFetcher{logger: logger, maxBody: maxBody}
}

func (b *BrowserFetcher) Name() string { return "browser" }

var errBrowserClosed = errors.New("browser fetcher closed")

// allocatorContext starts Chrome on first use and returns the shared
// allocator.
func (b *BrowserFetcher) allocatorContext() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errBrowserClosed
	}
	if b.allocator == nil {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("mute-audio", true),
			chromedp.Flag("no-first-run", true),
			chromedp.Flag("no-default-browser-check", true),
			chromedp.Flag("disable-background-networking", true),
			chromedp.Flag("disable-popup-blocking", false),
			chromedp.Flag("disable-sync", true),
			chromedp.Flag("disable-translate", true),
			chromedp.Flag("disable-extensions", true),
		)
		b.allocator, b.cancel = chromedp.NewExecAllocator(context.Background(), opts...)
		b.logger.Info().Msg("headless browser allocator started")
	}
	return b.allocator, nil
}

// Close stops Chrome if it was ever started. Later fetches fail.
func (b *BrowserFetcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

func (b *BrowserFetcher) Fetch(ctx context.Context, target string, hdr http.Header) (*Upstream, error) {
	if strings.TrimSpace(target) == "" {
		return nil, &FetchFailedError{Target: target, Err: fmt.Errorf("empty target url")}
	}
	allocator, err := b.allocatorContext()
	if err != nil {
		return nil, &FetchFailedError{Target: target, Err: err}
	}

	taskCtx, cancelTab := chromedp.NewContext(allocator)
	defer cancelTab()
	// bind the tab to the caller's deadline
	taskCtx, cancel := context.WithCancel(taskCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var (
		mu       sync.Mutex
		mainID   network.RequestID
		mainResp *network.Response
	)
	chromedp.ListenTarget(taskCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			if e.Type == network.ResourceTypeDocument {
				mu.Lock()
				if mainID == "" {
					mainID = e.RequestID
				}
				mu.Unlock()
			}
		case *network.EventResponseReceived:
			mu.Lock()
			if e.RequestID == mainID && e.Type == network.ResourceTypeDocument {
				mainResp = e.Response
			}
			mu.Unlock()
		}
	})

	requestHeaders := cloneHeader(hdr)
	// Chrome negotiates its own encodings
	requestHeaders.Del("Accept-Encoding")

	actions := []chromedp.Action{network.Enable()}
	if ua := requestHeaders.Get("User-Agent"); ua != "" {
		actions = append(actions, emulation.SetUserAgentOverride(ua))
		requestHeaders.Del("User-Agent")
	}
	if extra := extraHeaders(requestHeaders); len(extra) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(extra))
	}

	var finalURL, htmlContent string
	actions = append(actions,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &htmlContent, chromedp.ByQuery),
	)

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &FetchFailedError{Target: target, Err: err}
	}

	mu.Lock()
	resp := mainResp
	mu.Unlock()

	status := http.StatusOK
	header := http.Header{}
	if resp != nil {
		status = int(resp.Status)
		for k, v := range resp.Headers {
			header.Add(k, fmt.Sprint(v))
		}
		if resp.MimeType != "" && header.Get("Content-Type") == "" {
			header.Set("Content-Type", resp.MimeType)
		}
	}
	if status < 200 || status > 299 {
		st := ""
		if resp != nil {
			st = resp.StatusText
		}
		return nil, &FetchFailedError{Target: target, StatusCode: status, Status: strings.TrimSpace(fmt.Sprintf("%d %s", status, st))}
	}
	if int64(len(htmlContent)) > b.maxBody {
		return nil, &FetchFailedError{Target: target, StatusCode: status, Err: errBodyTooLarge}
	}
	if finalURL == "" {
		finalURL = target
	}
	return &Upstream{URL: finalURL, Status: status, Header: header, Body: []byte(htmlContent)}, nil
}

func extraHeaders(h http.Header) network.Headers {
	extra := network.Headers{}
	for k, vs := range h {
		name := http.CanonicalHeaderKey(k)
		if name == "Content-Length" || len(vs) == 0 {
			continue
		}
		extra[name] = strings.Join(vs, ", ")
	}
	return extra
}
