package proxy

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Upstream is a fetched embed page.
type Upstream struct {
	URL    string
	Status int
	Header http.Header
	Body   []byte
}

// Fetcher retrieves one page. Implementations honour ctx cancellation and
// return *FetchFailedError for non-2xx answers.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, target string, hdr http.Header) (*Upstream, error)
}

// UpstreamOptions are the outbound defaults shared by every fetch mode.
type UpstreamOptions struct {
	Timeout        time.Duration
	MaxBodyBytes   int64
	UserAgent      string
	Accept         string
	AcceptLanguage string
	Referer        string
}

const (
	defaultUpstreamTimeout = 10 * time.Second
	defaultMaxBodyBytes    = 8 << 20
)

func (o UpstreamOptions) withDefaults() UpstreamOptions {
	if o.Timeout <= 0 {
		o.Timeout = defaultUpstreamTimeout
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBodyBytes
	}
	return o
}

// headers returns the browser-like request headers. Empty fields are
// skipped.
func (o UpstreamOptions) headers() http.Header {
	hdr := http.Header{}
	setIf := func(k, v string) {
		if v != "" {
			hdr.Set(k, v)
		}
	}
	setIf("User-Agent", o.UserAgent)
	setIf("Accept", o.Accept)
	setIf("Accept-Language", o.AcceptLanguage)
	setIf("Referer", o.Referer)
	// avoid brotli, only encodings decodeBody understands
	hdr.Set("Accept-Encoding", "gzip, deflate")
	return hdr
}

type httpFetcher struct {
	client  *http.Client
	maxBody int64
}

// NewHTTPFetcher returns the default net/http fetcher. Deadlines come from
// the request context.
func NewHTTPFetcher(maxBody int64) Fetcher {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &httpFetcher{client: &http.Client{Transport: transport}, maxBody: maxBody}
}

func (f *httpFetcher) Name() string { return "http" }

func (f *httpFetcher) Fetch(ctx context.Context, target string, hdr http.Header) (*Upstream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchFailedError{Target: target, Err: err}
	}
	copyHeader(req.Header, hdr)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchFailedError{Target: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &FetchFailedError{Target: target, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	body, err := readBody(resp.Body, resp.Header.Get("Content-Encoding"), f.maxBody)
	if err != nil {
		return nil, &FetchFailedError{Target: target, StatusCode: resp.StatusCode, Status: resp.Status, Err: err}
	}
	return &Upstream{
		URL:    resp.Request.URL.String(),
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}

// readBody reads at most max bytes and decodes Content-Encoding. Both the
// wire bytes and the decoded body are capped.
func readBody(r io.Reader, encoding string, max int64) ([]byte, error) {
	raw, err := readCapped(r, max)
	if err != nil {
		return nil, err
	}
	return decodeBody(raw, encoding, max)
}

func readCapped(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeBody undoes gzip or deflate. Transports that already inflated the
// body may leave the header in place, so a payload that does not decode is
// returned as is.
func decodeBody(raw []byte, encoding string, max int64) ([]byte, error) {
	var rc io.ReadCloser
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		gr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return raw, nil
		}
		rc = gr
	case "deflate":
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			rc = zr
		} else {
			rc = flate.NewReader(bytes.NewReader(raw))
		}
	default:
		return raw, nil
	}
	defer rc.Close()
	out, err := readCapped(rc, max)
	if errors.Is(err, errBodyTooLarge) {
		return nil, err
	}
	if err != nil {
		return raw, nil
	}
	return out, nil
}
