package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// chromeHeaderOrder is the order Chrome sends these headers in.
var chromeHeaderOrder = []string{
	"accept",
	"accept-language",
	"accept-encoding",
	"referer",
	"cookie",
	"user-agent",
}

// tlsFetcher presents a Chrome TLS fingerprint to the embed host.
type tlsFetcher struct {
	client  tls_client.HttpClient
	maxBody int64
}

// NewTLSFetcher builds a tls-client backed fetcher. timeout is the client
// ceiling; the per-request deadline still comes from ctx. The client has no
// cookie jar, so cookies set by one upstream response never reach a later
// fetch.
func NewTLSFetcher(timeout time.Duration, maxBody int64) (Fetcher, error) {
	secs := int(timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	opts := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(secs),
		tls_client.WithClientProfile(profiles.Chrome_131),
	}
	client, err := tls_client.NewHttpClient(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("tls-client init: %w", err)
	}
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &tlsFetcher{client: client, maxBody: maxBody}, nil
}

func (f *tlsFetcher) Name() string { return "tls" }

func (f *tlsFetcher) Fetch(ctx context.Context, target string, hdr http.Header) (*Upstream, error) {
	req, err := fhttp.NewRequestWithContext(ctx, fhttp.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchFailedError{Target: target, Err: err}
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header[fhttp.HeaderOrderKey] = chromeHeaderOrder

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

	header := http.Header{}
	for k, vs := range resp.Header {
		if strings.HasPrefix(k, ":") || k == fhttp.HeaderOrderKey {
			continue
		}
		header[k] = append([]string(nil), vs...)
	}
	final := target
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return &Upstream{URL: final, Status: resp.StatusCode, Header: header, Body: body}, nil
}
