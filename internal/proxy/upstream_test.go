package proxy

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"strings"
	"testing"
)

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zlibbed(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, _ = zw.Write([]byte(s))
	_ = zw.Close()
	return buf.Bytes()
}

func TestReadBody(t *testing.T) {
	t.Parallel()
	const page = "<html><body>ok</body></html>"
	cases := []struct {
		name     string
		raw      []byte
		encoding string
		max      int64
		want     string
		err      error
	}{
		{"identity", []byte(page), "", 1024, page, nil},
		{"gzip", gzipped(t, page), "gzip", 1024, page, nil},
		{"deflate", zlibbed(t, page), "deflate", 1024, page, nil},
		{"already inflated", []byte(page), "gzip", 1024, page, nil},
		{"wire too large", []byte(page), "", 8, "", errBodyTooLarge},
		{"inflated too large", gzipped(t, strings.Repeat("x", 4096)), "gzip", 1024, "", errBodyTooLarge},
		{"exact limit", []byte(page), "", int64(len(page)), page, nil},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := readBody(bytes.NewReader(tc.raw), tc.encoding, tc.max)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("err = %v, want %v", err, tc.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("readBody: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("body = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUpstreamOptionsHeaders(t *testing.T) {
	t.Parallel()
	hdr := UpstreamOptions{UserAgent: "ua", Referer: "https://google.com"}.headers()
	if hdr.Get("User-Agent") != "ua" || hdr.Get("Referer") != "https://google.com" {
		t.Fatalf("headers = %v", hdr)
	}
	if _, ok := hdr["Accept-Language"]; ok {
		t.Fatal("empty Accept-Language was set")
	}
	if hdr.Get("Accept-Encoding") != "gzip, deflate" {
		t.Fatalf("accept-encoding = %q", hdr.Get("Accept-Encoding"))
	}
}

func TestUpstreamOptionsDefaults(t *testing.T) {
	t.Parallel()
	o := UpstreamOptions{}.withDefaults()
	if o.Timeout != defaultUpstreamTimeout || o.MaxBodyBytes != defaultMaxBodyBytes {
		t.Fatalf("defaults = %+v", o)
	}
}

func TestStatusOf(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want int
	}{
		{&MissingParameterError{Name: "id"}, 400},
		{&UnsupportedProviderError{Provider: "x"}, 400},
		{&FetchTimeoutError{Target: "u"}, 500},
		{&FetchFailedError{Target: "u", StatusCode: 404}, 500},
		{errors.New("plain"), 500},
	}
	for _, tc := range cases {
		if got := statusOf(tc.err); got != tc.want {
			t.Fatalf("statusOf(%T) = %d, want %d", tc.err, got, tc.want)
		}
	}
	if !strings.Contains((&FetchTimeoutError{Target: "u"}).Error(), "timeout") {
		t.Fatal("timeout error must mention timeout")
	}
}
