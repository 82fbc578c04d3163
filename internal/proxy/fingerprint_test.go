package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestTLSFetcherKeepsNoCookies(t *testing.T) {
	t.Parallel()
	var (
		mu   sync.Mutex
		seen []string
	)
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Cookie"))
		mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "sess", Value: "first-client", Path: "/"})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer up.Close()

	f, err := NewTLSFetcher(5*time.Second, 1<<20)
	if err != nil {
		t.Fatalf("NewTLSFetcher: %v", err)
	}
	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		got, err := f.Fetch(ctx, up.URL+"/embed/movie/550", http.Header{"User-Agent": {"ua"}})
		cancel()
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if !strings.Contains(string(got.Body), "ok") {
			t.Fatalf("fetch %d body = %q", i, got.Body)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("upstream hits = %d, want 2", len(seen))
	}
	for i, c := range seen {
		if c != "" {
			t.Fatalf("request %d carried Cookie %q", i, c)
		}
	}
}

func TestTLSFetcherNon2xx(t *testing.T) {
	t.Parallel()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("gone ", 2000), http.StatusNotFound)
	}))
	defer up.Close()

	f, err := NewTLSFetcher(5*time.Second, 1<<20)
	if err != nil {
		t.Fatalf("NewTLSFetcher: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = f.Fetch(ctx, up.URL, nil)
	var ff *FetchFailedError
	if !errors.As(err, &ff) {
		t.Fatalf("err = %v, want FetchFailedError", err)
	}
	if ff.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", ff.StatusCode)
	}
}
