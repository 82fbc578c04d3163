package proxy

import (
	"errors"
	"net/url"
	"testing"
)

func TestResolveTargets(t *testing.T) {
	t.Parallel()
	reg := DefaultRegistry("https://vidsrc.to", "https://vidsrc.me/")
	cases := []struct {
		name     string
		provider string
		query    string
		want     string
	}{
		{"vidsrc-to movie", "vidsrc-to", "id=550&type=movie", "https://vidsrc.to/embed/movie/550"},
		{"vidsrc default type", "vidsrc", "id=550", "https://vidsrc.to/embed/movie/550"},
		{"empty type", "vidsrc", "id=550&type=", "https://vidsrc.to/embed/movie/550"},
		{"tv", "vidsrc-to", "id=1399&type=tv", "https://vidsrc.to/embed/tv/1399"},
		{"me uses tmdb", "vidsrc-me", "id=1&tmdb=603", "https://vidsrc.me/embed/movie?tmdb=603"},
		{"me falls back to id", "vidsrc-me", "id=603&type=tv", "https://vidsrc.me/embed/tv?tmdb=603"},
		{"path escaped", "vidsrc-to", "id=a%2Fb", "https://vidsrc.to/embed/movie/a%2Fb"},
		{"query escaped", "vidsrc-me", "id=1%262", "https://vidsrc.me/embed/movie?tmdb=1%262"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			q, err := url.ParseQuery(tc.query)
			if err != nil {
				t.Fatal(err)
			}
			_, got, err := reg.Resolve(tc.provider, q)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got != tc.want {
				t.Fatalf("target = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveMissingIDBeforeProvider(t *testing.T) {
	t.Parallel()
	reg := DefaultRegistry("https://vidsrc.to", "https://vidsrc.me")
	for _, p := range []string{"vidsrc", "vidsrc-to", "vidsrc-me", "nope", ""} {
		for _, q := range []string{"", "id=", "type=tv"} {
			vals, _ := url.ParseQuery(q)
			_, _, err := reg.Resolve(p, vals)
			var mp *MissingParameterError
			if !errors.As(err, &mp) {
				t.Fatalf("Resolve(%q, %q) err = %v, want MissingParameterError", p, q, err)
			}
		}
	}
}

func TestResolveUnsupported(t *testing.T) {
	t.Parallel()
	reg := DefaultRegistry("https://vidsrc.to", "https://vidsrc.me")
	_, _, err := reg.Resolve("youtube", url.Values{"id": {"1"}})
	var up *UnsupportedProviderError
	if !errors.As(err, &up) {
		t.Fatalf("err = %v", err)
	}
	want := []string{"vidsrc", "vidsrc-to", "vidsrc-me"}
	if len(up.Supported) != len(want) {
		t.Fatalf("supported = %v", up.Supported)
	}
	for i := range want {
		if up.Supported[i] != want[i] {
			t.Fatalf("supported = %v, want %v", up.Supported, want)
		}
	}
}

func TestResolveIsCaseSensitive(t *testing.T) {
	t.Parallel()
	reg := DefaultRegistry("https://vidsrc.to", "https://vidsrc.me")
	for _, p := range []string{"VIDSRC", "Vidsrc-To", "VIDSRC-ME", " vidsrc", "vidsrc-to "} {
		_, _, err := reg.Resolve(p, url.Values{"id": {"550"}})
		var up *UnsupportedProviderError
		if !errors.As(err, &up) {
			t.Fatalf("Resolve(%q) err = %v, want UnsupportedProviderError", p, err)
		}
		if _, ok := reg.Get(p); ok {
			t.Fatalf("Get(%q) matched", p)
		}
	}
}

func TestNewRegistryRejects(t *testing.T) {
	t.Parallel()
	if _, err := NewRegistry(pathEmbed{name: "a"}, pathEmbed{name: "A"}); err == nil {
		t.Fatal("duplicate names accepted")
	}
	if _, err := NewRegistry(pathEmbed{name: " "}); err == nil {
		t.Fatal("empty name accepted")
	}
	if _, err := NewRegistry(Provider(nil)); err == nil {
		t.Fatal("nil provider accepted")
	}
}
