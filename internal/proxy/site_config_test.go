package proxy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestSiteConfigFind(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("vidsrc.to.json", `{"mode":" TLS ","headers":{"Referer":"https://vidsrc.to/"}}`)
	write("broken.example.json", `{not json`)

	store := newSiteConfigStore(dir, zerolog.Nop())

	cfg := store.Find("https://player.vidsrc.to:8443/embed/movie/1")
	if cfg == nil || cfg.Mode != "tls" || cfg.Headers["Referer"] != "https://vidsrc.to/" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if store.Find("https://vidsrc.me/embed/movie") != nil {
		t.Fatal("unexpected config for vidsrc.me")
	}
	if store.Find("https://broken.example/") != nil {
		t.Fatal("malformed config was loaded")
	}
	if store.Find("::bad") != nil {
		t.Fatal("unparseable target matched")
	}

	// cached: removing the file does not change the answer
	if err := os.Remove(filepath.Join(dir, "vidsrc.to.json")); err != nil {
		t.Fatal(err)
	}
	if store.Find("https://player.vidsrc.to/x") == nil {
		t.Fatal("cache miss after file removal")
	}
}

func TestSiteConfigDisabled(t *testing.T) {
	t.Parallel()
	if newSiteConfigStore("", zerolog.Nop()).Find("https://vidsrc.to/") != nil {
		t.Fatal("empty dir must disable lookups")
	}
	var nilStore *siteConfigStore
	if nilStore.Find("https://vidsrc.to/") != nil {
		t.Fatal("nil store must return nil")
	}
}

func TestSiteConfigReset(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := newSiteConfigStore(dir, zerolog.Nop())
	if store.Find("https://vidsrc.to/") != nil {
		t.Fatal("unexpected config")
	}
	if err := os.WriteFile(filepath.Join(dir, "vidsrc.to.json"), []byte(`{"mode":"browser"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if store.Find("https://vidsrc.to/") != nil {
		t.Fatal("negative lookup should stay cached until reset")
	}
	store.reset()
	if cfg := store.Find("https://vidsrc.to/"); cfg == nil || cfg.Mode != "browser" {
		t.Fatalf("cfg after reset = %+v", cfg)
	}
}
