package sanitize

import (
	"strings"
	"testing"
)

func TestStripStylesheet(t *testing.T) {
	t.Parallel()
	rs := Default()
	in := `.mctitle a { font-size: 30px; }
.player { width: 100%; }
#ad720, .keep { color: red; }
body  #onexbet   img { display: block; }
@media (max-width: 600px) { #AdWidgetContainer { display: block; } .small { width: 10px; } }`

	out, n := rs.stripStylesheet(in)
	if n != 4 {
		t.Fatalf("removed = %d, want 4\n%s", n, out)
	}
	for _, gone := range []string{".mctitle", "#ad720", "#onexbet", "#AdWidgetContainer"} {
		if strings.Contains(out, gone) {
			t.Errorf("%q survived:\n%s", gone, out)
		}
	}
	for _, kept := range []string{".player", ".keep", ".small", "@media"} {
		if !strings.Contains(out, kept) {
			t.Errorf("%q dropped:\n%s", kept, out)
		}
	}
}

func TestStripStylesheetUntouched(t *testing.T) {
	t.Parallel()
	in := ".player{width:100%}\n\n  .title { color: #fff }"
	out, n := Default().stripStylesheet(in)
	if n != 0 || out != in {
		t.Fatalf("clean sheet changed: n=%d out=%q", n, out)
	}
}

func TestStripStylesheetFallback(t *testing.T) {
	t.Parallel()
	in := "#ad720   .ad_container { position: fixed; }\n.player { width: 100%; }\n#onexbet{display:block}"
	out, n := Default().stripStylesheetFallback(in)
	if n != 2 {
		t.Fatalf("removed = %d, want 2: %q", n, out)
	}
	if strings.Contains(out, "#ad720") || strings.Contains(out, "#onexbet") || !strings.Contains(out, ".player") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestDropFontSize(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		in      string
		want    string
		changed bool
	}{
		{"leading", "font-size: 40px; color: red;", "color: red;", true},
		{"unterminated", "color: red; font-size: 2em", "color: red;", true},
		{"only", "font-size: 12px", "", true},
		{"important", "FONT-SIZE: 9px !important; margin: 0;", "margin: 0;", true},
		{"none", "color: red", "color: red", false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, changed := dropFontSize(tc.in)
			if got != tc.want || changed != tc.changed {
				t.Fatalf("dropFontSize(%q) = (%q,%v), want (%q,%v)", tc.in, got, changed, tc.want, tc.changed)
			}
		})
	}
}
