package sanitize

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var urlAttrs = []string{"href", "src"}

// isRootRelative reports "/x" but not "//x" (protocol-relative).
func isRootRelative(ref string) bool {
	return strings.HasPrefix(ref, "/") && !strings.HasPrefix(ref, "//")
}

// absolutize resolves a root-relative reference against base. Anything else
// is returned unchanged with ok=false.
func absolutize(base *url.URL, ref string) (string, bool) {
	if base == nil || !isRootRelative(ref) {
		return ref, false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref, false
	}
	return base.ResolveReference(u).String(), true
}

// rewriteURLs makes root-relative href/src values absolute so resources
// still resolve once the document is served from another origin.
func (rs *RuleSet) rewriteURLs(d *Document, base *url.URL) int {
	if base == nil {
		return 0
	}
	n := 0
	d.Find(rs.urlBearing).Each(func(_ int, s *goquery.Selection) {
		for _, a := range urlAttrs {
			v, ok := s.Attr(a)
			if !ok {
				continue
			}
			if abs, changed := absolutize(base, v); changed {
				s.SetAttr(a, abs)
				n++
			}
		}
	})
	return n
}
