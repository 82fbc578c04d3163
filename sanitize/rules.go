package sanitize

import (
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// FrameID is the id of the container that wraps the real video player on
// embed pages. Its presence selects the frame-extraction branch.
const FrameID = "player_iframe"

// Sentinel z-index values used by invisible click-interceptor overlays.
const (
	zIndexMax     = "2147483647"
	zIndexMillion = "999999"
)

// Rule is a named element matcher. Names only show up in debug reports.
type Rule struct {
	Name  string
	Match cascadia.Selector
}

// RuleSet is the static denylist. It is compiled once and never mutated;
// every request reads the same instance.
type RuleSet struct {
	frame          cascadia.Selector
	denylist       []Rule
	overlays       []Rule
	servers        cascadia.Selector
	namedIDs       cascadia.Selector
	mctitle        cascadia.Selector
	viewport       cascadia.Selector
	jsAnchors      cascadia.Selector
	styles         cascadia.Selector
	handlers       cascadia.Selector
	urlBearing     cascadia.Selector
	namedScripts   cascadia.Selector
	keywordScripts cascadia.Selector

	// AdIDs are element ids removed on the server and swept again by the
	// injected client script.
	AdIDs []string
	// NamedScripts are src substrings of analytics/ad loaders.
	NamedScripts []string
	// DeniedCSS are selectors whose rules are dropped from <style> blocks.
	DeniedCSS []string
	// ScriptKeywords mark inline scripts for removal.
	ScriptKeywords []string
	// ScriptHosts mark external scripts for removal by src substring.
	ScriptHosts []string
	// EventAttrs are inline handler attributes stripped from every element.
	EventAttrs []string

	cssFallback []*regexp.Regexp

	frameHead string
	frameTail string
	pageHead  string
}

var defaultRules = newRuleSet()

// Default returns the process-wide denylist.
func Default() *RuleSet { return defaultRules }

func newRuleSet() *RuleSet {
	rs := &RuleSet{
		AdIDs: []string{"AdWidgetContainer", "ad720", "onexbet"},
		NamedScripts: []string{
			"histats.com",
			"f59d610a61063c7ef3ccdc1fd40d2ae6.js",
		},
		DeniedCSS: []string{
			".mctitle a",
			"#AdWidgetContainer",
			"#ad720",
			"#ad720 .ad_container",
			"#ad720 .ad_container img",
			"#ad720 .ad_container #close",
			"#ad720 .ad_container #close:hover",
			"#onexbet",
			"#onexbet img",
		},
		ScriptKeywords: []string{
			"debugger",
			"aclib.runPop",
			"aclib.runInPagePush",
			"popunder",
			"popup",
			"advertisement",
			"adsystem",
			"googletag",
			"pbjs",
			"window.open",
			"dontfoid",
			"znid",
		},
		ScriptHosts: []string{
			"popads",
			"popcash",
			"propellerads",
			"histats.com",
			"f59d610a61063c7ef3ccdc1fd40d2ae6.js",
		},
		EventAttrs: []string{"onclick", "onmousedown", "onmouseup", "onfocus", "onblur", "oncontextmenu"},
	}

	rs.cssFallback = cssFallbackPatterns(rs.DeniedCSS)
	rs.frame = cascadia.MustCompile("#" + FrameID)
	rs.servers = cascadia.MustCompile(`div.servers#hidden, div[class="servers"][id="hidden"]`)
	rs.mctitle = cascadia.MustCompile(".mctitle a")
	rs.viewport = cascadia.MustCompile(`meta[name="viewport"]`)
	rs.jsAnchors = cascadia.Selector(func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "a" {
			return false
		}
		href, ok := attr(n, "href")
		return ok && strings.HasPrefix(strings.ToLower(strings.TrimSpace(href)), "javascript:")
	})

	rs.styles = cascadia.MustCompile("style")
	rs.urlBearing = cascadia.MustCompile("[href], [src]")
	handlers := make([]string, 0, len(rs.EventAttrs))
	for _, a := range rs.EventAttrs {
		handlers = append(handlers, "["+a+"]")
	}
	rs.handlers = cascadia.MustCompile(strings.Join(handlers, ", "))
	rs.namedScripts = cascadia.Selector(func(n *html.Node) bool {
		return isScript(n) && srcContainsAny(n, rs.NamedScripts)
	})
	rs.keywordScripts = cascadia.Selector(rs.isSuspiciousScript)

	ids := make([]string, 0, len(rs.AdIDs))
	for _, id := range rs.AdIDs {
		ids = append(ids, "#"+id)
	}
	rs.namedIDs = cascadia.MustCompile(strings.Join(ids, ", "))

	rs.denylist = []Rule{
		selectorRule("ad-scripts", scriptSrcSelectors(
			"ads", "adsystem", "doubleclick", "googlesyndication", "googletagmanager",
			"amazon-adsystem", "popads", "popcash", "propellerads", "adnxs", "adskeeper",
			"mgid", "outbrain", "taboola", "histats.com", "f59d610a61063c7ef3ccdc1fd40d2ae6.js",
		)),
		selectorRule("ad-iframes", `iframe[src*="ads"], iframe[src*="googletagmanager"], iframe[src*="doubleclick"]`),
		selectorRule("ad-blocks", `div[class*="ad"], div[id*="ad"], div[class*="banner"], div[id*="banner"]`),
		selectorRule("ad-classes", `.advertisement, .ad-container, .popup, .modal, .overlay, [data-ad-slot]`),
		selectorRule("sponsor-links", `a[href*="sponsor"], a[href*="promo"], a[href*="affiliate"]`),
		selectorRule("overlay-markers", `div[id*="dontfoid"], div[znid]`),
		selectorRule("fixed-overlays", `div[style*="position: fixed"][style*="z-index: 2147483647"], `+
			`div[style*="position: fixed"][style*="background-color: transparent"], `+
			`div[style*="position: fixed"][style*="top: 0"][style*="left: 0"]`),
		selectorRule("zindex-sentinels", `div[style*="z-index: 2147483647"], div[style*="z-index: 999999"], div[style*="z-index: 9999999"]`),
		selectorRule("click-hijack", `div[onclick*="open"], div[onclick*="popup"], a[onclick*="open"], a[onclick*="popup"], `+
			`[onmousedown*="open"], [onmouseup*="open"], [onclick*="aclib"], [onclick*="popunder"]`),
	}

	rs.overlays = []Rule{
		{Name: "transparent-fixed-overlay", Match: cascadia.Selector(isTransparentOverlay)},
		{Name: "high-zindex", Match: cascadia.Selector(hasSentinelZIndex)},
	}

	rs.frameHead, rs.frameTail = buildFrameShell(rs)
	rs.pageHead = buildPageInjection(rs)
	return rs
}

func selectorRule(name, sel string) Rule {
	return Rule{Name: name, Match: cascadia.MustCompile(sel)}
}

func scriptSrcSelectors(hosts ...string) string {
	parts := make([]string, 0, len(hosts))
	for _, h := range hosts {
		parts = append(parts, `script[src*="`+h+`"]`)
	}
	return strings.Join(parts, ", ")
}

// isTransparentOverlay is the signature of an invisible full-screen click
// interceptor: fixed, topmost and see-through.
func isTransparentOverlay(n *html.Node) bool {
	if n.Type != html.ElementNode || n.Data != "div" {
		return false
	}
	style, ok := attr(n, "style")
	if !ok {
		return false
	}
	return strings.Contains(style, "position: fixed") &&
		strings.Contains(style, "z-index: "+zIndexMax) &&
		strings.Contains(style, "background-color: transparent")
}

func hasSentinelZIndex(n *html.Node) bool {
	if n.Type != html.ElementNode || n.Data != "div" {
		return false
	}
	style, ok := attr(n, "style")
	if !ok || !strings.Contains(style, "z-index:") {
		return false
	}
	return strings.Contains(style, zIndexMax) || strings.Contains(style, zIndexMillion)
}

// IsDenied reports whether n would be removed by the static denylist or the
// overlay heuristics of the full-page branch.
func (rs *RuleSet) IsDenied(n *html.Node) bool {
	for _, r := range rs.denylist {
		if r.Match.Match(n) {
			return true
		}
	}
	for _, r := range rs.overlays {
		if r.Match.Match(n) {
			return true
		}
	}
	return false
}

func isScript(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "script"
}

func srcContainsAny(n *html.Node, needles []string) bool {
	src, ok := attr(n, "src")
	return ok && src != "" && containsAny(src, needles)
}

// isSuspiciousScript flags scripts by inline keyword or by ad host in src.
func (rs *RuleSet) isSuspiciousScript(n *html.Node) bool {
	if !isScript(n) {
		return false
	}
	if srcContainsAny(n, rs.ScriptHosts) {
		return true
	}
	return containsAny(textContent(n), rs.ScriptKeywords)
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
