package sanitize

import (
	"encoding/json"
	"strings"
)

const viewportMeta = `<meta name="viewport" content="width=device-width, initial-scale=1.0">`

const hiddenDecls = `display: none !important;
        visibility: hidden !important;
        opacity: 0 !important;
        width: 0 !important;
        height: 0 !important;
        position: static !important;
        pointer-events: none !important;`

const frameStyle = `
      * {
        margin: 0;
        padding: 0;
        box-sizing: border-box;
      }
      body {
        background: #000;
        display: flex;
        align-items: center;
        justify-content: center;
        height: 100vh;
        font-family: Arial, sans-serif;
      }
      #{{FRAME_ID}} {
        width: 100%;
        height: 100%;
        max-width: 100%;
        max-height: 100%;
      }
      iframe[src*="ads"], iframe[src*="googletagmanager"], iframe[src*="doubleclick"] {
        display: none !important;
      }
      .mctitle a {
        font-size: inherit !important;
      }
      {{AD_ID_SELECTORS}} {
        {{HIDDEN}}
      }
      div.servers#hidden {
        display: none !important;
      }
      .ad_container {
        display: none !important;
      }
`

// sweepScript is shared by both branches. It defines sweep(), which removes
// the named ad ids, the hidden servers list, the named loader scripts and
// the forced .mctitle font size.
const sweepScript = `
      var adIds = {{AD_IDS}};
      var namedScripts = {{NAMED_SCRIPTS}};
      function sweep() {
        adIds.forEach(function (id) {
          var el = document.getElementById(id);
          if (el) { el.remove(); }
        });
        var servers = document.querySelector('div.servers#hidden');
        if (servers) { servers.remove(); }
        document.querySelectorAll('script[src]').forEach(function (s) {
          for (var i = 0; i < namedScripts.length; i++) {
            if (s.src.indexOf(namedScripts[i]) !== -1) { s.remove(); return; }
          }
        });
        document.querySelectorAll('.mctitle a').forEach(function (a) {
          a.style.fontSize = '';
        });
      }
`

const guardScript = `
      try {
        Object.defineProperty(window, 'debugger', {
          get: function () { return undefined; },
          set: function () {},
          configurable: false
        });
      } catch (e) {}
      console.debug = function () {};
      console.trace = function () {};
      var noop = function () { return null; };
      window.open = noop;
      window.alert = noop;
      window.confirm = noop;
      window.prompt = noop;
      window.eval = function () { return undefined; };
      window.aclib = {
        runPop: noop,
        runInPagePush: noop,
        runInterstitial: noop,
        runClickPop: noop
      };
`

const frameScript = `
    (function () {
{{GUARD}}
{{SWEEP}}
      setTimeout(function () {
        var loading = document.getElementById('loading');
        if (loading) { loading.style.display = 'none'; }
      }, 2000);
      sweep();
      setInterval(sweep, 1000);
      document.addEventListener('contextmenu', function (e) { e.preventDefault(); });
      document.addEventListener('keydown', function (e) {
        var k = e.key;
        if (k === 'F12' ||
            (e.ctrlKey && e.shiftKey && (k === 'I' || k === 'C' || k === 'J')) ||
            (e.ctrlKey && k === 'u')) {
          e.preventDefault();
        }
      });
    })();
`

const pageStyle = `
      .ad, .ads, .advertisement, .ad-container, .ad-banner,
      [class*="ad-"], [id*="ad-"], [class*="popup"], [class*="modal"],
      [class*="overlay"], [class*="banner"], .sponsor, .promo,
      div[id*="dontfoid"], div[znid] {
        display: none !important;
        visibility: hidden !important;
        opacity: 0 !important;
        width: 0 !important;
        height: 0 !important;
        pointer-events: none !important;
      }
      div[style*="z-index: 2147483647"],
      div[style*="z-index: 999999"],
      div[style*="z-index: 9999999"] {
        display: none !important;
        visibility: hidden !important;
        opacity: 0 !important;
      }
      .mctitle a {
        font-size: inherit !important;
      }
      {{AD_ID_SELECTORS}} {
        {{HIDDEN}}
      }
      div.servers#hidden {
        display: none !important;
      }
      .ad_container {
        display: none !important;
      }
      body {
        margin: 0;
        padding: 0;
        background: #000;
        overflow-x: hidden;
      }
      iframe {
        max-width: 100%;
        border: none;
        pointer-events: auto !important;
      }
      #the_frame {
        width: 100% !important;
        height: 100% !important;
        max-width: 100% !important;
        max-height: 100% !important;
      }
      *[style*="position: fixed"] {
        position: static !important;
      }
      * {
        pointer-events: auto !important;
      }
      div[style*="background-color: transparent"][style*="position: fixed"] {
        display: none !important;
      }
`

const pageScript = `
    (function () {
{{GUARD}}
      window.focus = noop;
      window.blur = noop;
      window.Function = function () { return function () {}; };
{{SWEEP}}
      sweep();
      function isAdTarget(el) {
        if (!el || el.nodeType !== 1) { return false; }
        var id = el.id || '';
        var cl = el.classList;
        return (cl && (cl.contains('ad') || cl.contains('popup'))) ||
          id.indexOf('ad') !== -1 ||
          id.indexOf('dontfoid') !== -1 ||
          el.hasAttribute('znid') ||
          adIds.indexOf(id) !== -1;
      }
      function block(e) {
        if (isAdTarget(e.target)) {
          e.stopPropagation();
          e.preventDefault();
        }
      }
      document.addEventListener('click', block, true);
      document.addEventListener('mousedown', block, true);
      function isInjected(node) {
        var id = node.id || '';
        var cl = node.classList;
        if (cl && (cl.contains('ad') || cl.contains('popup') || cl.contains('modal'))) { return true; }
        if (id.indexOf('dontfoid') !== -1 || node.hasAttribute('znid') || adIds.indexOf(id) !== -1) { return true; }
        if (cl && cl.contains('servers') && id === 'hidden') { return true; }
        var z = node.style && node.style.zIndex;
        if (z === '{{ZMAX}}' || z === '{{ZMILLION}}') { return true; }
        if (node.tagName === 'SCRIPT' && node.src) {
          for (var i = 0; i < namedScripts.length; i++) {
            if (node.src.indexOf(namedScripts[i]) !== -1) { return true; }
          }
        }
        return false;
      }
      var observer = new MutationObserver(function (mutations) {
        mutations.forEach(function (m) {
          m.addedNodes.forEach(function (node) {
            if (node.nodeType === 1 && isInjected(node)) { node.remove(); }
          });
        });
      });
      if (document.body) {
        observer.observe(document.body, { childList: true, subtree: true });
      } else {
        document.addEventListener('DOMContentLoaded', function () {
          observer.observe(document.body, { childList: true, subtree: true });
        });
      }
      setInterval(function () {
        document.querySelectorAll('div[id*="dontfoid"], div[znid]').forEach(function (el) { el.remove(); });
        sweep();
      }, 100);
    })();
`

func jsArray(items []string) string {
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func (rs *RuleSet) replacer() *strings.Replacer {
	ids := make([]string, 0, len(rs.AdIDs))
	for _, id := range rs.AdIDs {
		ids = append(ids, "#"+id)
	}
	sweep := strings.NewReplacer(
		"{{AD_IDS}}", jsArray(rs.AdIDs),
		"{{NAMED_SCRIPTS}}", jsArray(rs.NamedScripts),
	).Replace(sweepScript)
	return strings.NewReplacer(
		"{{FRAME_ID}}", FrameID,
		"{{AD_ID_SELECTORS}}", strings.Join(ids, ",\n      "),
		"{{HIDDEN}}", hiddenDecls,
		"{{GUARD}}", guardScript,
		"{{SWEEP}}", sweep,
		"{{ZMAX}}", zIndexMax,
		"{{ZMILLION}}", zIndexMillion,
	)
}

// buildFrameShell returns the markup placed before and after the extracted
// player element.
func buildFrameShell(rs *RuleSet) (string, string) {
	r := rs.replacer()
	var head strings.Builder
	head.WriteString("<!DOCTYPE html>\n<html>\n  <head>\n    ")
	head.WriteString(viewportMeta)
	head.WriteString("\n    <style>")
	head.WriteString(r.Replace(frameStyle))
	head.WriteString("    </style>\n  </head>\n  <body>\n    ")

	var tail strings.Builder
	tail.WriteString("\n    <script>")
	tail.WriteString(r.Replace(frameScript))
	tail.WriteString("    </script>\n  </body>\n</html>\n")
	return head.String(), tail.String()
}

// buildPageInjection returns the style and script blocks appended to <head>
// in the full-page branch.
func buildPageInjection(rs *RuleSet) string {
	r := rs.replacer()
	var b strings.Builder
	b.WriteString("<style>")
	b.WriteString(r.Replace(pageStyle))
	b.WriteString("    </style>")
	b.WriteString("<script>")
	b.WriteString(r.Replace(pageScript))
	b.WriteString("    </script>")
	return b.String()
}
