package sanitize

import (
	"regexp"
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
)

// stripStylesheet removes every rule whose selector is denied from a <style>
// body. Grouped selectors lose only their denied members. The text is
// returned untouched when nothing matched, so clean sheets keep their
// original formatting.
func (rs *RuleSet) stripStylesheet(text string) (string, int) {
	sheet, err := parser.Parse(text)
	if err != nil {
		return rs.stripStylesheetFallback(text)
	}
	var removed int
	sheet.Rules, removed = rs.filterRules(sheet.Rules)
	if removed == 0 {
		return text, 0
	}
	return sheet.String(), removed
}

func (rs *RuleSet) filterRules(rules []*css.Rule) ([]*css.Rule, int) {
	kept := rules[:0]
	removed := 0
	for _, rule := range rules {
		if rule.EmbedsRules() {
			var n int
			rule.Rules, n = rs.filterRules(rule.Rules)
			removed += n
			kept = append(kept, rule)
			continue
		}
		if rule.Kind != css.QualifiedRule {
			kept = append(kept, rule)
			continue
		}
		sels := rule.Selectors[:0]
		for _, s := range rule.Selectors {
			if rs.cssDenied(s) {
				removed++
				continue
			}
			sels = append(sels, s)
		}
		if len(sels) == 0 {
			continue
		}
		rule.Selectors = sels
		kept = append(kept, rule)
	}
	return kept, removed
}

// cssDenied matches a selector exactly (whitespace-normalized) or as a
// descendant of a denied selector, e.g. "body #ad720".
func (rs *RuleSet) cssDenied(sel string) bool {
	sel = normalizeSelector(sel)
	for _, d := range rs.DeniedCSS {
		if sel == d || strings.HasSuffix(sel, " "+d) {
			return true
		}
	}
	return false
}

func normalizeSelector(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cssFallbackPatterns turns each denied selector into a regexp matching
// the selector followed by its declaration block.
func cssFallbackPatterns(selectors []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(selectors))
	for _, sel := range selectors {
		parts := strings.Fields(sel)
		for i, p := range parts {
			parts[i] = regexp.QuoteMeta(p)
		}
		out = append(out, regexp.MustCompile(strings.Join(parts, `\s+`)+`\s*\{[^}]*\}`))
	}
	return out
}

func (rs *RuleSet) stripStylesheetFallback(text string) (string, int) {
	removed := 0
	for _, re := range rs.cssFallback {
		text = re.ReplaceAllStringFunc(text, func(string) string {
			removed++
			return ""
		})
	}
	return text, removed
}

var fontSizeDecl = regexp.MustCompile(`(?i)font-size\s*:\s*[^;]+;?`)

// dropFontSize removes font-size from an inline style attribute value.
// The second result is false when the style had no font-size.
func dropFontSize(style string) (string, bool) {
	text := strings.TrimSpace(style)
	if !strings.HasSuffix(text, ";") {
		// the last declaration is dropped without a terminator
		text += ";"
	}
	decls, err := parser.ParseDeclarations(text)
	if err != nil {
		if !fontSizeDecl.MatchString(style) {
			return style, false
		}
		return strings.TrimSpace(fontSizeDecl.ReplaceAllString(style, "")), true
	}
	parts := make([]string, 0, len(decls))
	found := false
	for _, d := range decls {
		if strings.EqualFold(d.Property, "font-size") {
			found = true
			continue
		}
		parts = append(parts, d.String())
	}
	if !found {
		return style, false
	}
	return strings.Join(parts, " "), true
}
