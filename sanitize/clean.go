package sanitize

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// clean runs the full-page passes in order. Each pass is a matcher plus a
// remove or rewrite action over the same tree.
func (rs *RuleSet) clean(d *Document, base *url.URL) Report {
	var rep Report

	for _, r := range rs.denylist {
		rep.RemovedElements += d.Remove(r.Match)
	}
	for _, r := range rs.overlays {
		rep.RemovedElements += d.Remove(r.Match)
	}

	d.Find(rs.styles).Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		if node.FirstChild == nil {
			return
		}
		text := textContent(node)
		out, n := rs.stripStylesheet(text)
		if n == 0 {
			return
		}
		setText(node, out)
		rep.StrippedCSSRules += n
	})

	rep.RemovedScripts += d.Remove(rs.namedScripts)
	rep.RemovedElements += d.Remove(rs.servers)
	rep.RemovedElements += d.Remove(rs.namedIDs)

	d.Find(rs.mctitle).Each(func(_ int, s *goquery.Selection) {
		style, ok := s.Attr("style")
		if !ok {
			return
		}
		out, changed := dropFontSize(style)
		switch {
		case !changed:
		case out == "":
			s.RemoveAttr("style")
		default:
			s.SetAttr("style", out)
		}
	})

	d.Find(rs.handlers).Each(func(_ int, s *goquery.Selection) {
		for _, a := range rs.EventAttrs {
			if _, ok := s.Attr(a); ok {
				s.RemoveAttr(a)
				rep.StrippedHandlers++
			}
		}
	})
	anchors := d.Find(rs.jsAnchors)
	rep.StrippedHandlers += anchors.Length()
	anchors.RemoveAttr("href")

	rep.RemovedScripts += d.Remove(rs.keywordScripts)
	rep.RewrittenURLs += rs.rewriteURLs(d, base)

	head := d.Head()
	head.AppendHtml(rs.pageHead)
	if d.Find(rs.viewport).Length() == 0 {
		head.PrependHtml(viewportMeta)
	}
	return rep
}

func setText(n *html.Node, text string) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}
