package sanitize

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Document is the mutable tree a single request works on. It is never
// shared between requests.
type Document struct {
	doc *goquery.Document
}

// Parse builds a Document from an upstream body. Bodies that do not sniff
// as text are rejected instead of being coerced into an empty tree.
func Parse(body []byte) (*Document, error) {
	if ct := http.DetectContentType(body); !strings.HasPrefix(ct, "text/") {
		return nil, &ParseError{Reason: "body is " + ct}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Reason: "html", Err: err}
	}
	return &Document{doc: doc}, nil
}

// Find returns every element matched by m in document order.
func (d *Document) Find(m goquery.Matcher) *goquery.Selection {
	return d.doc.FindMatcher(m)
}

// Remove detaches every element matched by m and returns how many were
// matched at the outermost level.
func (d *Document) Remove(m goquery.Matcher) int {
	sel := d.doc.FindMatcher(m)
	if sel.Length() == 0 {
		return 0
	}
	n := 0
	for _, node := range sel.Nodes {
		if !hasMatchedAncestor(node, m) {
			n++
		}
	}
	sel.Remove()
	return n
}

func hasMatchedAncestor(n *html.Node, m goquery.Matcher) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && m.Match(p) {
			return true
		}
	}
	return false
}

// Head returns the <head> element. The html parser always synthesizes one.
func (d *Document) Head() *goquery.Selection {
	return d.doc.Find("head").First()
}

// Render serializes the whole document.
func (d *Document) Render() (string, error) {
	return d.doc.Html()
}
