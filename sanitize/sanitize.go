// Package sanitize turns an untrusted video-embed page into a document that
// is safe to re-serve inside an iframe.
//
// A page that carries the player container is reduced to that container in
// a fresh shell. Any other page goes through the full list of removal and
// rewrite passes and gets the blocking style and script appended to <head>.
// Output depends only on the input bytes, the base URL and the RuleSet.
package sanitize

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// Sanitize runs the default RuleSet over body. base is the upstream URL
// used to absolutize root-relative references.
func Sanitize(body []byte, base *url.URL) (*Result, error) {
	return Default().Sanitize(body, base)
}

// Sanitize serves the player frame in a minimal shell when the page has one,
// and otherwise cleans the whole document.
func (rs *RuleSet) Sanitize(body []byte, base *url.URL) (*Result, error) {
	d, err := Parse(body)
	if err != nil {
		return nil, err
	}

	if frame := d.Find(rs.frame).First(); frame.Length() > 0 {
		out, err := rs.wrapFrame(frame)
		if err != nil {
			return nil, err
		}
		return &Result{HTML: out, Branch: BranchFrame, CSP: FrameCSP}, nil
	}

	rep := rs.clean(d, base)
	out, err := d.Render()
	if err != nil {
		return nil, &ParseError{Reason: "render", Err: err}
	}
	return &Result{HTML: out, Branch: BranchFull, CSP: PageCSP, Report: rep}, nil
}

// wrapFrame keeps only the player subtree. Its URLs are left as served.
func (rs *RuleSet) wrapFrame(frame *goquery.Selection) (string, error) {
	inner, err := goquery.OuterHtml(frame.Clone())
	if err != nil {
		return "", &ParseError{Reason: "render frame", Err: err}
	}
	return rs.frameHead + inner + rs.frameTail, nil
}
