package sanitize

import "fmt"

// Branch names the strategy that produced a Result.
type Branch string

const (
	BranchFrame Branch = "frame"
	BranchFull  Branch = "full"
)

// Content-Security-Policy values per branch.
const (
	FrameCSP = "script-src 'unsafe-inline'; object-src 'none'; frame-ancestors *;"
	PageCSP  = "script-src 'self' 'unsafe-inline'; object-src 'none'; frame-ancestors *;"
)

// Report counts what the pipeline changed. Only the full-page branch fills
// it; the frame branch discards everything outside the player anyway.
type Report struct {
	RemovedElements  int
	StrippedCSSRules int
	RemovedScripts   int
	StrippedHandlers int
	RewrittenURLs    int
}

// Total is the number of edits across all passes.
func (r Report) Total() int {
	return r.RemovedElements + r.StrippedCSSRules + r.RemovedScripts + r.StrippedHandlers + r.RewrittenURLs
}

// Result is the sanitized document with the CSP that must accompany it.
type Result struct {
	HTML   string
	Branch Branch
	CSP    string
	Report Report
}

// ParseError reports an upstream body that could not be turned into a
// document.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse upstream html: %s: %v", e.Reason, e.Err)
	}
	return "parse upstream html: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }
