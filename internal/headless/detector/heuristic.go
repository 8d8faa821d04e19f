// Package detector spots static responses that are client-side rendered
// shells, so the fetch router can retry them in headless Chrome.
package detector

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/freelance-crawler/internal/crawler"
)

// DefaultTextThreshold is the visible text length below which a page with
// shell markers is considered unrendered.
const DefaultTextThreshold = 512

// Heuristic promotes a page when it has almost no visible text and either
// carries a front-end framework mount point or is mostly script.
type Heuristic struct {
	TextThreshold int
	markers       [][]byte
}

var shellMarkers = []string{
	`id="__next"`,
	`id="root"`,
	`id="app"`,
	`data-reactroot`,
	`ng-version=`,
	`<app-root`,
	`window.__NUXT__`,
}

// NewHeuristic creates a detector. A zero threshold selects
// DefaultTextThreshold; extra markers are matched byte-for-byte.
func NewHeuristic(threshold int, extraMarkers ...string) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultTextThreshold
	}
	h := &Heuristic{TextThreshold: threshold}
	for _, m := range append(shellMarkers, extraMarkers...) {
		h.markers = append(h.markers, []byte(m))
	}
	return h
}

// ShouldPromote reports whether resp looks like an unrendered shell. Error
// statuses and non-HTML bodies are never promoted.
func (h *Heuristic) ShouldPromote(resp crawler.FetchResponse) bool {
	if !resp.OK() || !resp.IsHTML() {
		return false
	}
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		return true
	}
	if visibleTextLen(body) >= h.TextThreshold {
		return false
	}
	return h.hasMarker(body) || scriptShare(body) >= 25
}

func (h *Heuristic) hasMarker(body []byte) bool {
	for _, m := range h.markers {
		if bytes.Contains(body, m) {
			return true
		}
	}
	return false
}

func visibleTextLen(body []byte) int {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0
	}
	doc.Find("script, style, noscript, template").Remove()
	return len(strings.Join(strings.Fields(doc.Text()), " "))
}

// scriptShare is the percentage of the body inside <script> elements. An
// unterminated script runs to the end of the body.
func scriptShare(body []byte) int {
	lower := bytes.ToLower(body)
	covered := 0
	for pos := 0; pos < len(lower); {
		i := bytes.Index(lower[pos:], []byte("<script"))
		if i < 0 {
			break
		}
		start := pos + i
		end := len(lower)
		if j := bytes.Index(lower[start:], []byte("</script>")); j >= 0 {
			end = start + j + len("</script>")
		}
		covered += end - start
		pos = end
	}
	return covered * 100 / len(lower)
}
