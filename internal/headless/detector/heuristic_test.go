package detector

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/freelance-crawler/internal/crawler"
)

func htmlResponse(status int, body string) crawler.FetchResponse {
	return crawler.FetchResponse{
		StatusCode: status,
		Headers:    http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:       []byte(body),
	}
}

func TestHeuristic_ShouldPromote(t *testing.T) {
	t.Parallel()

	rendered := `<html><body><app-root ng-version="17"><ul>` +
		strings.Repeat(`<li class="ns_result">Jane Doe, PHP developer in Paris</li>`, 30) +
		`</ul></app-root></body></html>`

	tests := []struct {
		name string
		resp crawler.FetchResponse
		want bool
	}{
		{"empty body", htmlResponse(http.StatusOK, "  "), true},
		{"angular shell", htmlResponse(http.StatusOK, `<html><body><app-root></app-root><script src="main.js"></script></body></html>`), true},
		{"next shell", htmlResponse(http.StatusOK, `<div id="__next"></div>`), true},
		{"script heavy", htmlResponse(http.StatusOK, `<html><script>var state={"a":1,"b":2};</script><p>t</p></html>`), true},
		{"rendered page with marker", htmlResponse(http.StatusOK, rendered), false},
		{"plain short page", htmlResponse(http.StatusOK, `<html><body><p>No freelancers found.</p></body></html>`), false},
		{"error status", htmlResponse(http.StatusNotFound, ""), false},
		{"not html", crawler.FetchResponse{StatusCode: http.StatusOK, Headers: http.Header{"Content-Type": {"application/json"}}}, false},
	}
	h := NewHeuristic(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, h.ShouldPromote(tt.resp))
		})
	}
}

func TestHeuristic_ExtraMarkers(t *testing.T) {
	t.Parallel()

	body := `<html><body><div class="pph-shell"></div></body></html>`
	assert.False(t, NewHeuristic(0).ShouldPromote(htmlResponse(http.StatusOK, body)))
	assert.True(t, NewHeuristic(0, `class="pph-shell"`).ShouldPromote(htmlResponse(http.StatusOK, body)))
}

func TestScriptShare(t *testing.T) {
	t.Parallel()

	assert.Zero(t, scriptShare([]byte("<p>hello</p>")))
	assert.Equal(t, 100, scriptShare([]byte("<script>unterminated")))
}
