package crawler

import (
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"
)

// ErrFetchFailed marks a response that cannot be extracted: non-2xx status
// or a non-HTML body.
var ErrFetchFailed = errors.New("fetch failed")

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL      string
	RenderJS bool
	// Wait is how long a rendering fetcher lets scripts settle before
	// capturing the DOM.
	Wait    time.Duration
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// OK reports a 2xx status.
func (r FetchResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsHTML reports whether the response carries HTML. A missing content type
// is accepted since rendered pages often lack one.
func (r FetchResponse) IsHTML() bool {
	ct := r.Headers.Get("Content-Type")
	if ct == "" {
		return len(r.Body) > 0
	}
	media, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.Contains(strings.ToLower(ct), "html")
	}
	return media == "text/html" || media == "application/xhtml+xml"
}

// Stats counts what one site's crawl did.
type Stats struct {
	Site            string        `json:"site"`
	ListingPages    int           `json:"listing_pages"`
	FailedListings  int           `json:"failed_listings"`
	Candidates      int           `json:"candidates"`
	Freelancers     int           `json:"freelancers"`
	Reviews         int           `json:"reviews"`
	Services        int           `json:"services"`
	DetailFailures  int           `json:"detail_failures"`
	PersistFailures int           `json:"persist_failures"`
	BudgetReached   bool          `json:"budget_reached"`
	Duration        time.Duration `json:"duration"`
}

// RunSummary is published when a crawl run finishes.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Sites      []Stats   `json:"sites"`
	Error      string    `json:"error,omitempty"`
}
