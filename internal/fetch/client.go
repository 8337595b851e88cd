// Package fetch talks HTTP to the schedule site: it reads the listing page
// into a schedule.Snapshot and downloads the documents the page links to.
package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrFetch marks a failure to obtain a usable snapshot: network, HTTP
// status, body size, HTML parsing or selector errors.
var ErrFetch = errors.New("fetch failed")

const (
	defaultUserAgent = "schedbot/1.0 (+https://core.telegram.org/bots)"
	maxRedirects     = 5
)

// NewClient returns the HTTP client shared by the page fetcher and the
// downloader. Deadlines come from request contexts; timeout is an outer
// bound for callers that forget one.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects (%d)", len(via))
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
			}
			return nil
		},
	}
}

func statusError(resp *http.Response) error {
	return fmt.Errorf("http %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
