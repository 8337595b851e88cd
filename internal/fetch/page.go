package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"schedbot/internal/schedule"
)

// PageConfig describes the listing page.
type PageConfig struct {
	URL   string
	XPath string
	// LabelContains keeps only anchors whose text contains this marker
	// (case-insensitive). Empty keeps everything.
	LabelContains string
	Timeout       time.Duration
	MaxBytes      int64
	UserAgent     string
	// ResolveAgainstOrigin resolves relative links against Origin(URL)
	// with a trailing slash instead of the final page URL.
	ResolveAgainstOrigin bool
}

func (c *PageConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 5 << 20
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = defaultUserAgent
	}
}

var anchorExpr = xpath.MustCompile(".//a[@href]")

// PageFetcher reads the listing page and applies the selector.
type PageFetcher struct {
	client *http.Client
	cfg    PageConfig
	page   *url.URL
	origin *url.URL
	expr   *xpath.Expr
}

// NewPageFetcher validates the URL and compiles the selector up front so a
// bad configuration fails at startup rather than on every tick.
func NewPageFetcher(cfg PageConfig, client *http.Client) (*PageFetcher, error) {
	cfg.defaults()
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("source url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("source url must be absolute http(s), got %q", cfg.URL)
	}
	expr, err := xpath.Compile(strings.TrimSpace(cfg.XPath))
	if err != nil {
		return nil, fmt.Errorf("source xpath %q: %w", cfg.XPath, err)
	}
	if client == nil {
		client = NewClient(0)
	}
	f := &PageFetcher{client: client, cfg: cfg, page: u, expr: expr}
	if cfg.ResolveAgainstOrigin {
		f.origin, _ = url.Parse(Origin(u.String()) + "/")
	}
	return f, nil
}

func (f *PageFetcher) URL() string { return f.page.String() }

// Fetch downloads the page and returns the matching items in document
// order. An empty result is not an error here; the caller decides.
func (f *PageFetcher) Fetch(ctx context.Context) (schedule.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.page.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: new request: %w", ErrFetch, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %w", ErrFetch, statusError(resp))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: page exceeds %d bytes", ErrFetch, f.cfg.MaxBytes)
	}

	base := f.page
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}
	if f.origin != nil {
		base = f.origin
	}
	items, err := Extract(body, resp.Header.Get("Content-Type"), base, f.expr, f.cfg.LabelContains)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return items, nil
}

// Extract parses an HTML document and collects (label, link) pairs from the
// nodes expr selects. A selected <a> is used directly; any other element
// contributes the anchors it contains. Relative links resolve against base.
func Extract(body []byte, contentType string, base *url.URL, expr *xpath.Expr, labelContains string) (schedule.Snapshot, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	marker := strings.ToLower(strings.TrimSpace(labelContains))
	var items []schedule.Item
	for _, n := range htmlquery.QuerySelectorAll(doc, expr) {
		for _, a := range anchorsOf(n) {
			label := strings.Join(strings.Fields(htmlquery.InnerText(a)), " ")
			href := strings.TrimSpace(htmlquery.SelectAttr(a, "href"))
			if label == "" || href == "" {
				continue
			}
			if marker != "" && !strings.Contains(strings.ToLower(label), marker) {
				continue
			}
			link, ok := resolve(base, href)
			if !ok {
				continue
			}
			items = append(items, schedule.Item{Label: label, Link: link})
		}
	}
	return schedule.NewSnapshot(items), nil
}

func anchorsOf(n *html.Node) []*html.Node {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	if n.Data == "a" {
		return []*html.Node{n}
	}
	return htmlquery.QuerySelectorAll(n, anchorExpr)
}

// resolve turns href into an absolute http(s) URL. Fragments, scripts and
// mail links are dropped.
func resolve(base *url.URL, href string) (string, bool) {
	if strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := ref
	if base != nil {
		u = base.ResolveReference(ref)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}

// Origin returns scheme://host plus the first path segment of raw, or ""
// when raw is not absolute. It is the base relative links resolve against
// when PageConfig.ResolveAgainstOrigin is set.
func Origin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	out := u.Scheme + "://" + u.Host
	seg, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if seg != "" {
		out += "/" + seg
	}
	return out
}
