package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/antchfx/xpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedbot/internal/schedule"
)

const listing = `<!doctype html>
<html><body>
<div class="docs">
  <p><a href="/files/a.pdf">Расписание  A</a></p>
  <p><a href="files/b.docx">
      Расписание B
  </a></p>
  <p><a href="/files/a.pdf">Расписание A (copy)</a></p>
  <p><a href="#top">Расписание anchor</a></p>
  <p><a href="mailto:x@y">Расписание mail</a></p>
  <p><a href="/news.html">Новости</a></p>
  <p><a href="/files/empty.pdf"> </a></p>
</div>
</body></html>`

func mustBase(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestExtractAnchors(t *testing.T) {
	expr := xpath.MustCompile(`//div[@class="docs"]//a`)
	got, err := Extract([]byte(listing), "text/html; charset=utf-8", mustBase(t, "https://uni.test/students/schedule"), expr, "")
	require.NoError(t, err)

	assert.Equal(t, schedule.Snapshot{
		{Label: "Расписание A", Link: "https://uni.test/files/a.pdf"},
		{Label: "Расписание B", Link: "https://uni.test/students/files/b.docx"},
		{Label: "Новости", Link: "https://uni.test/news.html"},
	}, got)
}

func TestExtractContainerAndLabelFilter(t *testing.T) {
	expr := xpath.MustCompile(`//div[@class="docs"]`)
	got, err := Extract([]byte(listing), "", mustBase(t, "https://uni.test/"), expr, "расписание")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://uni.test/files/a.pdf", "https://uni.test/files/b.docx"}, got.Links())
}

func TestExtractDecodesLegacyCharset(t *testing.T) {
	// "Расп" in windows-1251.
	body := []byte("<html><body><a href=\"/r.pdf\">\xd0\xe0\xf1\xef</a></body></html>")
	got, err := Extract(body, "text/html; charset=windows-1251", mustBase(t, "http://x.test/"), xpath.MustCompile("//a"), "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Расп", got[0].Label)
}

func TestNewPageFetcherValidates(t *testing.T) {
	_, err := NewPageFetcher(PageConfig{URL: "ftp://x", XPath: "//a"}, nil)
	assert.Error(t, err)
	_, err = NewPageFetcher(PageConfig{URL: "https://x.test", XPath: "//a[@"}, nil)
	assert.Error(t, err)
}

func TestPageFetcherFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/old":
			http.Redirect(w, r, "/students/schedule", http.StatusFound)
		case "/students/schedule":
			assert.NotEmpty(t, r.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(listing))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f, err := NewPageFetcher(PageConfig{URL: srv.URL + "/old", XPath: "//a", LabelContains: "Расписание"}, srv.Client())
	require.NoError(t, err)

	got, err := f.Fetch(context.Background())
	require.NoError(t, err)
	// Relative links resolve against the final URL after redirects.
	assert.Equal(t, []string{srv.URL + "/files/a.pdf", srv.URL + "/students/files/b.docx"}, got.Links())

	f, err = NewPageFetcher(PageConfig{URL: srv.URL + "/old", XPath: "//a", LabelContains: "Расписание", ResolveAgainstOrigin: true}, srv.Client())
	require.NoError(t, err)
	got, err = f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/files/a.pdf", srv.URL + "/old/files/b.docx"}, got.Links())
}

func TestPageFetcherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/slow":
			time.Sleep(200 * time.Millisecond)
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	cases := map[string]PageConfig{
		"status":  {URL: srv.URL + "/down", XPath: "//a"},
		"timeout": {URL: srv.URL + "/slow", XPath: "//a", Timeout: 20 * time.Millisecond},
		"size":    {URL: srv.URL + "/big", XPath: "//a", MaxBytes: 1024},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			f, err := NewPageFetcher(cfg, srv.Client())
			require.NoError(t, err)
			_, err = f.Fetch(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFetch), "got %v", err)
		})
	}
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "https://uni.test/a", Origin("https://uni.test/a/b?c=1"))
	assert.Equal(t, "https://uni.test", Origin("https://uni.test"))
	assert.Equal(t, "", Origin("not a url"))
}

var pdfBytes = []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

func TestDownloaderDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/a%20b.pdf", "/files/a b.pdf":
			_, _ = w.Write(pdfBytes)
		case "/get":
			w.Header().Set("Content-Disposition", `attachment; filename="week-1.pdf"`)
			_, _ = w.Write(pdfBytes)
		case "/login.pdf":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<!DOCTYPE html><html><body>Please log in</body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := NewDownloader(DownloadConfig{}, srv.Client())
	ctx := context.Background()

	doc, err := d.Download(ctx, schedule.Item{Link: srv.URL + "/files/a%20b.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "a b.pdf", doc.FileName)
	assert.Equal(t, "application/pdf", doc.MIME)
	assert.Equal(t, pdfBytes, doc.Data)

	doc, err = d.Download(ctx, schedule.Item{Link: srv.URL + "/get"})
	require.NoError(t, err)
	assert.Equal(t, "week-1.pdf", doc.FileName)

	_, err = d.Download(ctx, schedule.Item{Link: srv.URL + "/login.pdf"})
	assert.ErrorIs(t, err, ErrNotDocument)

	_, err = d.Download(ctx, schedule.Item{Link: srv.URL + "/missing.pdf"})
	assert.ErrorContains(t, err, "404")
}

func TestDownloaderSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pdfBytes)
	}))
	defer srv.Close()

	d := NewDownloader(DownloadConfig{MaxBytes: 8}, srv.Client())
	_, err := d.Download(context.Background(), schedule.Item{Link: srv.URL + "/a.pdf"})
	assert.ErrorContains(t, err, "exceeds")
}
