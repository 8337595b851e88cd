package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"schedbot/internal/schedule"
	"schedbot/internal/transport"
)

// ErrNotDocument is returned when a document link serves an HTML page,
// usually a login wall or a "file not found" template.
var ErrNotDocument = errors.New("link did not return a document")

type DownloadConfig struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
}

func (c *DownloadConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = time.Minute
	}
	if c.MaxBytes <= 0 {
		// Telegram bots may upload at most 50 MB per file.
		c.MaxBytes = 50 << 20
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = defaultUserAgent
	}
}

type Downloader struct {
	client *http.Client
	cfg    DownloadConfig
}

func NewDownloader(cfg DownloadConfig, client *http.Client) *Downloader {
	cfg.defaults()
	if client == nil {
		client = NewClient(0)
	}
	return &Downloader{client: client, cfg: cfg}
}

// Download retrieves the file behind item.Link into memory.
func (d *Downloader) Download(ctx context.Context, item schedule.Item) (transport.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.Link, nil)
	if err != nil {
		return transport.Document{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return transport.Document{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return transport.Document{}, statusError(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.cfg.MaxBytes+1))
	if err != nil {
		return transport.Document{}, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > d.cfg.MaxBytes {
		return transport.Document{}, fmt.Errorf("document exceeds %d bytes", d.cfg.MaxBytes)
	}
	if len(data) == 0 {
		return transport.Document{}, errors.New("empty document")
	}

	mt := mimetype.Detect(data)
	if mt.Is("text/html") || mt.Is("application/xhtml+xml") {
		return transport.Document{}, ErrNotDocument
	}

	return transport.Document{
		FileName: fileName(resp, item.Link, mt),
		MIME:     mt.String(),
		Data:     data,
	}, nil
}

// fileName prefers the server's Content-Disposition, then the last path
// segment of the link, then a generic name with the sniffed extension.
func fileName(resp *http.Response, link string, mt *mimetype.MIME) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := cleanName(params["filename"]); name != "" {
				return name
			}
		}
	}
	if u, err := url.Parse(link); err == nil {
		if name := cleanName(path.Base(u.Path)); name != "" && name != "/" && name != "." {
			if path.Ext(name) == "" {
				name += mt.Extension()
			}
			return name
		}
	}
	return "document" + mt.Extension()
}

func cleanName(s string) string {
	if v, err := url.PathUnescape(s); err == nil {
		s = v
	}
	s = strings.TrimSpace(path.Base(strings.ReplaceAll(s, "\\", "/")))
	if s == "." || s == "/" {
		return ""
	}
	return s
}
