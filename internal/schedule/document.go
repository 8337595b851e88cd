package schedule

import (
	"net/url"
	"path"
	"strings"
)

// DefaultDocumentExts are the office and PDF formats worth attaching.
var DefaultDocumentExts = []string{
	"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "odt", "ods", "odp", "rtf",
}

// Extension returns the lower-cased extension of the link's path without the
// leading dot, or "" when there is none.
func Extension(link string) string {
	p := link
	if u, err := url.Parse(link); err == nil {
		p = u.Path
	}
	ext := path.Ext(p)
	if ext == "" || ext == "." {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// DocumentClassifier decides which links point at attachable documents.
type DocumentClassifier struct {
	exts map[string]struct{}
}

// NewDocumentClassifier accepts extensions with or without the leading dot.
// An empty list falls back to DefaultDocumentExts.
func NewDocumentClassifier(exts []string) DocumentClassifier {
	if len(exts) == 0 {
		exts = DefaultDocumentExts
	}
	m := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			m[e] = struct{}{}
		}
	}
	return DocumentClassifier{exts: m}
}

func (c DocumentClassifier) IsDocument(link string) bool {
	ext := Extension(link)
	if ext == "" {
		return false
	}
	_, ok := c.exts[ext]
	return ok
}

// Documents returns the items whose links are documents, in snapshot order.
func (c DocumentClassifier) Documents(s Snapshot) []Item {
	var out []Item
	for _, it := range s {
		if c.IsDocument(it.Link) {
			out = append(out, it)
		}
	}
	return out
}
