package watch

import (
	"strings"

	"schedbot/internal/schedule"
	"schedbot/internal/transport"
	"schedbot/pkg/tgui"
)

const DefaultHeader = "🚨 Schedule changed:"

// RenderDigest lists every item as a hyperlink under a header line.
func RenderDigest(header string, snap schedule.Snapshot) string {
	links := make([]tgui.H, 0, len(snap))
	for _, it := range snap {
		label := it.Label
		if label == "" {
			label = it.Link
		}
		links = append(links, tgui.Link(label, it.Link))
	}
	body := tgui.JoinH("\n", links...)
	header = strings.TrimSpace(header)
	if header == "" {
		return body.String()
	}
	return tgui.Esc(header).String() + "\n\n" + body.String()
}

// chunkDocuments splits docs into groups of at most size, keeping order.
func chunkDocuments(docs []transport.Document, size int) [][]transport.Document {
	if size <= 0 {
		size = tgui.MaxMediaGroup
	}
	var out [][]transport.Document
	for len(docs) > 0 {
		n := min(size, len(docs))
		out = append(out, docs[:n:n])
		docs = docs[n:]
	}
	return out
}
