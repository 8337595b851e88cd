package adapter

import (
	"strings"

	"schedbot/pkg/tgui"
)

// Kept below tgui.MaxMessageLen so entity expansion on Telegram's side
// does not push a chunk over the hard limit.
const telegramTextLimit = 4000

// splitText cuts s into chunks of at most limit runes. It prefers newline
// boundaries and, in HTML mode, never cuts inside a tag or an open anchor.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 || limit > tgui.MaxMessageLen {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, tgui.ParseModeHTML)

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			if cut := lastNewline(rs, start, end, limit/3); cut != -1 {
				end = cut
			}
		}
		if html && end < len(rs) {
			if safe := safeHTMLCut(rs, start, end); safe > start {
				end = safe
			}
		}

		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		if chunk != "" {
			out = append(out, chunk)
		}

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// lastNewline returns the index just past the last newline in rs[start:end]
// that leaves a chunk of at least minLen runes, or -1.
func lastNewline(rs []rune, start, end, minLen int) int {
	for i := end - 1; i > start; i-- {
		if rs[i] == '\n' && i-start >= minLen {
			return i + 1
		}
	}
	return -1
}

// safeHTMLCut moves end back so rs[start:end] has no dangling tag and no
// unclosed <a> element. It returns start when no such cut exists.
func safeHTMLCut(rs []rune, start, end int) int {
	lastOpen, lastClose := -1, -1
	for i := start; i < end; i++ {
		switch rs[i] {
		case '<':
			lastOpen = i
		case '>':
			lastClose = i
		}
	}
	if lastOpen > lastClose {
		end = lastOpen
	}

	// An anchor opened in this chunk must close in it too.
	seg := string(rs[start:end])
	anchorOpen := strings.LastIndex(seg, "<a ")
	if anchorOpen > strings.LastIndex(seg, "</a>") {
		end = start + len([]rune(seg[:anchorOpen]))
	}
	return end
}
