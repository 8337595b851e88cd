package tgui

import "unicode/utf8"

// Telegram Bot API limits, counted in characters after entity parsing.
// Callers measure the rendered HTML, which over-counts and keeps them safe.
const (
	MaxMessageLen  = 4096
	MaxCaptionLen  = 1024
	MaxMediaGroup  = 10
	ParseModeHTML  = "HTML"
	maxEllipsisLen = 1
)

// FitsCaption reports whether s can be attached as a media caption.
func FitsCaption(s string) bool { return utf8.RuneCountInString(s) <= MaxCaptionLen }
