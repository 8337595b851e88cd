// Package logx is the structured logger used across schedbot.
//
// It wraps zerolog with a small field API so call sites stay free of
// zerolog's builder chains. Output goes to a readable console writer and,
// optionally, to a JSON file and a rate-limited Telegram chat.
package logx
