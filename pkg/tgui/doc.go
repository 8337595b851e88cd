// Package tgui holds helpers for composing Telegram messages in HTML parse
// mode and the platform limits that bound them.
package tgui
