package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	tele "gopkg.in/telebot.v4"

	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
	"schedbot/pkg/tgui"
)

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}

	chunks := splitText(text, telegramTextLimit, opt.ParseMode)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, sendOptions(to, opt))
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// SendDocuments uploads docs as one media group. A group needs at least two
// items, so a single document goes out as a plain document message.
func (a *Adapter) SendDocuments(ctx context.Context, to kit.ChatTarget, docs []kit.Document, caption string, opt *kit.SendOptions) error {
	if len(docs) == 0 {
		return errors.New("no documents to send")
	}
	if len(docs) > tgui.MaxMediaGroup {
		return fmt.Errorf("media group too large: %d > %d", len(docs), tgui.MaxMediaGroup)
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	chat := &tele.Chat{ID: to.ChatID}
	so := sendOptions(to, opt)

	if len(docs) == 1 {
		_, err := a.bot.Send(chat, toDocument(docs[0], caption), so)
		return err
	}

	album := make(tele.Album, 0, len(docs))
	for i, d := range docs {
		c := ""
		if i == 0 {
			c = caption
		}
		album = append(album, toDocument(d, c))
	}
	_, err := a.bot.SendAlbum(chat, album, so)
	return err
}

func toDocument(d kit.Document, caption string) *tele.Document {
	return &tele.Document{
		File:     tele.FromReader(bytes.NewReader(d.Data)),
		FileName: d.FileName,
		MIME:     d.MIME,
		Caption:  caption,
	}
}

func sendOptions(to kit.ChatTarget, opt *kit.SendOptions) *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	}
}

// UpdateMenuCommands updates Telegram's global command menu (setMyCommands).
// It only performs a network call when the command list changes.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	for _, c := range cmds {
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		out = append(out, tele.Command{Text: c.Command, Description: tgui.TruncRunes(d, 256)})
		if len(out) >= 100 {
			break
		}
	}
	if err := a.bot.SetCommands(out); err != nil {
		return fmt.Errorf("telegram setMyCommands: %w", err)
	}

	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(out)))
	return nil
}
