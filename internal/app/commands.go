package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"schedbot/internal/eventbus"
	"schedbot/internal/registry"
	kit "schedbot/internal/transport"
	"schedbot/internal/transport/telegram/router"
	logx "schedbot/pkg/logx"
	"schedbot/pkg/tgui"
)

const (
	msgSubscribed   = "You are now subscribed to schedule change notifications."
	msgUnsubscribed = "You have unsubscribed from schedule change notifications."
)

func (a *App) commands() []router.Command {
	return []router.Command{
		{
			Name:        "start",
			Description: "Subscribe or unsubscribe from schedule changes",
			Timeout:     15 * time.Second,
			Handle:      a.cmdStart,
		},
		{
			Name:        "status",
			Description: "Show the last check and your subscription",
			Timeout:     10 * time.Second,
			Handle:      a.cmdStatus,
		},
	}
}

// cmdStart flips the subscription of the chat the message belongs to.
// A storage failure gets no reply; the request log records it.
func (a *App) cmdStart(ctx context.Context, req *router.Request) error {
	tgt, ok := registry.TargetFor(req.Message)
	if !ok {
		return nil
	}
	st, err := a.reg.Toggle(ctx, tgt.ID)
	if err != nil {
		req.Logger.Error("subscription toggle failed", logx.String("id", tgt.ID), logx.Err(err))
		return err
	}
	a.bus.Publish(eventbus.Event{
		Type: eventbus.SubscriberToggled,
		Data: eventbus.Toggle{ID: tgt.ID, Subscribed: st == registry.Subscribed},
	})

	text := msgUnsubscribed
	if st == registry.Subscribed {
		text = msgSubscribed
	}
	_, err = a.adapter.SendText(ctx, tgt.Reply, text, nil)
	return err
}

func (a *App) cmdStatus(ctx context.Context, req *router.Request) error {
	var b strings.Builder
	b.WriteString("<b>Schedule watch</b>\n")
	src := a.cfgm.Get().Source
	b.WriteString("Source: " + tgui.Link(src.Origin(), src.URL).String() + "\n")

	if last := a.watcher.Last(); last == nil {
		b.WriteString("Last check: not yet\n")
	} else {
		outcome := "unchanged"
		switch {
		case last.Err != "":
			outcome = "failed"
		case last.Changed:
			outcome = "changed"
		}
		fmt.Fprintf(&b, "Last check: %s (%s, %d links)\n", last.Started.Format(time.DateTime), outcome, last.Items)
	}

	if tgt, ok := registry.TargetFor(req.Message); ok {
		subscribed, err := a.reg.IsSubscribed(ctx, tgt.ID)
		if err != nil {
			return err
		}
		if subscribed {
			b.WriteString("This chat is subscribed. Send /start to unsubscribe.")
		} else {
			b.WriteString("This chat is not subscribed. Send /start to subscribe.")
		}
	}
	return req.Reply(ctx, b.String(), &kit.SendOptions{ParseMode: tgui.ParseModeHTML, DisablePreview: true})
}
