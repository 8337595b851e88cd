package transport

import "context"

type ChatKind string

const (
	ChatPrivate    ChatKind = "private"
	ChatGroup      ChatKind = "group"
	ChatSuperGroup ChatKind = "supergroup"
	ChatChannel    ChatKind = "channel"
)

type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ChatKind     ChatKind
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
}

// IsGroup reports whether the message was posted in a shared chat
// (group, supergroup or channel) rather than a private conversation.
func (m *Message) IsGroup() bool {
	if m == nil {
		return false
	}
	switch m.ChatKind {
	case ChatGroup, ChatSuperGroup, ChatChannel:
		return true
	}
	return false
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Document is an in-memory file ready to be uploaded.
type Document struct {
	FileName string
	MIME     string
	Data     []byte
}

// Sender is the outbound half of an adapter. Fan-out and the log sink only
// need this part.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	// SendDocuments uploads docs as a single group. caption is attached to the
	// first document only; an empty caption attaches nothing.
	SendDocuments(ctx context.Context, to ChatTarget, docs []Document, caption string, opt *SendOptions) error
}

type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
