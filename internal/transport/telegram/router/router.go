package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "schedbot/internal/runtime/supervisor"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	// Hidden commands are routed but left out of /help and the menu.
	Hidden  bool
	Timeout time.Duration
	Handle  HandlerFunc
}

type Request struct {
	Message *kit.Message
	// Chat is where replies to this request go.
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Sender kit.Sender
	Logger logx.Logger
}

// Reply sends text back to the originating chat (and thread).
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.Sender.SendText(ctx, r.Chat, text, opt)
	return err
}

type Options struct {
	// Workers bounds concurrently running handlers. Defaults to NumCPU (min 2).
	Workers   int
	QueueSize int
	// DefaultTimeout applies to commands without their own Timeout.
	DefaultTimeout time.Duration
	// BotUsername filters "/cmd@name" addressed to other bots. Empty accepts all.
	BotUsername string
	// Supervisors, when set, exposes the dispatcher's supervisor while running.
	Supervisors *SupervisorRegistry
}

type CommandManager struct {
	mu    sync.RWMutex
	cmds  map[string]*Command
	alias map[string]*Command
	self  string

	opt    Options
	log    logx.Logger
	sender kit.Sender

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func NewCommandManager(log logx.Logger, sender kit.Sender, opt Options) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Workers <= 0 {
		opt.Workers = max(runtime.NumCPU(), 2)
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 256
	}
	if opt.DefaultTimeout <= 0 {
		opt.DefaultTimeout = 30 * time.Second
	}
	return &CommandManager{
		cmds:   map[string]*Command{},
		alias:  map[string]*Command{},
		self:   normalizeMention(opt.BotUsername),
		opt:    opt,
		log:    log,
		sender: sender,
		jobs:   make(chan func(), opt.QueueSize),
	}
}

// SetBotUsername updates the mention filter, e.g. once getMe has answered.
func (m *CommandManager) SetBotUsername(name string) {
	m.mu.Lock()
	m.self = normalizeMention(name)
	m.mu.Unlock()
}

// Supervisor returns the dispatcher's internal supervisor (nil if not running).
func (m *CommandManager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *rtsup.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (m *CommandManager) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// SetRegistry replaces the routed command set. /help is always injected.
func (m *CommandManager) SetRegistry(cmds []Command) {
	helper := Command{
		Name:        "help",
		Description: "show available commands",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText(), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
		},
	}
	cmds = append(cmds, helper)

	byName := map[string]*Command{}
	alias := map[string]*Command{}
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		byName[name] = &cc
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			alias[a] = &cc
		}
		// Menu names must be Telegram-safe; route the sanitized form too.
		if sn := sanitizeTelegramCommand(name); sn != "" && sn != name {
			if _, exists := alias[sn]; !exists {
				alias[sn] = &cc
			}
		}
	}

	m.mu.Lock()
	m.cmds = byName
	m.alias = alias
	m.mu.Unlock()
}

func (m *CommandManager) lookup(word string) *Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.cmds[word]; ok {
		return c
	}
	return m.alias[word]
}

func (m *CommandManager) snapshot() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Command, 0, len(m.cmds))
	for _, c := range m.cmds {
		out = append(out, *c)
	}
	return out
}

// UpdateMenu pushes the visible commands to the platform menu when the
// sender supports it.
func (m *CommandManager) UpdateMenu(ctx context.Context) error {
	up, ok := m.sender.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return up.UpdateMenuCommands(ctx, buildMenuCommands(m.snapshot()))
}

// DispatchLoop routes updates until ctx is done or updates is closed.
// Handlers run on a bounded worker pool so a slow handler never blocks intake.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	m.opt.Supervisors.Set("telegram.router", sup)

	m.log.Info("command dispatcher started", logx.Int("workers", m.opt.Workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := range m.opt.Workers {
		name := "command.worker." + strconv.Itoa(i)
		sup.GoRestart(name, func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					m.runJob(i, job)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		m.setSupervisor(sup, false)
		close(m.jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.opt.Supervisors.Delete("telegram.router")
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.routeMessage(ctx, up.Message)
		}
	}
}

func (m *CommandManager) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	job()
}

func (m *CommandManager) routeMessage(ctx context.Context, msg *kit.Message) {
	if msg == nil {
		return
	}
	word, mention, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	m.mu.RLock()
	self := m.self
	m.mu.RUnlock()
	if mention != "" && self != "" && normalizeMention(mention) != self {
		return
	}

	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	cmd := m.lookup(word)
	if cmd == nil {
		// Groups see every command meant for other bots; stay quiet there.
		if !msg.IsGroup() {
			_, _ = m.sender.SendText(ctx, chat, "Unknown command. Try /help", nil)
		}
		return
	}

	rid := newReqID()
	reqLog := m.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int("thread_id", msg.ThreadID),
		logx.Int64("from_id", msg.FromID),
		logx.String("cmd", cmd.Name),
	)
	req := &Request{
		Message: msg,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Sender:  m.sender,
		Logger:  reqLog,
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = m.opt.DefaultTimeout
	}
	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(timeout),
	)

	if !m.tryEnqueue(func() { _ = final(ctx, req) }) {
		_, _ = m.sender.SendText(ctx, chat, "Busy, try again in a moment.", nil)
	}
}
