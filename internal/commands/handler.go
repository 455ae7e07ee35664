// Package commands implements the add, remove, list and help slash commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"botmon/internal/observability/metrics"
	"botmon/internal/registry"
	"botmon/internal/transport"
	logx "botmon/pkg/logx"
)

const (
	msgNotABot      = "This is to track bots not to spy on people"
	msgAddFailed    = "Failed to add bot to register"
	msgRemoveFailed = "Failed to remove bot from the register"
	msgListFailed   = "Failed to list your entries :("
	msgListEmpty    = "You have no current warnings set up"
	msgListHeader   = "Current Warnings:"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingOption  = errors.New("missing bot option")
)

// Registry is the part of registry.Service the commands use.
type Registry interface {
	Add(ctx context.Context, e registry.Entry) error
	Remove(ctx context.Context, e registry.Entry) error
	FetchByWatcher(ctx context.Context, watcherID string) ([]registry.Entry, error)
}

type Config struct {
	// Timeout bounds one invocation including the reply. Default 10s.
	Timeout time.Duration
}

type Handler struct {
	reg     Registry
	dir     transport.Directory
	log     logx.Logger
	metrics *metrics.Metrics

	routes map[string]HandlerFunc
	chain  HandlerFunc
}

func New(cfg Config, reg Registry, dir transport.Directory, log logx.Logger, m *metrics.Metrics) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	h := &Handler{
		reg:     reg,
		dir:     dir,
		log:     log.With(logx.String("comp", "commands")),
		metrics: m,
	}
	h.routes = map[string]HandlerFunc{
		CmdAdd:    h.add,
		CmdRemove: h.remove,
		CmdList:   h.list,
		CmdHelp:   h.help,
	}
	h.chain = Chain(h.route,
		MWPanicRecover(h.log),
		MWRequestLog(h.log),
		MWTimeout(cfg.Timeout),
	)
	return h
}

// Handle runs one invocation. Invocations from bots are dropped silently.
// The returned error is for logging only; the user has already been answered.
func (h *Handler) Handle(ctx context.Context, cmd *transport.Command) error {
	if cmd == nil || cmd.Invoker.Bot {
		return nil
	}
	err := h.chain(ctx, cmd)
	result := "ok"
	if err != nil {
		result = "error"
	}
	h.metrics.ObserveCommand(cmd.Name, result)
	return err
}

func (h *Handler) route(ctx context.Context, cmd *transport.Command) error {
	fn, ok := h.routes[cmd.Name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
	}
	return fn(ctx, cmd)
}

func (h *Handler) add(ctx context.Context, cmd *transport.Command) error {
	subject, ok := cmd.Users[OptBot]
	if !ok || subject.ID == "" {
		return errors.Join(ErrMissingOption, reply(ctx, cmd, msgAddFailed))
	}
	if !subject.Bot {
		return reply(ctx, cmd, msgNotABot)
	}
	e := registry.Entry{SubjectID: subject.ID, WatcherID: cmd.Invoker.ID}
	if err := h.reg.Add(ctx, e); err != nil {
		return errors.Join(err, reply(ctx, cmd, msgAddFailed))
	}
	return reply(ctx, cmd, fmt.Sprintf(
		"Added %s to the register. I will now DM you when it goes offline and when it comes online.",
		subject.Name))
}

func (h *Handler) remove(ctx context.Context, cmd *transport.Command) error {
	subject, ok := cmd.Users[OptBot]
	if !ok || subject.ID == "" {
		return errors.Join(ErrMissingOption, reply(ctx, cmd, msgRemoveFailed))
	}
	e := registry.Entry{SubjectID: subject.ID, WatcherID: cmd.Invoker.ID}
	if err := h.reg.Remove(ctx, e); err != nil {
		return errors.Join(err, reply(ctx, cmd, msgRemoveFailed))
	}
	return reply(ctx, cmd, fmt.Sprintf(
		"I have removed %s from the register. I will no longer DM you when the bot goes offline or comes online",
		subject.Name))
}

func (h *Handler) list(ctx context.Context, cmd *transport.Command) error {
	entries, err := h.reg.FetchByWatcher(ctx, cmd.Invoker.ID)
	if err != nil {
		return errors.Join(err, reply(ctx, cmd, msgListFailed))
	}
	if len(entries) == 0 {
		return reply(ctx, cmd, msgListEmpty)
	}
	var b strings.Builder
	b.WriteString(msgListHeader)
	for _, e := range entries {
		b.WriteByte('\n')
		b.WriteString(h.listLine(ctx, e.SubjectID))
	}
	return reply(ctx, cmd, b.String())
}

func (h *Handler) listLine(ctx context.Context, subjectID string) string {
	mention := transport.Mention(subjectID)
	if h.dir == nil {
		return mention
	}
	u, err := h.dir.LookupUser(ctx, subjectID)
	if err != nil || u.Name == "" {
		h.log.Debug("list name lookup failed", logx.String("subject", subjectID), logx.Err(err))
		return mention
	}
	return u.Name + ": " + mention
}

func (h *Handler) help(ctx context.Context, cmd *transport.Command) error {
	return reply(ctx, cmd, helpText)
}

func reply(ctx context.Context, cmd *transport.Command, text string) error {
	if cmd.Reply == nil {
		return nil
	}
	if err := cmd.Reply.Respond(ctx, text, true); err != nil {
		return fmt.Errorf("respond: %w", err)
	}
	return nil
}
