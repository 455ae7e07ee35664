// Package discord connects botmon to the Discord gateway and REST API.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	rtsup "botmon/internal/runtime/supervisor"
	"botmon/internal/transport"
	logx "botmon/pkg/logx"
)

const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildPresences |
	discordgo.IntentsDirectMessages

type Config struct {
	Token      string
	StatusText string
}

type Adapter struct {
	cfg Config
	log logx.Logger
	s   *discordgo.Session

	runMu    sync.Mutex
	running  bool
	ctx      context.Context
	out      chan<- transport.Update
	sup      *rtsup.Supervisor
	removers []func()

	cmdMu    sync.Mutex
	commands []transport.CommandSpec

	// The bot flag of an account never changes, so lookups are cached forever.
	bots sync.Map // user id -> bool
}

var (
	_ transport.Adapter          = (*Adapter)(nil)
	_ transport.CommandRegistrar = (*Adapter)(nil)
)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	tok := strings.TrimSpace(cfg.Token)
	if tok == "" {
		return nil, errors.New("discord token is empty")
	}
	s, err := discordgo.New("Bot " + tok)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = intents
	s.StateEnabled = true
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, log: log.With(logx.String("comp", "discord")), s: s}, nil
}

// SetCommands sets the command list published on every Ready.
func (a *Adapter) SetCommands(cmds []transport.CommandSpec) {
	a.cmdMu.Lock()
	a.commands = append([]transport.CommandSpec(nil), cmds...)
	a.cmdMu.Unlock()
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(false))
	a.ctx = a.sup.Context()
	a.out = out
	a.removers = []func(){
		a.s.AddHandler(a.onReady),
		a.s.AddHandler(a.onPresence),
		a.s.AddHandler(a.onInteraction),
	}
	if err := a.s.Open(); err != nil {
		for _, rm := range a.removers {
			rm()
		}
		a.removers = nil
		a.sup.Cancel()
		return fmt.Errorf("open gateway: %w", err)
	}
	a.running = true
	a.log.Info("gateway connected")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = false
	sup := a.sup
	for _, rm := range a.removers {
		rm()
	}
	a.removers = nil
	a.runMu.Unlock()

	sup.Cancel()
	err := a.s.Close()
	if werr := sup.Wait(ctx); werr != nil && ctx.Err() != nil {
		a.log.Warn("discord stop timed out", logx.Err(werr))
	}
	a.log.Info("gateway closed")
	return err
}

func (a *Adapter) forward(up transport.Update) {
	a.runMu.Lock()
	ctx, out := a.ctx, a.out
	a.runMu.Unlock()
	if out == nil {
		return
	}
	// Blocks so a slow consumer pushes back on the gateway instead of losing
	// transitions.
	select {
	case out <- up:
	case <-ctx.Done():
	}
}

func (a *Adapter) onReady(s *discordgo.Session, r *discordgo.Ready) {
	a.log.Info("gateway ready",
		logx.String("user", r.User.Username),
		logx.Int("guilds", len(r.Guilds)),
	)
	if st := strings.TrimSpace(a.cfg.StatusText); st != "" {
		if err := s.UpdateGameStatus(0, st); err != nil {
			a.log.Warn("status update failed", logx.Err(err))
		}
	}

	a.cmdMu.Lock()
	specs := a.commands
	a.cmdMu.Unlock()
	if len(specs) == 0 {
		return
	}
	a.runMu.Lock()
	sup := a.sup
	a.runMu.Unlock()
	appID := r.User.ID
	if r.Application != nil && r.Application.ID != "" {
		appID = r.Application.ID
	}
	sup.Go("commands.register", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		got, err := s.ApplicationCommandBulkOverwrite(appID, "", applicationCommands(specs), discordgo.WithContext(ctx))
		if err != nil {
			a.log.Error("command registration failed", logx.Err(err))
			return nil
		}
		a.log.Info("commands registered", logx.Int("count", len(got)))
		return nil
	})
}

func (a *Adapter) onPresence(s *discordgo.Session, p *discordgo.PresenceUpdate) {
	if p == nil || p.User == nil {
		return
	}
	automated := a.isBot(s, p.GuildID, p.User)
	pr, ok := presenceFrom(p, automated, time.Now())
	if !ok {
		return
	}
	a.forward(transport.Update{Kind: transport.UpdatePresence, Presence: &pr})
}

// isBot resolves the bot flag from the payload, the member cache, the local
// cache and finally REST. Unknown is treated as false.
func (a *Adapter) isBot(s *discordgo.Session, guildID string, u *discordgo.User) bool {
	if u.Bot {
		a.bots.Store(u.ID, true)
		return true
	}
	if v, ok := a.bots.Load(u.ID); ok {
		return v.(bool)
	}
	if guildID != "" && s.State != nil {
		if m, err := s.State.Member(guildID, u.ID); err == nil && m.User != nil {
			a.bots.Store(u.ID, m.User.Bot)
			return m.User.Bot
		}
	}
	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()
	full, err := s.User(u.ID, discordgo.WithContext(ctx))
	if err != nil {
		a.log.Debug("bot flag lookup failed", logx.String("user", u.ID), logx.Err(err))
		return false
	}
	a.bots.Store(u.ID, full.Bot)
	return full.Bot
}

func (a *Adapter) onInteraction(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic == nil || ic.Interaction == nil {
		return
	}
	cmd, ok := commandFrom(ic.Interaction)
	if !ok {
		return
	}
	cmd.Reply = &responder{s: s, i: ic.Interaction}
	a.forward(transport.Update{Kind: transport.UpdateCommand, Command: cmd})
}

type responder struct {
	s *discordgo.Session
	i *discordgo.Interaction
}

func (r *responder) Respond(ctx context.Context, text string, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{Content: text}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx))
}

func (a *Adapter) LookupUser(ctx context.Context, userID string) (transport.User, error) {
	u, err := a.s.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return transport.User{}, fmt.Errorf("lookup user %s: %w", userID, err)
	}
	a.bots.Store(u.ID, u.Bot)
	return userFrom(u), nil
}

func (a *Adapter) SendDirect(ctx context.Context, userID, text string) error {
	ch, err := a.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	if _, err := a.s.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send dm: %w", err)
	}
	return nil
}
