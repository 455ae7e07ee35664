package transport

import (
	"context"
	"time"
)

type UpdateKind string

const (
	UpdatePresence UpdateKind = "presence"
	UpdateCommand  UpdateKind = "command"
)

// Update is one unit of inbound work from the gateway.
type Update struct {
	Kind     UpdateKind
	Presence *Presence
	Command  *Command
}

// User is a platform account as far as botmon cares.
type User struct {
	ID   string
	Name string
	Bot  bool
}

// Presence is a raw presence change. Automated is resolved by the adapter
// (payload, member cache, then user lookup); unknown becomes false.
type Presence struct {
	UserID     string
	Status     string
	Automated  bool
	GuildID    string
	ReceivedAt time.Time
}

// Command is a slash command invocation with its user-typed options resolved.
type Command struct {
	Name    string
	Invoker User
	Users   map[string]User
	Reply   Responder
}

// Responder answers a single command invocation.
type Responder interface {
	Respond(ctx context.Context, text string, ephemeral bool) error
}

// Directory resolves platform users.
type Directory interface {
	LookupUser(ctx context.Context, userID string) (User, error)
}

// DirectMessenger sends a private message to one user.
type DirectMessenger interface {
	SendDirect(ctx context.Context, userID, text string) error
}

// Adapter is a chat platform connection.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	Directory
	DirectMessenger
}

// CommandOption describes a user-typed command option.
type CommandOption struct {
	Name        string
	Description string
	Required    bool
}

// CommandSpec is one slash command as registered with the platform.
type CommandSpec struct {
	Name        string
	Description string
	AdminOnly   bool
	Users       []CommandOption
}

// CommandRegistrar is an optional interface for adapters that publish a
// command list to the platform.
type CommandRegistrar interface {
	SetCommands(cmds []CommandSpec)
}

// Mention renders a user reference the platform turns into a clickable name.
func Mention(userID string) string { return "<@" + userID + ">" }
