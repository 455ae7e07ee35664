package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"botmon/internal/transport"
)

func userFrom(u *discordgo.User) transport.User {
	if u == nil {
		return transport.User{}
	}
	name := u.GlobalName
	if name == "" {
		name = u.Username
	}
	return transport.User{ID: u.ID, Name: name, Bot: u.Bot}
}

// presenceFrom converts a gateway presence event. automated is the already
// resolved bot flag for the user.
func presenceFrom(p *discordgo.PresenceUpdate, automated bool, now time.Time) (transport.Presence, bool) {
	if p == nil || p.User == nil || p.User.ID == "" {
		return transport.Presence{}, false
	}
	return transport.Presence{
		UserID:     p.User.ID,
		Status:     string(p.Status),
		Automated:  automated,
		GuildID:    p.GuildID,
		ReceivedAt: now,
	}, true
}

// invokerOf returns the user behind an interaction: the member in guilds,
// the plain user in DMs.
func invokerOf(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// commandFrom extracts the command name, its invoker and every user-typed
// option resolved to a full user.
func commandFrom(i *discordgo.Interaction) (*transport.Command, bool) {
	if i == nil || i.Type != discordgo.InteractionApplicationCommand {
		return nil, false
	}
	data := i.ApplicationCommandData()
	inv := invokerOf(i)
	if inv == nil {
		return nil, false
	}
	cmd := &transport.Command{
		Name:    data.Name,
		Invoker: userFrom(inv),
		Users:   map[string]transport.User{},
	}
	for _, opt := range data.Options {
		if opt == nil || opt.Type != discordgo.ApplicationCommandOptionUser {
			continue
		}
		id, _ := opt.Value.(string)
		if id == "" {
			continue
		}
		u := transport.User{ID: id}
		if data.Resolved != nil {
			if ru, ok := data.Resolved.Users[id]; ok {
				u = userFrom(ru)
			}
		}
		cmd.Users[opt.Name] = u
	}
	return cmd, true
}

func applicationCommands(specs []transport.CommandSpec) []*discordgo.ApplicationCommand {
	admin := int64(discordgo.PermissionAdministrator)
	out := make([]*discordgo.ApplicationCommand, 0, len(specs))
	for _, s := range specs {
		ac := &discordgo.ApplicationCommand{Name: s.Name, Description: s.Description}
		if s.AdminOnly {
			ac.DefaultMemberPermissions = &admin
		}
		for _, o := range s.Users {
			ac.Options = append(ac.Options, &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        o.Name,
				Description: o.Description,
				Required:    o.Required,
			})
		}
		out = append(out, ac)
	}
	return out
}
