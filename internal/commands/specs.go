package commands

import "botmon/internal/transport"

const (
	CmdAdd    = "add"
	CmdRemove = "remove"
	CmdList   = "list"
	CmdHelp   = "help"

	// OptBot is the user option naming the subject for add and remove.
	OptBot = "bot"
)

const helpText = `I am Monitor Bot
I monitor bots and send you a DM when they go offline or come back online.
I need the GUILD_PRESENCES and DIRECT_MESSAGES intents to work.

Commands (administrator only):
/add <bot> - start watching a bot
/remove <bot> - stop watching a bot
/list - show the bots you are watching

/help - show this message`

// Specs is the command list published to the platform.
func Specs() []transport.CommandSpec {
	botOpt := func(desc string) []transport.CommandOption {
		return []transport.CommandOption{{Name: OptBot, Description: desc, Required: true}}
	}
	return []transport.CommandSpec{
		{Name: CmdAdd, Description: "Add a bot to a register", AdminOnly: true, Users: botOpt("The bot you want to add to the register")},
		{Name: CmdRemove, Description: "Remove a bot from the register", AdminOnly: true, Users: botOpt("The bot you want to remove from the register")},
		{Name: CmdList, Description: "List all the warnings you currently have active", AdminOnly: true},
		{Name: CmdHelp, Description: "Shows the help message"},
	}
}
