package bot

import "strings"

// command is the closed set of operator commands.
type command int

const (
	cmdUnknown command = iota
	cmdStart
	cmdHelp
	cmdBind
	cmdUnbind
	cmdAddFeed
	cmdRemoveFeed
	cmdListFeeds
	cmdReset
)

// commandSpec declares a command's policies as data: where it may be
// invoked from, whether it needs an argument, and whether it acts on a
// resolved target destination.
type commandSpec struct {
	directOnly  bool
	needsTarget bool
	usage       string // non-empty means an argument is required
}

var commands = map[string]command{
	"start":      cmdStart,
	"help":       cmdHelp,
	"bind":       cmdBind,
	"unbind":     cmdUnbind,
	"addfeed":    cmdAddFeed,
	"removefeed": cmdRemoveFeed,
	"listfeeds":  cmdListFeeds,
	"reset":      cmdReset,
}

var specs = map[command]commandSpec{
	cmdStart:      {},
	cmdHelp:       {},
	cmdBind:       {directOnly: true, usage: "Use <code>/bind @channel</code> or <code>/bind -100xxxx</code>"},
	cmdUnbind:     {directOnly: true},
	cmdAddFeed:    {needsTarget: true, usage: "Use <code>/addfeed https://site/rss</code>"},
	cmdRemoveFeed: {needsTarget: true, usage: "Use <code>/removefeed https://site/rss</code>"},
	cmdListFeeds:  {needsTarget: true},
	cmdReset:      {needsTarget: true},
}

// parseCommand resolves raw message text to a command and its argument
// string. The command token is the first whitespace-delimited word with
// any trailing @handle suffix stripped.
func parseCommand(text string) (command, string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return cmdUnknown, ""
	}

	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}

	cmd, ok := commands[name]
	if !ok {
		return cmdUnknown, ""
	}
	return cmd, strings.Join(fields[1:], " ")
}
