package dispatcher

import (
	"sort"
	"strconv"
	"strings"
)

// Result reports whether a slash-command was dispatched to a handler.
type Result int

const (
	// Unhandled means the text either wasn't a recognized command, or
	// named a different bot via @botname and was deliberately skipped.
	Unhandled Result = iota
	// Handled means a known command was answered: either its handler ran
	// (even if it rejected the argument) or the caller was refused as not
	// authorized; the slash was consumed either way.
	Handled
)

type argShape int

const (
	noArg argShape = iota
	oneArg
)

type command struct {
	name       string
	shape      argShape
	adminOnly  bool
	handle     func(ctx Context, arg string)
}

// table is kept alphabetically sorted by name so lookup is a binary search
// with no allocation.
var table = []command{
	{name: "allow", shape: oneArg, adminOnly: true, handle: handleAllow},
	{name: "help", shape: noArg, handle: handleHelp},
	{name: "revoke", shape: oneArg, adminOnly: true, handle: handleRevoke},
	{name: "start", shape: noArg, handle: handleStart},
	{name: "status", shape: noArg, adminOnly: true, handle: handleStatus},
}

func lookup(name string) (command, bool) {
	i := sort.Search(len(table), func(i int) bool { return table[i].name >= name })
	if i < len(table) && table[i].name == name {
		return table[i], true
	}
	return command{}, false
}

// Dispatch parses text as a slash-command and routes it to a handler.
// Non-command text (not starting with "/") and unknown commands return
// Unhandled, as does a command addressed to a different bot via @botname.
func Dispatch(ctx Context, text string) Result {
	if !strings.HasPrefix(text, "/") {
		return Unhandled
	}

	name, arg, ok := parseCommand(text, ctx.BotUsername)
	if !ok {
		return Unhandled
	}

	cmd, found := lookup(name)
	if !found {
		return Unhandled
	}

	if cmd.adminOnly && !ctx.isAdmin() {
		ctx.reply("you are not authorized to use this command")
		return Handled
	}

	switch cmd.shape {
	case noArg:
		cmd.handle(ctx, "")
	case oneArg:
		cmd.handle(ctx, arg)
	}
	return Handled
}

// parseCommand splits "/name@botname arg..." into name and the remainder of
// the line as arg. An @suffix that names a different bot makes the whole
// command unrecognized (caller returns Unhandled); a matching suffix
// (case-insensitive) is consumed silently.
func parseCommand(text string, botUsername string) (name, arg string, ok bool) {
	body := text[1:] // drop leading '/'
	head := body
	rest := ""
	if i := strings.IndexByte(body, ' '); i >= 0 {
		head = body[:i]
		rest = strings.TrimSpace(body[i+1:])
	}

	name = head
	if at := strings.IndexByte(head, '@'); at >= 0 {
		suffix := head[at+1:]
		name = head[:at]
		if botUsername == "" || !strings.EqualFold(suffix, botUsername) {
			return "", "", false
		}
	}

	if name == "" {
		return "", "", false
	}
	return strings.ToLower(name), rest, true
}

// parseSenderArg parses a command's single argument as an exact, whole
// decimal int64, rejecting 0 as an invalid identifier.
func parseSenderArg(arg string) (int64, bool) {
	if arg == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, false
	}
	if v == 0 {
		return 0, false
	}
	return v, true
}
