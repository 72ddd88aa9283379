package dispatcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/graydnsapconet/tgbot/internal/accesslist"
	"github.com/graydnsapconet/tgbot/internal/types"
	"github.com/graydnsapconet/tgbot/pkg/lifecycle"
)

func handleStart(ctx Context, _ string) {
	ctx.reply("Hi! I'm ready to chat. Send me a message.")
}

func handleHelp(ctx Context, _ string) {
	ctx.reply("Commands: /start, /help" +
		" | admins: /allow <id>, /revoke <id>, /status")
}

func handleAllow(ctx Context, arg string) {
	id, ok := parseSenderArg(arg)
	if !ok {
		ctx.reply("usage: /allow <numeric id>")
		return
	}

	code, err := ctx.Access.Add(types.SenderID(id))
	switch {
	case errors.Is(err, accesslist.ErrFull):
		ctx.reply("access list is full")
	case err != nil:
		ctx.reply("could not update the access list")
	case code == 1:
		ctx.reply(fmt.Sprintf("%d is already allowed", id))
	default:
		ctx.reply(fmt.Sprintf("%d has been granted access", id))
		ctx.replyTo(types.SenderID(id), types.ChatID(id),
			"You've been granted access to this bot.")
	}
}

func handleRevoke(ctx Context, arg string) {
	id, ok := parseSenderArg(arg)
	if !ok {
		ctx.reply("usage: /revoke <numeric id>")
		return
	}

	code, err := ctx.Access.Remove(types.SenderID(id))
	switch {
	case err != nil:
		ctx.reply("could not update the access list")
	case code == 1:
		ctx.reply(fmt.Sprintf("%d was not on the access list", id))
	default:
		ctx.reply(fmt.Sprintf("%d has been revoked", id))
	}
}

func handleStatus(ctx Context, _ string) {
	uptime := time.Since(ctx.BootTime).Round(time.Second)
	state := lifecycle.Idle
	if ctx.PoolState != nil {
		state = ctx.PoolState()
	}
	ctx.reply(fmt.Sprintf(
		"queue depth: %d, live senders: %d, workers: %d (%s), uptime: %s, allowed senders: %d",
		ctx.Depth(), ctx.RingCount(), ctx.WorkerCount, state, uptime, ctx.Access.Count(),
	))
}
