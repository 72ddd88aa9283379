// Package dispatcher parses and routes slash-commands.
package dispatcher

import (
	"time"

	"github.com/graydnsapconet/tgbot/internal/accesslist"
	"github.com/graydnsapconet/tgbot/internal/config"
	"github.com/graydnsapconet/tgbot/internal/types"
	"github.com/graydnsapconet/tgbot/pkg/lifecycle"
)

// Enqueuer is the narrow slice of queue.Queue command handlers need: the
// ability to schedule an already-finalized reply. Commands never call the
// platform client directly; every side effect goes through this.
type Enqueuer interface {
	PushDirect(sender types.SenderID, chat types.ChatID, replyText string, now time.Time) error
}

// Context is the read-only bundle passed to every command handler. It is
// read-only to handlers except through the Access handle.
type Context struct {
	Config *config.Config
	Access *accesslist.List
	Queue  Enqueuer

	Sender types.SenderID
	Chat   types.ChatID

	BotUsername string
	BootTime    time.Time
	WorkerCount int

	Depth     func() int
	RingCount func() int
	PoolState func() lifecycle.State
}

func (c Context) isAdmin() bool {
	return c.Config.AdminID != 0 && int64(c.Sender) == c.Config.AdminID
}

func (c Context) reply(text string) {
	_ = c.Queue.PushDirect(c.Sender, c.Chat, text, time.Now())
}

func (c Context) replyTo(target types.SenderID, chat types.ChatID, text string) {
	_ = c.Queue.PushDirect(target, chat, text, time.Now())
}
