// Package inbound wires a single platform update to the command dispatcher,
// the access list, and the message queue: the update handler that sits
// between ingress (webhook or poll) and the rest of the dispatch core.
package inbound

import (
	"time"

	"go.uber.org/zap"

	"github.com/graydnsapconet/tgbot/internal/accesslist"
	"github.com/graydnsapconet/tgbot/internal/config"
	"github.com/graydnsapconet/tgbot/internal/dispatcher"
	"github.com/graydnsapconet/tgbot/internal/queue"
	"github.com/graydnsapconet/tgbot/internal/webhook"
	"github.com/graydnsapconet/tgbot/pkg/lifecycle"
)

// poolStater is the narrow slice of workerpool.Pool the router needs for
// /status reporting: its current lifecycle state. Kept as an interface so
// this package does not import workerpool (which itself imports queue).
type poolStater interface {
	State() lifecycle.State
}

// Router implements webhook.Handler (and serves the same role for any
// future poll-based ingress): every update is first offered to the command
// dispatcher; slash-commands are always routed there regardless of access
// list membership; non-command text is queued for a reply only if the
// sender is on the access list.
type Router struct {
	cfg         *config.Config
	access      *accesslist.List
	queue       *queue.Queue
	pool        poolStater
	botUsername string
	bootTime    time.Time
	workerCount int
	log         *zap.Logger
}

// New builds a Router. pool may be nil if no worker pool state should be
// surfaced through /status.
func New(cfg *config.Config, access *accesslist.List, q *queue.Queue, pool poolStater, botUsername string, workerCount int, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		cfg:         cfg,
		access:      access,
		queue:       q,
		pool:        pool,
		botUsername: botUsername,
		bootTime:    time.Now(),
		workerCount: workerCount,
		log:         log,
	}
}

// HandleUpdate implements webhook.Handler.
func (r *Router) HandleUpdate(u webhook.Update) {
	if !u.Sender.Valid() {
		r.log.Debug("dropping update with unset sender id")
		return
	}

	ctx := dispatcher.Context{
		Config:      r.cfg,
		Access:      r.access,
		Queue:       r.queue,
		Sender:      u.Sender,
		Chat:        u.Chat,
		BotUsername: r.botUsername,
		BootTime:    r.bootTime,
		WorkerCount: r.workerCount,
		Depth:       r.queue.Depth,
		RingCount:   r.queue.RingCount,
		PoolState:   r.poolState,
	}

	if dispatcher.Dispatch(ctx, u.Text) == dispatcher.Handled {
		return
	}

	if !r.access.Contains(u.Sender) {
		r.log.Debug("dropping update from sender not on the access list",
			zap.Int64("sender_id", int64(u.Sender)))
		return
	}

	if err := r.queue.Push(u.Sender, u.Chat, u.Text, time.Now()); err != nil {
		r.log.Warn("queue full, dropping message",
			zap.Int64("sender_id", int64(u.Sender)), zap.Error(err))
	}
}

func (r *Router) poolState() lifecycle.State {
	if r.pool == nil {
		return lifecycle.Idle
	}
	return r.pool.State()
}
