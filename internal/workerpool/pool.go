// Package workerpool drains the message queue with a fixed set of workers,
// enforcing per-sender reply pacing and consulting an external completion
// service before sending a reply.
package workerpool

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/graydnsapconet/tgbot/internal/completion"
	"github.com/graydnsapconet/tgbot/internal/queue"
	"github.com/graydnsapconet/tgbot/internal/sender"
	"github.com/graydnsapconet/tgbot/pkg/lifecycle"
)

// fallbackReply is sent when the completion service fails or its reply is
// empty after stripping reasoning-envelope markers.
const fallbackReply = "Sorry, I couldn't come up with a reply just now."

// Config configures a Pool.
type Config struct {
	Workers       int
	ReplyDelay    time.Duration
	TypingEnabled bool
}

// NewCompletionClient builds a worker's dedicated completion client; called
// once per worker because the underlying transport is single-threaded.
type NewCompletionClient func() completion.Client

// Pool drains a queue.Queue with Config.Workers goroutines.
type Pool struct {
	cfg       Config
	q         *queue.Queue
	newClient NewCompletionClient
	sndr      sender.Sender
	log       *zap.Logger

	life   *lifecycle.Once
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Pool. newClient and sndr must be non-nil.
func New(cfg Config, q *queue.Queue, newClient NewCompletionClient, sndr sender.Sender, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		cfg:       cfg,
		q:         q,
		newClient: newClient,
		sndr:      sndr,
		log:       log,
		life:      lifecycle.NewOnce(),
	}
}

// Start launches the worker goroutines. Idempotent.
func (p *Pool) Start() error {
	return p.life.Start(func() error {
		p.ctx, p.cancel = context.WithCancel(context.Background())
		for i := 0; i < p.cfg.Workers; i++ {
			p.wg.Add(1)
			go p.run(i)
		}
		return nil
	})
}

// Stop signals every worker to abort in-flight work, shuts down the queue
// so blocked Pop calls wake, and waits for all workers to exit. Idempotent.
func (p *Pool) Stop() error {
	return p.life.Stop(func() error {
		p.cancel()
		p.q.Shutdown()
		p.wg.Wait()
		return nil
	})
}

// State reports the pool's current lifecycle state. Surfaced through the
// /status command and startup/shutdown logging.
func (p *Pool) State() lifecycle.State {
	return p.life.State()
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	client := p.newClient()

	for {
		msg, err := p.q.Pop()
		if err != nil {
			return // queue.ErrClosed
		}
		p.handle(id, client, msg)
	}
}

func (p *Pool) handle(id int, client completion.Client, msg queue.Message) {
	wait := p.cfg.ReplyDelay - time.Since(msg.IngressTime)
	if wait > 0 && !p.sleepInterruptible(wait) {
		return
	}

	if msg.Direct {
		if err := p.sndr.SendMessage(p.ctx, msg.ChatID, msg.ReplyText); err != nil {
			p.log.Warn("send direct reply failed",
				zap.Int("worker", id),
				zap.Int64("chat_id", int64(msg.ChatID)),
				zap.Error(err),
			)
		}
		return
	}

	if p.cfg.TypingEnabled {
		if err := p.sndr.SendTyping(p.ctx, msg.ChatID); err != nil {
			p.log.Debug("typing ack failed", zap.Int("worker", id), zap.Error(err))
		}
	}

	reply, err := client.Complete(p.ctx, msg.Text)
	if err != nil {
		p.log.Warn("completion request failed", zap.Int("worker", id), zap.Error(err))
		reply = fallbackReply
	}

	stripped, empty := StripThinking(reply)
	if empty {
		stripped = fallbackReply
	}

	if err := p.sndr.SendMessage(p.ctx, msg.ChatID, stripped); err != nil {
		p.log.Warn("send reply failed",
			zap.Int("worker", id),
			zap.Int64("chat_id", int64(msg.ChatID)),
			zap.Error(err),
		)
	}
}

// sleepInterruptible waits for d or until the pool is stopping, whichever
// comes first. Returns false if interrupted by shutdown.
func (p *Pool) sleepInterruptible(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-p.ctx.Done():
		return false
	}
}
