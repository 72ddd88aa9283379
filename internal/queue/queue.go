// Package queue implements the fair, bounded, multi-producer/multi-consumer
// user-keyed message queue: a fixed 64-bucket hash table of per-sender
// rings, served round-robin by bucket.
package queue

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/graydnsapconet/tgbot/internal/types"
)

const bucketCount = 64
const bucketMask = bucketCount - 1

// ErrFull is returned by Push when the target sender's ring is at capacity.
// Overflow policy is drop-newest: the caller's message is rejected, nothing
// already queued is displaced.
var ErrFull = errors.New("queue: sender ring is full")

// ErrClosed is returned by Pop once shutdown has been signalled and every
// ring has drained.
var ErrClosed = errors.New("queue: closed")

// Queue is the per-sender bounded, fair, multi-producer/multi-consumer queue.
// The zero value is not usable; construct with New.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	buckets  [bucketCount]*userRing
	ringSize int

	totalPending int
	liveRings    int
	rrBucket     int

	shutdown bool

	log *zap.Logger
}

// New creates a Queue whose per-sender ring capacity is ringSize, rounded up
// to a power of two in [4, 256].
func New(ringSize int, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	q := &Queue{
		ringSize: roundUpRingSize(ringSize),
		log:      log,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push stamps text with nowMonotonic (a time.Now() reading supplied by the
// caller) and appends it to sender's
// ring, creating the ring on first use. Text longer than 1023 bytes is
// truncated. Returns ErrFull if the ring is already at capacity. Push after
// shutdown is still accepted; the flag gates only popper wakeups, so
// workers drain remaining items before exit.
func (q *Queue) Push(sender types.SenderID, chat types.ChatID, text string, nowMonotonic time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := bucketFor(sender)
	ring := q.findInChain(idx, sender)
	if ring == nil {
		ring = newUserRing(sender, q.ringSize)
		ring.next = q.buckets[idx]
		q.buckets[idx] = ring
		q.liveRings++
	}

	if ring.full() {
		q.log.Warn("queue full, dropping newest",
			zap.Int64("sender_id", int64(sender)),
			zap.Int("bucket", idx),
		)
		return ErrFull
	}

	ring.push(Message{
		SenderID:    sender,
		ChatID:      chat,
		Text:        text,
		IngressTime: nowMonotonic,
	})
	q.totalPending++
	q.cond.Signal()
	return nil
}

// PushDirect enqueues a reply whose text is already final (a command
// handler's output), keyed by the same sender/ring mechanics as Push, but
// marked so the worker pool sends it as-is instead of routing it through
// the completion service.
func (q *Queue) PushDirect(sender types.SenderID, chat types.ChatID, replyText string, nowMonotonic time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := bucketFor(sender)
	ring := q.findInChain(idx, sender)
	if ring == nil {
		ring = newUserRing(sender, q.ringSize)
		ring.next = q.buckets[idx]
		q.buckets[idx] = ring
		q.liveRings++
	}

	if ring.full() {
		q.log.Warn("queue full, dropping direct reply",
			zap.Int64("sender_id", int64(sender)),
			zap.Int("bucket", idx),
		)
		return ErrFull
	}

	ring.push(Message{
		SenderID:    sender,
		ChatID:      chat,
		IngressTime: nowMonotonic,
		Direct:      true,
		ReplyText:   replyText,
	})
	q.totalPending++
	q.cond.Signal()
	return nil
}

// Pop blocks until a message is available or the queue has been shut down
// and drained, in which case it returns ErrClosed. Fairness: starting at
// rrBucket, buckets are walked modulo 64; within a bucket, the chain is
// walked head-first. The bucket immediately after the one served becomes
// the new rrBucket.
func (q *Queue) Pop() (Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if msg, bucket, ok := q.popLocked(); ok {
			q.rrBucket = (bucket + 1) & bucketMask
			return msg, nil
		}
		if q.shutdown && q.totalPending == 0 {
			return Message{}, ErrClosed
		}
		q.cond.Wait()
	}
}

func (q *Queue) popLocked() (Message, int, bool) {
	for i := 0; i < bucketCount; i++ {
		idx := (q.rrBucket + i) & bucketMask
		ring := q.buckets[idx]
		var prev *userRing
		for ring != nil {
			if !ring.empty() {
				msg := ring.pop()
				q.totalPending--
				if ring.empty() {
					q.unlink(idx, prev, ring)
					q.liveRings--
				}
				return msg, idx, true
			}
			prev = ring
			ring = ring.next
		}
	}
	return Message{}, 0, false
}

func (q *Queue) unlink(bucket int, prev, ring *userRing) {
	if prev == nil {
		q.buckets[bucket] = ring.next
	} else {
		prev.next = ring.next
	}
	ring.next = nil
}

func (q *Queue) findInChain(bucket int, sender types.SenderID) *userRing {
	for r := q.buckets[bucket]; r != nil; r = r.next {
		if r.senderID == sender {
			return r
		}
	}
	return nil
}

// Shutdown marks the queue closed and wakes every blocked popper. Poppers
// continue draining pending rings; Pop only returns ErrClosed once every
// ring has emptied. Idempotent.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.shutdown {
		return
	}
	q.shutdown = true
	q.cond.Broadcast()
}

// Depth returns the total number of pending messages across all senders.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalPending
}

// RingCount returns the number of currently live (non-empty) sender rings.
func (q *Queue) RingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.liveRings
}

// Destroy releases every ring. Callers must ensure no goroutine is blocked
// in Pop/Push afterward.
func (q *Queue) Destroy() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.buckets {
		q.buckets[i] = nil
	}
	q.totalPending = 0
	q.liveRings = 0
}
