package queue

import (
	"time"

	"github.com/graydnsapconet/tgbot/internal/types"
)

// maxText is the maximum payload length retained in a slot; longer text is
// truncated on push.
const maxText = 1023

// Message is one pending work item for a sender: either raw inbound text
// awaiting a completion-service reply, or a command-originated reply whose
// text is already final (Direct) and should be sent as-is, bypassing the
// completion stage; command side effects defer to the queue rather than
// calling the platform client directly. IngressTime
// carries a monotonic reading (as produced by time.Now()); pacing
// computations use time.Since/Sub against it rather than converting to a
// wall-clock float, so they stay correct across NTP adjustments.
type Message struct {
	SenderID    types.SenderID
	ChatID      types.ChatID
	Text        string
	IngressTime time.Time

	Direct    bool
	ReplyText string
}

// userRing is a FIFO ring buffer for a single sender's pending messages. It
// is created lazily on first push and freed the instant its count reaches
// zero on pop, bounding memory for transient-sender workloads.
type userRing struct {
	senderID types.SenderID
	slots    []Message
	head     int
	tail     int
	count    int
	cap      int

	next *userRing // hash-chain link within a bucket
}

func newUserRing(sender types.SenderID, capacity int) *userRing {
	return &userRing{
		senderID: sender,
		slots:    make([]Message, capacity),
		cap:      capacity,
	}
}

func (r *userRing) full() bool  { return r.count == r.cap }
func (r *userRing) empty() bool { return r.count == 0 }

// push appends to the tail. Caller must have already verified !full().
func (r *userRing) push(m Message) {
	if len(m.Text) > maxText {
		m.Text = m.Text[:maxText]
	}
	r.slots[r.tail] = m
	r.tail = (r.tail + 1) & (r.cap - 1)
	r.count++
}

// pop removes and returns the head. Caller must have already verified !empty().
func (r *userRing) pop() Message {
	m := r.slots[r.head]
	r.slots[r.head] = Message{}
	r.head = (r.head + 1) & (r.cap - 1)
	r.count--
	return m
}

// roundUpRingSize clamps to [minRingSize, maxRingSize] and rounds up to the
// next power of two.
func roundUpRingSize(n int) int {
	if n < minRingSize {
		n = minRingSize
	}
	if n > maxRingSize {
		n = maxRingSize
	}
	size := 1
	for size < n {
		size <<= 1
	}
	if size > maxRingSize {
		size = maxRingSize
	}
	return size
}

const (
	minRingSize = 4
	maxRingSize = 256
)
