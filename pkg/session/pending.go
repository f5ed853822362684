package session

import (
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// MessageKind tells publish entries from subscribe entries.
type MessageKind int

const (
	KindPublish MessageKind = iota
	KindSubscribe
)

func (k MessageKind) String() string {
	if k == KindSubscribe {
		return "subscribe"
	}
	return "publish"
}

// PendingMessage is an operation submitted to the broker and not yet acknowledged.
type PendingMessage struct {
	Kind        MessageKind
	QoS         byte
	Topic       string
	Payload     []byte
	SubmittedAt time.Time
	// Timeout of 0 sets no deadline of its own: the entry lives for the sweep
	// grace only and is then expired as a timeout.
	Timeout time.Duration
	Label   string
}

// TimedOut reports whether an acknowledgement after elapsed missed the deadline.
// With a zero Timeout any acknowledgement that still finds its entry is on time.
func (m *PendingMessage) TimedOut(elapsed time.Duration) bool {
	return m.Timeout > 0 && elapsed > m.Timeout
}

// ExpiredMessage is an entry removed by Expire.
type ExpiredMessage struct {
	ID      uint16
	Message *PendingMessage
}

// PendingTable correlates message ids with in-flight operations. An id maps to
// at most one entry; Pop hands an entry out exactly once.
type PendingTable struct {
	entries cmap.ConcurrentMap[uint16, *PendingMessage]
	next    atomic.Uint32
}

// NewPendingTable creates an empty table.
func NewPendingTable() *PendingTable {
	return &PendingTable{
		entries: cmap.NewWithCustomShardingFunction[uint16, *PendingMessage](func(key uint16) uint32 {
			return uint32(key)
		}),
	}
}

// Insert stores msg under id. It returns false if id is already in flight.
func (t *PendingTable) Insert(id uint16, msg *PendingMessage) bool {
	return t.entries.SetIfAbsent(id, msg)
}

// Add allocates the next free id, wrapping at 65535 and skipping 0, and stores msg.
func (t *PendingTable) Add(msg *PendingMessage) (uint16, error) {
	for i := 0; i < 1<<16; i++ {
		id := uint16(t.next.Add(1))
		if id == 0 {
			continue
		}
		if t.Insert(id, msg) {
			return id, nil
		}
	}
	return 0, ErrTableFull
}

// Pop removes and returns the entry for id.
func (t *PendingTable) Pop(id uint16) (*PendingMessage, bool) {
	return t.entries.Pop(id)
}

// Len returns the number of in-flight entries.
func (t *PendingTable) Len() int {
	return t.entries.Count()
}

// Expire removes every entry older than its timeout plus grace and returns them.
// Removal is atomic per entry, so an entry is either expired here or popped by an
// acknowledgement, never both.
func (t *PendingTable) Expire(now time.Time, grace time.Duration) []ExpiredMessage {
	var expired []ExpiredMessage
	for _, id := range t.entries.Keys() {
		t.entries.RemoveCb(id, func(key uint16, msg *PendingMessage, exists bool) bool {
			if !exists || now.Sub(msg.SubmittedAt) <= msg.Timeout+grace {
				return false
			}
			expired = append(expired, ExpiredMessage{ID: key, Message: msg})
			return true
		})
	}
	return expired
}
