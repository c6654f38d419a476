package console

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/danmuck/conswire/internal/protocol/messages"
)

// PendingReply tracks one read-reply message the operator has not answered.
type PendingReply struct {
	MessageID      uint32
	Source         string
	Lines          []string
	MaxReplyLength uint32
	QueuedAt       time.Time
	Deliveries     int
	LastDeliverAt  time.Time
}

func (p PendingReply) message() messages.ReadReply {
	return messages.NewReadReply(p.MessageID, p.Source, p.MaxReplyLength, p.Lines...)
}

// pendingReplies stores outstanding read-replies by message id.
type pendingReplies struct {
	mu    sync.RWMutex
	items map[uint32]PendingReply
}

func newPendingReplies() *pendingReplies {
	return &pendingReplies{items: make(map[uint32]PendingReply)}
}

func (p *pendingReplies) upsert(item PendingReply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item.Lines = slices.Clone(item.Lines)
	p.items[item.MessageID] = item
}

func (p *pendingReplies) markDelivered(id uint32, at time.Time, n int) (PendingReply, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[id]
	if !ok {
		return PendingReply{}, false
	}
	item.Deliveries += n
	item.LastDeliverAt = at
	p.items[id] = item
	return item, true
}

func (p *pendingReplies) remove(id uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.items[id]
	delete(p.items, id)
	return ok
}

func (p *pendingReplies) get(id uint32) (PendingReply, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	item, ok := p.items[id]
	return item, ok
}

func (p *pendingReplies) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.items)
}

// list returns items ordered by message id.
func (p *pendingReplies) list() []PendingReply {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PendingReply, 0, len(p.items))
	for _, item := range p.items {
		item.Lines = slices.Clone(item.Lines)
		out = append(out, item)
	}
	slices.SortFunc(out, func(a, b PendingReply) int {
		return cmp.Compare(a.MessageID, b.MessageID)
	})
	return out
}
