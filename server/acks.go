package server

import "sync"

const ackTableLimit = 4096

// ackTable remembers which session a message id was forwarded for, so a
// later client ACK can be routed to the original sender only. It is a small
// FIFO-bounded map: the relay keeps correlation ids, never message bodies.
type ackTable struct {
	mu    sync.Mutex
	limit int
	order []string
	byID  map[string]string
}

func newAckTable(limit int) *ackTable {
	return &ackTable{
		limit: limit,
		byID:  make(map[string]string, limit),
	}
}

func (t *ackTable) put(msgID, origin string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byID[msgID]; !ok {
		t.order = append(t.order, msgID)
		if len(t.order) > t.limit {
			oldest := t.order[0]
			t.order = t.order[1:]
			delete(t.byID, oldest)
		}
	}
	t.byID[msgID] = origin
}

func (t *ackTable) get(msgID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	origin, ok := t.byID[msgID]
	return origin, ok
}
