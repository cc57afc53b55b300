package agent

import (
	"sync"

	"goa.design/agentcore/message"
	"goa.design/agentcore/turnloop"
)

// queue is a FIFO of pending messages, drained atomically with respect to
// pushes (§5 "Drains are atomic w.r.t. pushes: a dequeue returns a coherent
// snapshot"). It implements turnloop.Source.
type queue struct {
	mu    sync.Mutex
	items []message.Message
}

func (q *queue) push(m message.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, m)
}

// Drain removes and returns queued messages according to mode. An empty
// result leaves the queue untouched and must not be treated as a state
// change by the caller (§8.8).
func (q *queue) Drain(mode turnloop.QueueMode) []message.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	if mode == turnloop.DrainOne {
		head := q.items[0]
		q.items = q.items[1:]
		return []message.Message{head}
	}
	out := q.items
	q.items = nil
	return out
}
