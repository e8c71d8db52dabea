// Package transport provides in-process, rank-addressed message passing
// between the workers of one tspec run: point-to-point send/receive with
// selective (source, tag) matching plus the collectives built on top of it.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"context"
	"sync"
)

// mailbox is a rank's receive queue. Arrival order is preserved, so that
// messages from a given source with a given tag are matched FIFO.
// Single consumer: only the owning rank takes from it.
type mailbox struct {
	notify chan struct{}
	q      []*Msg
	mu     sync.Mutex
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (mb *mailbox) put(msg *Msg) {
	mb.mu.Lock()
	mb.q = append(mb.q, msg)
	mb.mu.Unlock()
	select {
	case mb.notify <- struct{}{}:
	default:
	}
}

// take blocks until the first queued message satisfying match arrives.
func (mb *mailbox) take(ctx context.Context, g *Group, match func(*Msg) bool) (*Msg, error) {
	for {
		if msg := mb.dequeue(match); msg != nil {
			return msg, nil
		}
		select {
		case <-mb.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-g.abortCh:
			return nil, g.Aborted()
		}
	}
}

func (mb *mailbox) dequeue(match func(*Msg) bool) *Msg {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for i, msg := range mb.q {
		if match(msg) {
			copy(mb.q[i:], mb.q[i+1:])
			mb.q[len(mb.q)-1] = nil
			mb.q = mb.q[:len(mb.q)-1]
			return msg
		}
	}
	return nil
}

func (mb *mailbox) pending() int {
	mb.mu.Lock()
	n := len(mb.q)
	mb.mu.Unlock()
	return n
}
