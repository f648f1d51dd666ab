package server

import (
	"context"
	"errors"
	"sync"
)

// ErrOutboxClosed is returned when sending to a torn down session
var ErrOutboxClosed = errors.New("outbox closed")

// Outbound delivers one serialized message to a session; it is also the notification target
type Outbound interface {
	Send(data []byte) error
}

// Outbox is an unbounded FIFO queue of outbound messages with a single consumer.
// Send never blocks, so dispatch and host pushes cannot stall on a slow peer.
type Outbox struct {
	mux    sync.Mutex
	items  [][]byte
	closed bool
	ready  chan struct{}
	done   chan struct{}
}

// Send enqueues data
func (o *Outbox) Send(data []byte) error {
	o.mux.Lock()
	if o.closed {
		o.mux.Unlock()
		return ErrOutboxClosed
	}
	o.items = append(o.items, data)
	o.mux.Unlock()
	select {
	case o.ready <- struct{}{}:
	default:
	}
	return nil
}

// pop dequeues the oldest message without blocking
func (o *Outbox) pop() ([]byte, bool) {
	o.mux.Lock()
	defer o.mux.Unlock()
	if o.closed || len(o.items) == 0 {
		return nil, false
	}
	data := o.items[0]
	o.items[0] = nil
	o.items = o.items[1:]
	return data, true
}

// Next blocks until a message is available, the outbox is closed or ctx is done
func (o *Outbox) Next(ctx context.Context) ([]byte, error) {
	for {
		if data, ok := o.pop(); ok {
			return data, nil
		}
		select {
		case <-o.ready:
		case <-o.done:
			return nil, ErrOutboxClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close drops queued messages and rejects further sends
func (o *Outbox) Close() {
	o.mux.Lock()
	defer o.mux.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.items = nil
	close(o.done)
}

// NewOutbox creates an empty outbox
func NewOutbox() *Outbox {
	return &Outbox{ready: make(chan struct{}, 1), done: make(chan struct{})}
}
