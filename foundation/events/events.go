// Package events fans node events out to registered receivers such as
// websocket viewers.
package events

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownID is returned when releasing an id that was never acquired.
var ErrUnknownID = errors.New("unknown id")

// defaultBuffer is used when no buffer size is provided. A message is
// dropped when a receiver's buffer is full.
const defaultBuffer = 100

// Events maintains a mapping of unique id and channels so goroutines
// can register and receive events.
type Events struct {
	mu     sync.RWMutex
	m      map[string]chan string
	buffer int
}

// New constructs an events for registering and receiving events. Each
// receiver can hold buffer undelivered messages.
func New(buffer int) *Events {
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	return &Events{
		m:      make(map[string]chan string),
		buffer: buffer,
	}
}

// Shutdown closes and removes all channels that were provided by
// the call to Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}

// Acquire takes a unique id and returns a channel that can be used
// to receive events.
func (evt *Events) Acquire(id string) <-chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		ch = make(chan string, evt.buffer)
		evt.m[id] = ch
	}

	return ch
}

// Release closes and removes the channel that was provided by
// the call to Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q: %w", id, ErrUnknownID)
	}

	delete(evt.m, id)
	close(ch)
	return nil
}

// Len returns the number of registered receivers.
func (evt *Events) Len() int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return len(evt.m)
}

// Send formats the message and signals it to every registered channel.
// Send will not block waiting for a receiver on any given channel. Its
// signature matches the event handlers of the blockchain packages.
func (evt *Events) Send(v string, args ...any) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	if len(evt.m) == 0 {
		return
	}

	s := fmt.Sprintf(v, args...)
	for _, ch := range evt.m {
		select {
		case ch <- s:
		default:
		}
	}
}
