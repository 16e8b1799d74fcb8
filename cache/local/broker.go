package local

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultBuffer = 256

// Broker fans published payloads out to every subscriber of a channel.
// A subscriber whose buffer is full misses the payload; publishers never
// block.
type Broker struct {
	mu      sync.RWMutex
	subs    map[string]map[chan string]struct{}
	buf     int
	dropped atomic.Int64
}

// NewBroker creates a Broker with buf slots per subscriber.
func NewBroker(buf int) *Broker {
	if buf <= 0 {
		buf = defaultBuffer
	}
	return &Broker{subs: make(map[string]map[chan string]struct{}), buf: buf}
}

// Publish delivers payload to the current subscribers of channel.
func (b *Broker) Publish(_ context.Context, channel, payload string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Dropped counts payloads lost to full subscriber buffers.
func (b *Broker) Dropped() int64 { return b.dropped.Load() }

// Subscribe registers a subscriber on channel. The returned cancel
// unregisters it and closes the channel; it may be called repeatedly.
func (b *Broker) Subscribe(_ context.Context, channel string) (<-chan string, func(), error) {
	ch := make(chan string, b.buf)
	b.mu.Lock()
	set, ok := b.subs[channel]
	if !ok {
		set = make(map[chan string]struct{})
		b.subs[channel] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[channel], ch)
			if len(b.subs[channel]) == 0 {
				delete(b.subs, channel)
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}
