// Package bus broadcasts values from one producer to several consumers.
package bus

import (
	"context"
	"log"
	"sync"
)

// FanOut broadcasts values from a single input channel to N named output
// channels. Lossy subscribers drop values when their channel is full.
// Blocking subscribers apply backpressure: Run waits until they accept the
// value or ctx is done, so they see every value in input order.
type FanOut[T any] struct {
	mu      sync.RWMutex
	outputs []subscriber[T]
	bufSize int

	// OnDrop is called when a value is dropped for a subscriber.
	OnDrop func(subscriber string)
}

type subscriber[T any] struct {
	name     string
	ch       chan T
	blocking bool
}

// New creates a FanOut with the given buffer size for output channels.
func New[T any](outputBufferSize int) *FanOut[T] {
	return &FanOut[T]{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new lossy output channel. The name labels
// drops. Subscribers must be added before Run starts.
func (f *FanOut[T]) Subscribe(name string) <-chan T {
	return f.subscribe(name, false)
}

// SubscribeBlocking creates an output channel that never drops. A slow
// blocking subscriber stalls every other subscriber.
func (f *FanOut[T]) SubscribeBlocking(name string) <-chan T {
	return f.subscribe(name, true)
}

func (f *FanOut[T]) subscribe(name string, blocking bool) <-chan T {
	ch := make(chan T, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, subscriber[T]{name: name, ch: ch, blocking: blocking})
	f.mu.Unlock()
	return ch
}

// Run reads from input and fans out to all subscribers. Output channels are
// closed when Run returns. Blocks until ctx is cancelled or input is closed.
func (f *FanOut[T]) Run(ctx context.Context, input <-chan T) {
	defer func() {
		f.mu.RLock()
		for _, s := range f.outputs {
			close(s.ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-input:
			if !ok {
				return
			}
			if !f.broadcast(ctx, v) {
				return
			}
		}
	}
}

// broadcast delivers v to every subscriber. It returns false if ctx ended
// while waiting on a blocking subscriber.
func (f *FanOut[T]) broadcast(ctx context.Context, v T) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.outputs {
		if s.blocking {
			select {
			case s.ch <- v:
			case <-ctx.Done():
				return false
			}
			continue
		}
		select {
		case s.ch <- v:
		default:
			if f.OnDrop != nil {
				f.OnDrop(s.name)
			} else {
				log.Printf("[bus] subscriber %s full, dropping value", s.name)
			}
		}
	}
	return true
}

// ChannelStat is the (length, capacity) of one subscriber channel.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

// ChannelStats reports occupancy for each subscriber.
func (f *FanOut[T]) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, s := range f.outputs {
		stats[i] = ChannelStat{Name: s.name, Len: len(s.ch), Cap: cap(s.ch)}
	}
	return stats
}
