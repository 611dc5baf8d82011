package signaling

import (
	"context"
	"path"
	"sync"
)

// MemoryFanout is an in-process Fanout for development and tests. Several
// Hub instances sharing one MemoryFanout behave like separate server
// processes sharing one Redis.
type MemoryFanout struct {
	mu     sync.RWMutex
	subs   []*memorySub
	closed bool
}

type memorySub struct {
	patterns []string
	ch       chan FanoutMessage
}

func NewMemoryFanout() *MemoryFanout {
	return &MemoryFanout{}
}

func (f *MemoryFanout) Publish(_ context.Context, channel string, data []byte) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subs {
		for _, pattern := range sub.patterns {
			if ok, _ := path.Match(pattern, channel); ok {
				select {
				case sub.ch <- FanoutMessage{Channel: channel, Data: data}:
				default:
					// Slow subscriber, drop. Delivery is best-effort.
				}
				break
			}
		}
	}
	return nil
}

func (f *MemoryFanout) Subscribe(ctx context.Context, patterns ...string) (<-chan FanoutMessage, error) {
	sub := &memorySub{
		patterns: patterns,
		ch:       make(chan FanoutMessage, 64),
	}

	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		for i, s := range f.subs {
			if s == sub {
				f.subs = append(f.subs[:i], f.subs[i+1:]...)
				break
			}
		}
		f.mu.Unlock()
		close(sub.ch)
	}()

	return sub.ch, nil
}

func (f *MemoryFanout) Close() error {
	return nil
}
