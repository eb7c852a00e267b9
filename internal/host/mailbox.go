package host

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/warden-dev/warden/internal/domain/plugin"
)

type subscription struct {
	id        plugin.SubscriptionID
	eventType string
	handler   plugin.EventHandler
}

// mailbox is a plugin's private event channel. Posting never blocks; one
// goroutine per mailbox runs handlers in arrival order.
type mailbox struct {
	ch       chan plugin.Event
	done     chan struct{}
	finished chan struct{}
	logger   *slog.Logger

	mu       sync.RWMutex
	handlers []subscription
	nextID   plugin.SubscriptionID

	startOnce sync.Once
	stopOnce  sync.Once
}

func newMailbox(size int, logger *slog.Logger) *mailbox {
	if size <= 0 {
		size = 1
	}
	return &mailbox{
		ch:       make(chan plugin.Event, size),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		logger:   logger,
	}
}

// On registers h for eventType, or for every event with plugin.WildcardEvent.
func (b *mailbox) On(eventType string, h plugin.EventHandler) plugin.SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers = append(b.handlers, subscription{id: b.nextID, eventType: eventType, handler: h})
	return b.nextID
}

// Off removes a handler. Unknown ids are ignored.
func (b *mailbox) Off(id plugin.SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = slices.DeleteFunc(b.handlers, func(s subscription) bool { return s.id == id })
}

func (b *mailbox) start() {
	b.startOnce.Do(func() {
		go b.run()
	})
}

// post enqueues ev. It reports false when the mailbox is stopped or full.
func (b *mailbox) post(ev plugin.Event) bool {
	select {
	case <-b.done:
		return false
	default:
	}

	select {
	case b.ch <- ev:
		return true
	default:
		return false
	}
}

// stop ends delivery and waits for an in-flight handler to return. Events
// still queued are discarded.
func (b *mailbox) stop() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
	b.startOnce.Do(func() {
		close(b.finished)
	})
	<-b.finished

	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()
}

func (b *mailbox) run() {
	defer close(b.finished)
	for {
		select {
		case <-b.done:
			return
		case ev := <-b.ch:
			b.deliver(ev)
		}
	}
}

func (b *mailbox) deliver(ev plugin.Event) {
	b.mu.RLock()
	matched := make([]plugin.EventHandler, 0, len(b.handlers))
	for _, sub := range b.handlers {
		if sub.eventType == ev.Type || sub.eventType == plugin.WildcardEvent {
			matched = append(matched, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		if err := safeHandle(h, ev); err != nil {
			b.logger.Warn("event handler failed", "event", ev.Type, "error", err)
		}
	}
}

func safeHandle(h plugin.EventHandler, ev plugin.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	h(ev)
	return nil
}
