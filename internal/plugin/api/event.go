package api

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Host events every plugin may subscribe to.
const (
	EventPluginActivated   = "plugin.activated"
	EventPluginDeactivated = "plugin.deactivated"
	EventPluginReloaded    = "plugin.reloaded"
)

// EventHandler receives an event payload.
type EventHandler func(data map[string]any)

type subscription struct {
	owner   string
	handler EventHandler
}

// EventBus delivers events synchronously to subscribers.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]subscription
	nextID uint64
	log    zerolog.Logger
}

// NewEventBus creates a bus. Handler panics are logged to log.
func NewEventBus(log zerolog.Logger) *EventBus {
	return &EventBus{subs: make(map[string]map[uint64]subscription), log: log}
}

// Subscribe registers a handler. The returned Disposable unsubscribes.
func (b *EventBus) Subscribe(owner, event string, h EventHandler) Disposable {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.subs[event] == nil {
		b.subs[event] = make(map[uint64]subscription)
	}
	b.subs[event][id] = subscription{owner: owner, handler: h}

	return DisposeFunc(func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[event], id)
		if len(b.subs[event]) == 0 {
			delete(b.subs, event)
		}
		return nil
	})
}

// Emit delivers data to every subscriber of event in subscription order and
// returns the number of handlers that ran without panicking.
func (b *EventBus) Emit(event string, data map[string]any) int {
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.subs[event]))
	for id := range b.subs[event] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]subscription, len(ids))
	for i, id := range ids {
		handlers[i] = b.subs[event][id]
	}
	b.mu.RUnlock()

	delivered := 0
	for _, s := range handlers {
		if b.deliver(event, s, data) {
			delivered++
		}
	}
	return delivered
}

func (b *EventBus) deliver(event string, s subscription, data map[string]any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Str("event", event).Str("plugin", s.owner).Interface("panic", r).Msg("event handler panicked")
			ok = false
		}
	}()
	s.handler(data)
	return true
}

// Count returns the number of subscribers to event.
func (b *EventBus) Count(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[event])
}

// Events is the plugin-facing event namespace. Events a plugin emits are
// prefixed with its id.
type Events struct {
	pluginID string
	bus      *EventBus
	track    func(Disposable)
}

// On subscribes to an event. The subscription ends with the context.
func (e *Events) On(event string, h EventHandler) (Disposable, error) {
	if e.bus == nil {
		return nil, ErrUnavailable
	}
	d := e.bus.Subscribe(e.pluginID, event, h)
	e.track(d)
	return d, nil
}

// Emit publishes "<pluginID>:<event>".
func (e *Events) Emit(event string, data map[string]any) error {
	if e.bus == nil {
		return ErrUnavailable
	}
	if !strings.HasPrefix(event, e.pluginID+":") {
		event = e.pluginID + ":" + event
	}
	e.bus.Emit(event, data)
	return nil
}
