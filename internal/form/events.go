package form

import "sync"

// EventType names a lifecycle event.
type EventType string

// Form lifecycle events.
const (
	EventFormInit            EventType = "form.init"
	EventFormMount           EventType = "form.mount"
	EventFormUnmount         EventType = "form.unmount"
	EventFormValuesChange    EventType = "form.values-change"
	EventFormSubmitStart     EventType = "form.submit-start"
	EventFormSubmitSuccess   EventType = "form.submit-success"
	EventFormSubmitFailed    EventType = "form.submit-failed"
	EventFormSubmitEnd       EventType = "form.submit-end"
	EventFormReset           EventType = "form.reset"
	EventFormValidateStart   EventType = "form.validate-start"
	EventFormValidateSuccess EventType = "form.validate-success"
	EventFormValidateFailed  EventType = "form.validate-failed"
)

// Field lifecycle events.
const (
	EventFieldInit               EventType = "field.init"
	EventFieldMount              EventType = "field.mount"
	EventFieldUnmount            EventType = "field.unmount"
	EventFieldValueChange        EventType = "field.value-change"
	EventFieldInputValueChange   EventType = "field.input-value-change"
	EventFieldInitialValueChange EventType = "field.initial-value-change"
	EventFieldValidateSuccess    EventType = "field.validate-success"
	EventFieldValidateFailed     EventType = "field.validate-failed"
	EventFieldReset              EventType = "field.reset"
)

// Event is one lifecycle notification.
type Event struct {
	Type   EventType
	FormID string

	// Path is set for field events.
	Path string

	Payload map[string]any
}

// Handler receives events.
type Handler func(Event)

// EventBus is a synchronous publish/subscribe hub. Emit calls the handlers
// registered for the event type, then the handlers registered for every
// event, each in registration order.
//
// Thread-safety: EventBus is safe for concurrent use. Handlers run without
// the bus lock held and may subscribe or emit.
type EventBus struct {
	mu     sync.RWMutex
	nextID int
	typed  map[EventType][]subscription
	global []subscription
}

type subscription struct {
	id int
	fn Handler
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{typed: make(map[EventType][]subscription)}
}

// On registers fn for events of type t and returns its unsubscribe func.
func (b *EventBus) On(t EventType, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.typed[t] = append(b.typed[t], subscription{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.typed[t] = without(b.typed[t], id)
	}
}

// OnAny registers fn for every event and returns its unsubscribe func.
func (b *EventBus) OnAny(fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.global = append(b.global, subscription{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.global = without(b.global, id)
	}
}

// Emit delivers e.
func (b *EventBus) Emit(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.typed[e.Type])+len(b.global))
	for _, s := range b.typed[e.Type] {
		handlers = append(handlers, s.fn)
	}
	for _, s := range b.global {
		handlers = append(handlers, s.fn)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// Clear drops every handler.
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.typed = make(map[EventType][]subscription)
	b.global = nil
}

func without(subs []subscription, id int) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
