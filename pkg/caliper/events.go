package caliper

import (
	"github.com/LLNL/caliper-go/pkg/contexttree"
	"github.com/LLNL/caliper-go/pkg/record"
	"github.com/LLNL/caliper-go/pkg/variant"
)

// EventKind enumerates the event hooks a service can subscribe to on a
// Channel, mirroring the attribute-created / begin / set / end /
// snapshot / flush / finish lifecycle an observer can react to.
type EventKind int

const (
	EventAttributeCreated EventKind = iota
	EventPreBegin
	EventPostBegin
	EventPreSet
	EventPostSet
	EventPreEnd
	EventPostEnd
	EventSnapshot
	EventProcessSnapshot
	EventPreFlush
	EventPostFlush
	EventFlush
	EventWriteOutput
	EventCreateThread
	EventReleaseThread
	EventPostInit
	EventFinish
	EventClear
)

func (k EventKind) String() string {
	switch k {
	case EventAttributeCreated:
		return "attribute-created"
	case EventPreBegin:
		return "pre-begin"
	case EventPostBegin:
		return "post-begin"
	case EventPreSet:
		return "pre-set"
	case EventPostSet:
		return "post-set"
	case EventPreEnd:
		return "pre-end"
	case EventPostEnd:
		return "post-end"
	case EventSnapshot:
		return "snapshot"
	case EventProcessSnapshot:
		return "process-snapshot"
	case EventPreFlush:
		return "pre-flush"
	case EventPostFlush:
		return "post-flush"
	case EventFlush:
		return "flush"
	case EventWriteOutput:
		return "write-output"
	case EventCreateThread:
		return "create-thread"
	case EventReleaseThread:
		return "release-thread"
	case EventPostInit:
		return "post-init"
	case EventFinish:
		return "finish"
	case EventClear:
		return "clear"
	default:
		return "unknown"
	}
}

// Event carries the payload passed to a subscriber for one occurrence
// of an EventKind. Fields not relevant to the kind are left zero.
type Event struct {
	Kind      EventKind
	Attribute contexttree.Attribute
	Value     variant.Value
	Channel   *Channel
	Scope     ScopeHandle

	// Populated for snapshot/process-snapshot/write-output events.
	Snapshot record.Snapshot
}

// Handler reacts to one Event. Handlers run synchronously, in
// subscription order, on the caller's goroutine — the same "observer
// runs inline with the triggering call" model the instrumentation API
// promises, so a handler must not itself call back into the same
// channel's Begin/Set/End for the attribute it is observing.
type Handler func(Event)

// eventBus is a minimal pub/sub keyed by EventKind, good enough for
// the handful of subscribers a channel configuration wires up at
// start time; subscriptions are not expected to change at any
// significant rate once a channel is running.
type eventBus struct {
	handlers map[EventKind][]Handler
}

func newEventBus() *eventBus {
	return &eventBus{handlers: make(map[EventKind][]Handler)}
}

func (b *eventBus) subscribe(kind EventKind, h Handler) {
	b.handlers[kind] = append(b.handlers[kind], h)
}

func (b *eventBus) publish(e Event) {
	for _, h := range b.handlers[e.Kind] {
		h(e)
	}
}
