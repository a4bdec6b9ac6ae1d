// Package engine owns the variable table, the deferred-event queue, and
// the per-tick driver loop. It runs on a single logical thread: commands
// and ticks never interleave, which is what the deferred-event ordering
// guarantees rely on.
package engine

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/reelia/reelia-go/internal/diag"
	"github.com/reelia/reelia-go/internal/gen"
	"github.com/reelia/reelia-go/internal/object"
	"github.com/reelia/reelia-go/internal/scan"
)

// EventKind enumerates the deferred one-shot actions.
type EventKind int

const (
	EventStart EventKind = iota + 1
	EventStop
	EventReset
	EventTrigger
	EventNoteOff
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventReset:
		return "reset"
	case EventTrigger:
		return "trigger"
	case EventNoteOff:
		return "noteoff"
	default:
		return "event"
	}
}

// Event is a deferred action record. The target is re-resolved by name at
// execution time, so it tolerates the variable having been rebound or
// removed in the meantime.
type Event struct {
	Kind   EventKind
	Target string
	// Channel and Note carry the payload of note-off events.
	Channel int
	Note    int
}

// Canon folds a variable name to its canonical (upper-case) form.
func Canon(name string) string {
	b := []byte(name)
	for i := range b {
		b[i] = scan.Upper(b[i])
	}
	return string(b)
}

// Environment owns every live binding and drives the tick lifecycle.
type Environment struct {
	vars     map[string]Binding
	events   []Event
	handlers []func(*Environment)
	tick     int
	out      object.Sender
	rep      diag.Reporter
	rng      *rand.Rand
}

func New(out object.Sender, rep diag.Reporter) *Environment {
	if rep == nil {
		rep = diag.Discard
	}
	return &Environment{
		vars: make(map[string]Binding),
		out:  out,
		rep:  rep,
		rng:  rand.New(rand.NewSource(1)),
	}
}

// Seed reseeds the shared random source behind RND.
func (e *Environment) Seed(seed int64) {
	e.rng = rand.New(rand.NewSource(seed))
}

// Set installs a binding, destroying whatever the name previously owned.
func (e *Environment) Set(name string, b Binding) {
	e.vars[Canon(name)] = b
}

func (e *Environment) Get(name string) (Binding, bool) {
	b, ok := e.vars[Canon(name)]
	return b, ok
}

func (e *Environment) Has(name string) bool {
	_, ok := e.vars[Canon(name)]
	return ok
}

// Defer queues a one-shot event for a later tick.
func (e *Environment) Defer(ev Event) {
	ev.Target = Canon(ev.Target)
	e.events = append(e.events, ev)
}

// AddTickHandler registers a persistent callback run on every tick.
func (e *Environment) AddTickHandler(fn func(*Environment)) {
	e.handlers = append(e.handlers, fn)
}

func (e *Environment) TickCount() int { return e.tick }

// Tick advances the clock one step. The deferred queue is snapshotted at
// entry: anything enqueued during this tick, the update pass included,
// runs on the following tick. Execution order within the tick is counter
// advance, per-entity updates, persistent handlers, then the snapshot.
func (e *Environment) Tick() {
	due := e.events
	e.events = nil

	e.tick = (e.tick + 1) % 256

	for _, b := range e.vars {
		switch b.Kind() {
		case KindModule:
			gen.Advance(b.Module(), e.tick)
		case KindObject:
			if t, ok := b.Object().(object.Ticker); ok {
				t.OnTick(e)
			}
		}
	}

	for _, fn := range e.handlers {
		fn(e)
	}

	for _, ev := range due {
		e.execute(ev)
	}
}

// RunTicks advances the clock count times.
func (e *Environment) RunTicks(count int) {
	for i := 0; i < count; i++ {
		e.Tick()
	}
}

func (e *Environment) execute(ev Event) {
	if ev.Kind == EventNoteOff {
		if e.out != nil {
			_ = e.out.NoteOff(ev.Channel, ev.Note)
		}
		return
	}

	b, ok := e.vars[ev.Target]
	if !ok {
		// Target removed since the event was queued; drop it.
		return
	}
	if b.Kind() != KindObject {
		e.rep.Report(diag.Newf(diag.UnknownAttr, "$%s does not support %s()", ev.Target, ev.Kind))
		return
	}
	obj := b.Object()
	switch ev.Kind {
	case EventStart:
		if s, ok := obj.(object.Starter); ok {
			s.Start(e)
			return
		}
	case EventStop:
		if s, ok := obj.(object.Stopper); ok {
			s.Stop(e)
			return
		}
	case EventReset:
		if r, ok := obj.(object.Resetter); ok {
			r.Reset(e)
			return
		}
	case EventTrigger:
		if t, ok := obj.(object.Triggerer); ok {
			t.Trigger(e)
			return
		}
	}
	e.rep.Report(diag.Newf(diag.UnknownAttr, "%s does not support %s()", obj.Kind(), ev.Kind))
}

// QueueNoteOff schedules a note-off for the following tick. Part of the
// object.Env surface.
func (e *Environment) QueueNoteOff(channel, note int) {
	e.events = append(e.events, Event{Kind: EventNoteOff, Channel: channel, Note: note})
}

// Out returns the output sender. Part of the object.Env surface.
func (e *Environment) Out() object.Sender { return e.out }

// Resolve looks up a variable or one of its attributes for the expression
// evaluator. Part of the expr.Host surface.
func (e *Environment) Resolve(name, attr string) (int, bool) {
	b, ok := e.vars[Canon(name)]
	if !ok {
		return 0, false
	}
	if attr == "" {
		return b.Value(), true
	}
	if b.Kind() != KindObject {
		return 0, false
	}
	v, err := b.Object().Attr(strings.ToLower(attr))
	if err != nil {
		return 0, false
	}
	return v, true
}

// Rand draws from the shared seeded generator. Part of the expr.Host
// surface.
func (e *Environment) Rand(min, max int) int {
	if max < min {
		min, max = max, min
	}
	return min + e.rng.Intn(max-min+1)
}

// Describe dumps every binding, sorted by name.
func (e *Environment) Describe() string {
	names := make([]string, 0, len(e.vars))
	for name := range e.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "$%s = %s\n", name, e.vars[name])
	}
	return b.String()
}

// Close tears the session down, destroying every binding and dropping any
// still-pending events.
func (e *Environment) Close() {
	e.vars = make(map[string]Binding)
	e.events = nil
	e.handlers = nil
}
