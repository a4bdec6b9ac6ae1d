// Package object implements the runtime-object variants of the object
// dialect: named-attribute entities with a per-tick update hook and
// deferred lifecycle methods. Unlike generator parameters, unknown
// attribute names fail with a recoverable unknown-attribute condition.
package object

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/reelia/reelia-go/internal/diag"
	"github.com/reelia/reelia-go/internal/scan"
)

// Sender is the slice of the output dispatcher the objects need.
type Sender interface {
	NoteOn(channel, note, velocity int) error
	NoteOff(channel, note int) error
	ControlChange(channel, controller, value int) error
}

// Env is the environment surface visible to objects during updates:
// deferred note-off scheduling and the output sender.
type Env interface {
	QueueNoteOff(channel, note int)
	Out() Sender
}

type Object interface {
	Kind() string
	// Value produces the object's current scalar output.
	Value() int
	// SetAttr mutates a named attribute. Unknown names return an
	// unknown-attribute diagnostic error, recoverable at the command
	// dispatch boundary.
	SetAttr(env Env, name string, value int) error
	Attr(name string) (int, error)
	// Clone returns an independently owned deep copy.
	Clone() Object
	String() string
}

// Ticker is implemented by objects with per-tick behavior.
type Ticker interface {
	OnTick(env Env)
}

// Lifecycle method interfaces, invoked from the deferred-event queue.
type Starter interface{ Start(env Env) }
type Stopper interface{ Stop(env Env) }
type Resetter interface{ Reset(env Env) }
type Triggerer interface{ Trigger(env Env) }

// New creates an object by its creation token.
func New(kind string) (Object, bool) {
	switch kind {
	case "int":
		return &Int{}, true
	case "binary":
		return &Binary{}, true
	case "seq":
		return NewSeq(), true
	case "count":
		return &Counter{max: 16, step: 1}, true
	case "note", "midi_note":
		return &Note{note: 60, velocity: 100, duration: 1}, true
	case "cc", "midi_cc":
		return &CC{controller: 1}, true
	case "midiseq", "midi_seq":
		return NewMIDISeq(), true
	}
	return nil, false
}

func unknownAttr(kind, name string) error {
	return diag.Newf(diag.UnknownAttr, "%s has no attribute %q", kind, name)
}

// Int is a plain integer entity. It carries no attributes.
type Int struct {
	value int
}

func NewInt(v int) *Int { return &Int{value: v} }

func (o *Int) Kind() string { return "int" }
func (o *Int) Value() int   { return o.value }

func (o *Int) SetAttr(_ Env, name string, _ int) error {
	return unknownAttr("int", name)
}

func (o *Int) Attr(name string) (int, error) {
	return 0, unknownAttr("int", name)
}

func (o *Int) Clone() Object { c := *o; return &c }

func (o *Int) String() string { return "int:" + strconv.Itoa(o.value) }

// Binary is an 8-bit bit pattern entity.
type Binary struct {
	pattern int
}

func NewBinary(p int) *Binary { return &Binary{pattern: p} }

func (o *Binary) Kind() string { return "binary" }
func (o *Binary) Value() int   { return o.pattern }

func (o *Binary) SetAttr(_ Env, name string, value int) error {
	if name == "value" {
		o.pattern = value
		return nil
	}
	return unknownAttr("binary", name)
}

func (o *Binary) Attr(name string) (int, error) {
	if name == "value" {
		return o.pattern, nil
	}
	return 0, unknownAttr("binary", name)
}

func (o *Binary) Clone() Object { c := *o; return &c }

func (o *Binary) String() string {
	var b strings.Builder
	b.WriteByte('b')
	for i := 7; i >= 0; i-- {
		if (o.pattern>>uint(i))&1 == 1 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Seq is a 16-step sequence with a play head.
type Seq struct {
	data     [16]int
	position int
	length   int
	playing  bool
}

func NewSeq() *Seq { return &Seq{length: 8} }

func (o *Seq) Kind() string { return "seq" }

func (o *Seq) Value() int {
	if o.position >= 0 && o.position < len(o.data) {
		return o.data[o.position]
	}
	return 0
}

func (o *Seq) SetAttr(_ Env, name string, value int) error {
	switch name {
	case "data":
		// The low 8 bits load the first 8 steps as gates.
		for i := 0; i < 8; i++ {
			if value&(1<<uint(i)) != 0 {
				o.data[i] = 1
			} else {
				o.data[i] = 0
			}
		}
	case "pos", "position":
		o.position = mod(value, len(o.data))
	case "length":
		o.length = scan.Clamp(value, 1, 16)
	case "step":
		// Packed form: low nibble selects the step, next 8 bits the value.
		step := value & 0xF
		o.data[step] = (value >> 4) & 0xFF
	default:
		return unknownAttr("seq", name)
	}
	return nil
}

func (o *Seq) Attr(name string) (int, error) {
	switch name {
	case "data":
		pattern := 0
		for i := 0; i < 8; i++ {
			if o.data[i] > 0 {
				pattern |= 1 << uint(i)
			}
		}
		return pattern, nil
	case "pos", "position":
		return o.position, nil
	case "length":
		return o.length, nil
	case "step":
		return o.Value(), nil
	case "playing":
		return b2i(o.playing), nil
	}
	return 0, unknownAttr("seq", name)
}

func (o *Seq) Clone() Object { c := *o; return &c }

func (o *Seq) OnTick(Env) {
	if o.playing {
		o.position = (o.position + 1) % o.length
	}
}

func (o *Seq) Start(Env) {
	o.playing = true
	o.position = 0
}

func (o *Seq) Stop(Env) { o.playing = false }

func (o *Seq) String() string {
	var b strings.Builder
	b.WriteString("seq[")
	for i := 0; i < o.length; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(o.data[i]))
		if i == o.position {
			b.WriteByte('*')
		}
	}
	b.WriteString("]")
	return b.String()
}

// Counter counts between min and max by step while running.
type Counter struct {
	value   int
	min     int
	max     int
	step    int
	running bool
}

func (o *Counter) Kind() string { return "count" }
func (o *Counter) Value() int   { return o.value }

func (o *Counter) SetAttr(_ Env, name string, value int) error {
	switch name {
	case "value":
		o.value = value
	case "max":
		o.max = value
	case "min":
		o.min = value
	case "step":
		o.step = value
	default:
		return unknownAttr("count", name)
	}
	return nil
}

func (o *Counter) Attr(name string) (int, error) {
	switch name {
	case "value":
		return o.value, nil
	case "max":
		return o.max, nil
	case "min":
		return o.min, nil
	case "step":
		return o.step, nil
	case "running":
		return b2i(o.running), nil
	}
	return 0, unknownAttr("count", name)
}

func (o *Counter) Clone() Object { c := *o; return &c }

func (o *Counter) OnTick(Env) {
	if !o.running {
		return
	}
	o.value += o.step
	if o.value > o.max {
		if o.step > 0 {
			o.value = o.min
		} else {
			o.value = o.max
		}
	} else if o.value < o.min {
		if o.step < 0 {
			o.value = o.max
		} else {
			o.value = o.min
		}
	}
}

func (o *Counter) Start(Env) { o.running = true }
func (o *Counter) Stop(Env)  { o.running = false }
func (o *Counter) Reset(Env) { o.value = o.min }

func (o *Counter) String() string {
	return fmt.Sprintf("count:%d [%d:%d:%d]", o.value, o.min, o.max, o.step)
}

func mod(v, n int) int {
	m := v % n
	if m < 0 {
		m += n
	}
	return m
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
