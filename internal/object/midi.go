package object

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/reelia/reelia-go/internal/midiout"
)

// Note sends a MIDI note when triggered and schedules its own note-off
// after the configured duration in whole ticks.
type Note struct {
	channel  int
	note     int
	velocity int
	duration int
	elapsed  int
	playing  bool
}

func (o *Note) Kind() string { return "midi_note" }

func (o *Note) Value() int {
	if o.playing {
		return o.velocity
	}
	return 0
}

func (o *Note) SetAttr(_ Env, name string, value int) error {
	switch name {
	case "channel":
		o.channel = value & 0x0F
	case "note":
		o.note = value & 0x7F
	case "velocity":
		o.velocity = value & 0x7F
	case "duration":
		o.duration = value
		if o.duration < 1 {
			o.duration = 1
		}
	default:
		return unknownAttr("midi_note", name)
	}
	return nil
}

func (o *Note) Attr(name string) (int, error) {
	switch name {
	case "channel":
		return o.channel, nil
	case "note":
		return o.note, nil
	case "velocity":
		return o.velocity, nil
	case "duration":
		return o.duration, nil
	case "playing":
		return b2i(o.playing), nil
	}
	return 0, unknownAttr("midi_note", name)
}

func (o *Note) Clone() Object { c := *o; return &c }

func (o *Note) OnTick(env Env) {
	if !o.playing {
		return
	}
	o.elapsed++
	if o.elapsed >= o.duration {
		_ = env.Out().NoteOff(o.channel, o.note)
		o.playing = false
		o.elapsed = 0
	}
}

// Trigger fires the note-on. A note already sounding is closed first so
// retriggering restarts the full duration.
func (o *Note) Trigger(env Env) {
	if o.playing {
		_ = env.Out().NoteOff(o.channel, o.note)
	}
	_ = env.Out().NoteOn(o.channel, o.note, o.velocity)
	o.playing = true
	o.elapsed = 0
}

func (o *Note) Stop(env Env) {
	if !o.playing {
		return
	}
	_ = env.Out().NoteOff(o.channel, o.note)
	o.playing = false
	o.elapsed = 0
}

func (o *Note) String() string {
	s := fmt.Sprintf("midi_note: ch=%d note=%s vel=%d", o.channel, midiout.NoteName(o.note), o.velocity)
	if o.playing {
		s += " [playing]"
	}
	return s
}

// CC holds a controller value; writing the value attribute sends the
// control change immediately.
type CC struct {
	channel    int
	controller int
	value      int
}

func (o *CC) Kind() string { return "midi_cc" }
func (o *CC) Value() int   { return o.value }

func (o *CC) SetAttr(env Env, name string, value int) error {
	switch name {
	case "channel":
		o.channel = value & 0x0F
	case "controller", "cc":
		o.controller = value & 0x7F
	case "value":
		o.value = value & 0x7F
		if env != nil {
			_ = env.Out().ControlChange(o.channel, o.controller, o.value)
		}
	default:
		return unknownAttr("midi_cc", name)
	}
	return nil
}

func (o *CC) Attr(name string) (int, error) {
	switch name {
	case "channel":
		return o.channel, nil
	case "controller", "cc":
		return o.controller, nil
	case "value":
		return o.value, nil
	}
	return 0, unknownAttr("midi_cc", name)
}

func (o *CC) Clone() Object { c := *o; return &c }

// Send re-emits the current controller value.
func (o *CC) Send(env Env) {
	_ = env.Out().ControlChange(o.channel, o.controller, o.value)
}

// Trigger makes send() reachable through the deferred-event queue.
func (o *CC) Trigger(env Env) { o.Send(env) }

func (o *CC) String() string {
	return fmt.Sprintf("midi_cc: ch=%d cc=%d val=%d", o.channel, o.controller, o.value)
}

// MIDISeq extends Seq with a per-step note table. Active steps fire a
// note-on during the update pass and schedule the matching note-off as a
// deferred event for the following tick.
type MIDISeq struct {
	Seq
	channel  int
	notes    [16]int
	velocity int
	enabled  bool
}

func NewMIDISeq() *MIDISeq {
	m := &MIDISeq{velocity: 100, enabled: true}
	m.length = 8
	for i := range m.notes {
		m.notes[i] = 60 // C4
	}
	return m
}

func (o *MIDISeq) Kind() string { return "midi_seq" }

func (o *MIDISeq) OnTick(env Env) {
	o.Seq.OnTick(env)
	if !o.enabled || o.Value() <= 0 {
		return
	}
	note := o.notes[o.position]
	if note < 0 {
		return
	}
	_ = env.Out().NoteOn(o.channel, note, o.velocity)
	env.QueueNoteOff(o.channel, note)
}

func (o *MIDISeq) SetAttr(env Env, name string, value int) error {
	switch {
	case name == "midi_channel":
		o.channel = value & 0x0F
	case name == "midi_velocity":
		o.velocity = value & 0x7F
	case name == "midi_enable":
		o.enabled = value > 0
	case name == "note_map":
		// Pattern bits map steps onto a scale from the base note.
		const baseNote = 60
		for i := 0; i < 8; i++ {
			if value&(1<<uint(i)) != 0 {
				o.notes[i] = baseNote + i
			} else {
				o.notes[i] = -1
			}
		}
	case name == "note_base":
		base := value & 0x7F
		for i := range o.notes {
			if o.notes[i] >= 0 {
				o.notes[i] = base + i
			}
		}
	case strings.HasPrefix(name, "note_"):
		step, err := strconv.Atoi(name[len("note_"):])
		if err != nil || step < 0 || step >= len(o.notes) {
			return unknownAttr("midi_seq", name)
		}
		o.notes[step] = value & 0x7F
	default:
		return o.Seq.SetAttr(env, name, value)
	}
	return nil
}

func (o *MIDISeq) Attr(name string) (int, error) {
	switch {
	case name == "midi_channel":
		return o.channel, nil
	case name == "midi_velocity":
		return o.velocity, nil
	case name == "midi_enable":
		return b2i(o.enabled), nil
	case name == "note_base":
		for _, n := range o.notes {
			if n >= 0 {
				return n, nil
			}
		}
		return 60, nil
	case strings.HasPrefix(name, "note_"):
		step, err := strconv.Atoi(name[len("note_"):])
		if err != nil || step < 0 || step >= len(o.notes) {
			return -1, unknownAttr("midi_seq", name)
		}
		return o.notes[step], nil
	}
	return o.Seq.Attr(name)
}

func (o *MIDISeq) Clone() Object { c := *o; return &c }

func (o *MIDISeq) String() string {
	state := "disabled"
	if o.enabled {
		state = "enabled"
	}
	return fmt.Sprintf("%s [MIDI ch=%d %s]", o.Seq.String(), o.channel, state)
}
