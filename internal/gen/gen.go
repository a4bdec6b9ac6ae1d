// Package gen implements the generator variants of the module dialect:
// small stateful value sources driven by the tick clock. Each generator is
// a pure function of its own state; parameter mutation is the only
// state-changing entry point and unknown parameter names are silently
// ignored.
package gen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/reelia/reelia-go/internal/scan"
)

type Generator interface {
	// Kind returns the creation token (PAT, EUC, SIN, ...).
	Kind() string
	// Value produces the current output without mutating state.
	Value() int
	// SetParam mutates one named parameter. Unknown names are a no-op.
	SetParam(name string, value int)
	// Clone returns a structurally independent copy.
	Clone() Generator
	// Describe renders the generator's state for inspection.
	Describe() string
}

// New creates a generator by its creation token. ok is false for unknown
// kinds.
func New(kind string) (Generator, bool) {
	switch kind {
	case "PAT":
		return &Pattern{}, true
	case "EUC":
		return &Euclidean{steps: 8}, true
	case "SIN":
		return &Sine{wave: wave{length: 16, amp: 127}}, true
	case "TRI":
		return &Triangle{wave: wave{length: 16, amp: 127}}, true
	case "SAW":
		return &Sawtooth{wave: wave{length: 16, amp: 127}}, true
	case "SQR":
		return &Square{wave: wave{length: 16, amp: 127}, duty: 50}, true
	case "RND":
		return NewRandom(), true
	case "SEQ":
		return &StepSeq{length: 8, looping: true}, true
	}
	return nil, false
}

// Advance is the per-tick update applied to every live generator: the
// position parameters track the tick counter.
func Advance(g Generator, tick int) {
	g.SetParam("POS", tick)
	switch g.Kind() {
	case "PAT", "EUC":
		g.SetParam("I", tick)
	}
}

// Pattern produces the bit of a 32-bit mask at the current index.
type Pattern struct {
	mask  int
	index int
}

func (p *Pattern) Kind() string { return "PAT" }

func (p *Pattern) Value() int {
	return (p.mask >> uint(mod(p.index, 32))) & 1
}

func (p *Pattern) SetParam(name string, value int) {
	switch name {
	case "P":
		p.mask = value
	case "I":
		p.index = value
	}
}

// Mask returns the raw bit mask; used by the ROTATE/REVERSE pattern
// operations of the command grammar.
func (p *Pattern) Mask() int { return p.mask }

func (p *Pattern) Clone() Generator {
	c := *p
	return &c
}

func (p *Pattern) Describe() string {
	var b strings.Builder
	b.WriteString("Pattern: ")
	for i := 7; i >= 0; i-- {
		b.WriteByte(bitChar(p.mask, i))
	}
	fmt.Fprintf(&b, "\nIndex: %d\nCurrent Bit: %d\n[", mod(p.index, 8), (p.mask>>uint(mod(p.index, 8)))&1)
	for i := 0; i < 8; i++ {
		set := (p.mask>>uint(i))&1 == 1
		b.WriteByte(cursorChar(i == mod(p.index, 8), set))
	}
	b.WriteString("]")
	return b.String()
}

// Euclidean spreads `hits` pulses as evenly as possible over `steps`.
type Euclidean struct {
	hits  int
	steps int
	index int
}

func (e *Euclidean) Kind() string { return "EUC" }

func (e *Euclidean) Value() int {
	if e.steps == 0 || e.hits == 0 {
		return 0
	}
	if e.hits >= e.steps {
		return 1
	}
	if (mod(e.index, e.steps)*e.hits)%e.steps < e.hits {
		return 1
	}
	return 0
}

func (e *Euclidean) SetParam(name string, value int) {
	switch name {
	case "K":
		e.hits = max(0, value)
	case "N":
		e.steps = max(1, value) // clamp >=1, prevents division by zero
	case "I":
		e.index = value
	}
}

func (e *Euclidean) Clone() Generator {
	c := *e
	return &c
}

func (e *Euclidean) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Euclidean: %d/%d\nIndex: %d\nCurrent Value: %d\n[", e.hits, e.steps, mod(e.index, e.steps), e.Value())
	for i := 0; i < e.steps; i++ {
		on := e.hits >= e.steps || (e.hits > 0 && (i*e.hits)%e.steps < e.hits)
		b.WriteByte(cursorChar(i == mod(e.index, e.steps), on))
	}
	b.WriteString("]")
	return b.String()
}

// wave carries the state shared by the waveform generators.
type wave struct {
	length int
	pos    int
	amp    int
}

func (w *wave) setParam(name string, value int) bool {
	switch name {
	case "LEN":
		w.length = max(1, value)
	case "POS":
		w.pos = value
	case "A":
		w.amp = scan.Clamp(value, 0, 127)
	default:
		return false
	}
	return true
}

// scale centers a 0..255 sample on 128 and scales by amplitude.
func (w *wave) scale(sample int) int {
	return 128 + ((sample-128)*w.amp)/127
}

func (w *wave) describe(title string) string {
	return fmt.Sprintf("%s\nLength: %d\nPosition: %d\nAmplitude: %d", title, w.length, mod(w.pos, w.length), w.amp)
}

// sinTable is a 16-entry sine lookup, samples in 0..255.
var sinTable = [16]int{128, 176, 218, 245, 255, 245, 218, 176, 128, 80, 38, 11, 0, 11, 38, 80}

type Sine struct{ wave }

func (s *Sine) Kind() string { return "SIN" }

func (s *Sine) Value() int {
	idx := mod(s.pos, s.length) * 16 / s.length
	return s.scale(sinTable[idx&15])
}

func (s *Sine) SetParam(name string, value int) { s.setParam(name, value) }

func (s *Sine) Clone() Generator {
	c := *s
	return &c
}

func (s *Sine) Describe() string { return s.describe("Sine Wave") }

type Triangle struct{ wave }

func (t *Triangle) Kind() string { return "TRI" }

func (t *Triangle) Value() int {
	np := mod(t.pos, t.length) * 256 / t.length
	var v int
	if np < 128 {
		v = np * 255 / 128
	} else {
		v = 255 - (np-128)*255/128
	}
	return t.scale(v)
}

func (t *Triangle) SetParam(name string, value int) { t.setParam(name, value) }

func (t *Triangle) Clone() Generator {
	c := *t
	return &c
}

func (t *Triangle) Describe() string { return t.describe("Triangle Wave") }

type Sawtooth struct{ wave }

func (s *Sawtooth) Kind() string { return "SAW" }

func (s *Sawtooth) Value() int {
	return s.scale(mod(s.pos, s.length) * 255 / s.length)
}

func (s *Sawtooth) SetParam(name string, value int) { s.setParam(name, value) }

func (s *Sawtooth) Clone() Generator {
	c := *s
	return &c
}

func (s *Sawtooth) Describe() string { return s.describe("Sawtooth Wave") }

type Square struct {
	wave
	duty int
}

func (s *Square) Kind() string { return "SQR" }

func (s *Square) Value() int {
	np := mod(s.pos, s.length) * 100 / s.length
	if np < s.duty {
		return s.scale(255)
	}
	return s.scale(0)
}

func (s *Square) SetParam(name string, value int) {
	if s.setParam(name, value) {
		return
	}
	if name == "D" {
		s.duty = scan.Clamp(value, 0, 100)
	}
}

func (s *Square) Clone() Generator {
	c := *s
	return &c
}

func (s *Square) Describe() string {
	return s.describe("Square Wave") + fmt.Sprintf("\nDuty Cycle: %d%%", s.duty)
}

// StepSeq stores up to 16 step values and plays them back by position.
type StepSeq struct {
	steps   [16]int
	pos     int
	length  int
	looping bool
}

func (s *StepSeq) Kind() string { return "SEQ" }

func (s *StepSeq) Value() int {
	if s.pos >= s.length && !s.looping {
		return 0
	}
	return s.steps[mod(s.pos, s.length)]
}

func (s *StepSeq) SetParam(name string, value int) {
	switch {
	case name == "POS":
		s.pos = value
	case name == "LEN":
		s.length = scan.Clamp(value, 1, 16)
	case name == "LOOP":
		s.looping = value != 0
	case len(name) > 1 && name[0] == 'S':
		if idx, err := strconv.Atoi(name[1:]); err == nil && idx >= 1 && idx <= 16 {
			s.steps[idx-1] = value
		}
	}
}

func (s *StepSeq) Step(index int) int {
	if index < 0 || index >= 16 {
		return 0
	}
	return s.steps[index]
}

func (s *StepSeq) Clone() Generator {
	c := *s
	return &c
}

func (s *StepSeq) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sequencer\nLength: %d\nPosition: %d\nLooping: %s\nSteps:", s.length, mod(s.pos, s.length), yesNo(s.looping))
	for i := 0; i < s.length; i++ {
		fmt.Fprintf(&b, " %d", s.steps[i])
	}
	b.WriteString("\n")
	for i := 0; i < s.length; i++ {
		if i == mod(s.pos, s.length) {
			b.WriteString("^ ")
		} else {
			b.WriteString("  ")
		}
	}
	return b.String()
}

func mod(v, n int) int {
	if n <= 0 {
		return 0
	}
	m := v % n
	if m < 0 {
		m += n
	}
	return m
}

func bitChar(mask, bit int) byte {
	if (mask>>uint(bit))&1 == 1 {
		return '1'
	}
	return '0'
}

func cursorChar(atCursor, on bool) byte {
	switch {
	case atCursor && on:
		return '*'
	case atCursor:
		return '.'
	case on:
		return 'o'
	default:
		return '-'
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
