package gen

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/reelia/reelia-go/internal/scan"
)

// Random produces a precomputed boolean buffer driven by position. The
// buffer is a deterministic function of (seed, probability, length): any
// change to one of those reseeds and regenerates immediately. When
// regenerate-on-cycle is enabled the buffer is redrawn from the ongoing
// stream each time the position wraps to step zero; that happens during
// the position update of the tick advance, so Value stays pure.
type Random struct {
	probability int
	seed        int
	length      int
	pos         int
	regenerate  bool
	buf         []bool
	rng         *rand.Rand
	// draws counts values consumed from the stream since the last reseed,
	// so Clone can replay the stream to the same position.
	draws int
}

func NewRandom() *Random {
	r := &Random{probability: 50, length: 16, regenerate: true}
	r.reseed()
	r.generate()
	return r
}

func (r *Random) Kind() string { return "RND" }

func (r *Random) Value() int {
	if r.buf[mod(r.pos, r.length)] {
		return 1
	}
	return 0
}

func (r *Random) SetParam(name string, value int) {
	switch name {
	case "P":
		r.probability = scan.Clamp(value, 0, 100)
		r.reseed()
		r.generate()
	case "LEN":
		r.length = max(1, value)
		r.reseed()
		r.generate()
	case "SEED":
		r.seed = value
		r.reseed()
		r.generate()
	case "POS":
		prev := r.pos
		r.pos = value
		// Wrap detection compares against the previous position rather
		// than requiring a positive value, so the cycle restart when the
		// tick counter itself wraps to zero still regenerates.
		if r.regenerate && value != prev && mod(value, r.length) == 0 {
			r.generate()
		}
	case "REGEN":
		r.regenerate = value != 0
	}
}

func (r *Random) reseed() {
	r.rng = rand.New(rand.NewSource(int64(r.seed)))
	r.draws = 0
}

func (r *Random) generate() {
	r.buf = make([]bool, r.length)
	for i := range r.buf {
		r.buf[i] = r.rng.Intn(100)+1 <= r.probability
	}
	r.draws += r.length
}

// Buffer returns a copy of the current boolean buffer.
func (r *Random) Buffer() []bool {
	out := make([]bool, len(r.buf))
	copy(out, r.buf)
	return out
}

func (r *Random) Clone() Generator {
	c := &Random{
		probability: r.probability,
		seed:        r.seed,
		length:      r.length,
		pos:         r.pos,
		regenerate:  r.regenerate,
		buf:         make([]bool, len(r.buf)),
	}
	copy(c.buf, r.buf)
	// Replay the stream to the original's position so the clone's future
	// cycle regenerations draw the same values.
	c.reseed()
	for i := 0; i < r.draws; i++ {
		c.rng.Intn(100)
	}
	c.draws = r.draws
	return c
}

func (r *Random) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Random Generator\nProbability: %d%%\nLength: %d\nPosition: %d\nSeed: %d\nRegenerate: %s\n[",
		r.probability, r.length, mod(r.pos, r.length), r.seed, yesNo(r.regenerate))
	for i, on := range r.buf {
		b.WriteByte(cursorChar(i == mod(r.pos, r.length), on))
	}
	b.WriteString("]")
	return b.String()
}
