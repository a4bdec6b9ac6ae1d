package midiout

import "sync"

// Capture is a Sink that records every frame instead of talking to a
// device. It backs tests and the CLI's dry-run script mode.
type Capture struct {
	mu     sync.Mutex
	opened bool
	frames [][]byte
}

func NewCapture() *Capture { return &Capture{} }

func (c *Capture) Open(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = true
	return nil
}

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = false
	return nil
}

func (c *Capture) Ports() ([]string, error) {
	return []string{"capture"}, nil
}

func (c *Capture) Send(raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	frame := make([]byte, len(raw))
	copy(frame, raw)
	c.frames = append(c.frames, frame)
	return nil
}

// Frames returns a copy of everything sent so far.
func (c *Capture) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}
