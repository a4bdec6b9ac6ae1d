package midiout

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/reelia/reelia-go/internal/diag"
)

func newStartedDispatcher(t *testing.T) (*Dispatcher, *Capture) {
	t.Helper()
	sink := NewCapture()
	d := NewDispatcher(sink, WithPollInterval(time.Millisecond))
	if err := d.SelectDevice(0); err != nil {
		t.Fatal(err)
	}
	d.Start()
	t.Cleanup(d.Stop)
	return d, sink
}

func waitDelivered(t *testing.T, sink *Capture, n int) [][]byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frames := sink.Frames()
		if len(frames) >= n {
			return frames
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, got %d", n, len(sink.Frames()))
	return nil
}

func TestMessageEncodings(t *testing.T) {
	d, sink := newStartedDispatcher(t)

	sends := []struct {
		name string
		send func() error
		want []byte
	}{
		{"note on", func() error { return d.NoteOn(2, 60, 100) }, []byte{0x92, 60, 100}},
		{"note off", func() error { return d.NoteOff(2, 60) }, []byte{0x82, 60, 0}},
		{"control change", func() error { return d.ControlChange(0, 7, 127) }, []byte{0xB0, 7, 127}},
		{"program change", func() error { return d.ProgramChange(1, 42) }, []byte{0xC1, 42}},
		{"pitch bend", func() error { return d.PitchBend(0, 8192) }, []byte{0xE0, 0x00, 0x40}},
		{"poly aftertouch", func() error { return d.PolyAftertouch(3, 60, 80) }, []byte{0xA3, 60, 80}},
		{"channel pressure", func() error { return d.ChannelPressure(4, 90) }, []byte{0xD4, 90}},
	}
	for _, s := range sends {
		if err := s.send(); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
	}

	frames := waitDelivered(t, sink, len(sends))
	for i, s := range sends {
		if !bytes.Equal(frames[i], s.want) {
			t.Errorf("%s: frame = %#v, want %#v", s.name, frames[i], s.want)
		}
	}
}

func TestSevenBitClamping(t *testing.T) {
	d, sink := newStartedDispatcher(t)
	if err := d.NoteOn(18, 200, 300); err != nil {
		t.Fatal(err)
	}
	frames := waitDelivered(t, sink, 1)
	want := []byte{0x90 | (18 & 0x0F), 200 & 0x7F, 300 & 0x7F}
	if !bytes.Equal(frames[0], want) {
		t.Fatalf("frame = %#v, want %#v", frames[0], want)
	}
}

func TestSendFailsFastWithoutDevice(t *testing.T) {
	d := NewDispatcher(NewCapture())
	err := d.NoteOn(0, 60, 100)
	if err == nil {
		t.Fatal("send without an open device must fail")
	}
	var dg diag.Diagnostic
	if !errors.As(err, &dg) || dg.Kind != diag.Transport {
		t.Fatalf("error = %v, want a transport diagnostic", err)
	}
	if d.Pending() != 0 {
		t.Fatal("the failure must not be queued")
	}
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	d := NewDispatcher(NewCapture(), WithPollInterval(time.Millisecond))
	d.Start()
	d.Start() // no-op
	d.Stop()
	d.Stop() // no-op
	d.Start()
	d.Stop()
}

func TestStopJoinsConsumer(t *testing.T) {
	d, _ := func() (*Dispatcher, *Capture) {
		sink := NewCapture()
		d := NewDispatcher(sink, WithPollInterval(time.Millisecond))
		_ = d.SelectDevice(0)
		d.Start()
		return d, sink
	}()
	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not join the consumer")
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	sink := NewCapture()
	d := NewDispatcher(sink, WithQueueLimit(1), WithPollInterval(time.Millisecond))
	if err := d.SelectDevice(0); err != nil {
		t.Fatal(err)
	}

	// Consumer not running yet: the second frame evicts the first.
	if err := d.NoteOn(0, 60, 100); err != nil {
		t.Fatal(err)
	}
	if err := d.NoteOff(0, 60); err != nil {
		t.Fatal(err)
	}
	if d.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", d.Pending())
	}

	d.Start()
	defer d.Stop()
	frames := waitDelivered(t, sink, 1)
	if frames[0][0] != 0x80 {
		t.Fatalf("surviving frame = %#v, want the newer note-off", frames[0])
	}
}

func TestSelectDeviceClosesPrevious(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(sink)
	if err := d.SelectDevice(0); err != nil {
		t.Fatal(err)
	}
	if err := d.SelectDevice(1); err != nil {
		t.Fatal(err)
	}
	if sink.closes != 1 {
		t.Fatalf("closes = %d, want the previous connection closed first", sink.closes)
	}
	if sink.opens != 2 {
		t.Fatalf("opens = %d, want 2", sink.opens)
	}
}

func TestTransportErrorsDoNotCrossQueueBoundary(t *testing.T) {
	sink := &countingSink{sendErr: errors.New("wire unplugged")}
	d := NewDispatcher(sink, WithPollInterval(time.Millisecond))
	if err := d.SelectDevice(0); err != nil {
		t.Fatal(err)
	}
	d.Start()
	defer d.Stop()

	// Enqueue succeeds even though delivery will fail; the failure is
	// logged by the consumer, never returned here.
	if err := d.NoteOn(0, 60, 100); err != nil {
		t.Fatalf("enqueue returned the transport failure: %v", err)
	}
	d.Flush()
}

func TestFlushDrainsQueue(t *testing.T) {
	d, sink := newStartedDispatcher(t)
	for i := 0; i < 20; i++ {
		if err := d.NoteOn(0, 60+i%12, 100); err != nil {
			t.Fatal(err)
		}
	}
	d.Flush()
	if got := len(sink.Frames()); got < 19 {
		t.Fatalf("delivered %d frames after Flush, want at least 19", got)
	}
}

func TestDeviceSwitchDuringDeliveryIsSerialized(t *testing.T) {
	// bareSink keeps its connection in a plain field, like a real driver
	// adapter. The dispatcher must serialize sends against device switches
	// so the field is never touched concurrently (the race detector flags
	// a regression here).
	sink := &bareSink{}
	d := NewDispatcher(sink, WithPollInterval(time.Microsecond))
	if err := d.SelectDevice(0); err != nil {
		t.Fatal(err)
	}
	d.Start()
	defer d.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if err := d.SelectDevice(i % 2); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	for i := 0; i < 200; i++ {
		_ = d.NoteOn(0, 60, 100)
	}
	<-done
	d.Flush()
}

// bareSink has no internal synchronization: port is written by Open/Close
// and read by Send.
type bareSink struct {
	port int
}

func (s *bareSink) Open(index int) error {
	s.port = index + 1
	return nil
}

func (s *bareSink) Close() error {
	s.port = 0
	return nil
}

func (s *bareSink) Ports() ([]string, error) { return []string{"a", "b"}, nil }

func (s *bareSink) Send([]byte) error {
	if s.port == 0 {
		return errors.New("closed port")
	}
	return nil
}

// countingSink counts lifecycle calls and can fail sends.
type countingSink struct {
	mu      sync.Mutex
	opens   int
	closes  int
	sendErr error
}

func (s *countingSink) Open(int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	return nil
}

func (s *countingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *countingSink) Ports() ([]string, error) { return []string{"a", "b"}, nil }

func (s *countingSink) Send([]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendErr
}
