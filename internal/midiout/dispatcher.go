// Package midiout delivers MIDI messages to an external sink. Producers
// enqueue fixed-size raw frames under a short-held lock; a single consumer
// goroutine drains the queue. Every sink call — send, open, close — is
// serialized under a dedicated lock, so device selection is safe while
// delivery is live and Sink implementations need no locking of their own.
// Delivery is best-effort and never blocks the tick thread.
package midiout

import (
	"log/slog"
	"sync"
	"time"

	"github.com/reelia/reelia-go/internal/diag"
)

// Sink is the external MIDI device contract. Implementations: RtMidiSink
// for real hardware/software ports, Capture for tests and dry runs. The
// dispatcher serializes every call, so implementations need no locking.
type Sink interface {
	Open(index int) error
	Close() error
	Ports() ([]string, error)
	Send(raw []byte) error
}

const (
	statusNoteOff         = 0x80
	statusNoteOn          = 0x90
	statusPolyAftertouch  = 0xA0
	statusControlChange   = 0xB0
	statusProgramChange   = 0xC0
	statusChannelPressure = 0xD0
	statusPitchBend       = 0xE0
)

const (
	defaultQueueLimit = 1024
	defaultPoll       = time.Millisecond
)

type Option func(*Dispatcher)

// WithQueueLimit bounds the producer queue. When full, the oldest pending
// frame is dropped to make room.
func WithQueueLimit(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.limit = n
		}
	}
}

// WithPollInterval sets the consumer's idle polling interval.
func WithPollInterval(iv time.Duration) Option {
	return func(d *Dispatcher) {
		if iv > 0 {
			d.poll = iv
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// Dispatcher serializes delivery of MIDI frames to a Sink.
type Dispatcher struct {
	sink  Sink
	limit int
	poll  time.Duration
	log   *slog.Logger

	mu    sync.Mutex
	queue [][]byte
	open  bool

	// sinkMu serializes sink calls between the consumer's send path and
	// device selection on the caller thread.
	sinkMu sync.Mutex

	runMu sync.Mutex
	stop  chan struct{}
	done  chan struct{}
}

func NewDispatcher(sink Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sink:  sink,
		limit: defaultQueueLimit,
		poll:  defaultPoll,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Ports lists the sink's output ports in display order.
func (d *Dispatcher) Ports() ([]string, error) {
	d.sinkMu.Lock()
	defer d.sinkMu.Unlock()
	return d.sink.Ports()
}

// SelectDevice closes any previously open connection and opens the port at
// index. The sink calls hold sinkMu, so switching devices while the
// consumer is delivering frames is safe.
func (d *Dispatcher) SelectDevice(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinkMu.Lock()
	defer d.sinkMu.Unlock()
	if d.open {
		if err := d.sink.Close(); err != nil {
			d.log.Warn("closing previous MIDI device", "err", err)
		}
		d.open = false
	}
	if err := d.sink.Open(index); err != nil {
		return err
	}
	d.open = true
	return nil
}

// CloseDevice closes the current connection, if any.
func (d *Dispatcher) CloseDevice() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinkMu.Lock()
	defer d.sinkMu.Unlock()
	if !d.open {
		return nil
	}
	d.open = false
	return d.sink.Close()
}

// Start launches the consumer. Starting an already-running dispatcher is a
// no-op.
func (d *Dispatcher) Start() {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.stop != nil {
		return
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.consume(d.stop, d.done)
}

// Stop signals the consumer and joins it before returning. Stopping a
// stopped dispatcher is a no-op. Frames still queued at stop time are not
// guaranteed to be delivered.
func (d *Dispatcher) Stop() {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.stop == nil {
		return
	}
	close(d.stop)
	<-d.done
	d.stop = nil
	d.done = nil
}

func (d *Dispatcher) consume(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}
		frame, ok := d.pop()
		if !ok {
			time.Sleep(d.poll)
			continue
		}
		d.sinkMu.Lock()
		err := d.sink.Send(frame)
		d.sinkMu.Unlock()
		if err != nil {
			// Transport failures never propagate across the queue boundary.
			d.log.Warn("MIDI send failed", "err", err)
		}
	}
}

func (d *Dispatcher) pop() ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return nil, false
	}
	frame := d.queue[0]
	d.queue = d.queue[1:]
	return frame, true
}

// submit enqueues a frame, failing fast when no device is open.
func (d *Dispatcher) submit(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return diag.Newf(diag.Transport, "no MIDI device open")
	}
	if len(d.queue) >= d.limit {
		d.queue = d.queue[1:] // drop-oldest backpressure
	}
	d.queue = append(d.queue, frame)
	return nil
}

func (d *Dispatcher) NoteOn(channel, note, velocity int) error {
	return d.submit([]byte{
		statusNoteOn | byte(channel&0x0F),
		byte(note & 0x7F),
		byte(velocity & 0x7F),
	})
}

func (d *Dispatcher) NoteOff(channel, note int) error {
	return d.submit([]byte{
		statusNoteOff | byte(channel&0x0F),
		byte(note & 0x7F),
		0,
	})
}

func (d *Dispatcher) ControlChange(channel, controller, value int) error {
	return d.submit([]byte{
		statusControlChange | byte(channel&0x0F),
		byte(controller & 0x7F),
		byte(value & 0x7F),
	})
}

func (d *Dispatcher) ProgramChange(channel, program int) error {
	return d.submit([]byte{
		statusProgramChange | byte(channel&0x0F),
		byte(program & 0x7F),
	})
}

func (d *Dispatcher) PitchBend(channel, value int) error {
	return d.submit([]byte{
		statusPitchBend | byte(channel&0x0F),
		byte(value & 0x7F),
		byte((value >> 7) & 0x7F),
	})
}

func (d *Dispatcher) PolyAftertouch(channel, note, pressure int) error {
	return d.submit([]byte{
		statusPolyAftertouch | byte(channel&0x0F),
		byte(note & 0x7F),
		byte(pressure & 0x7F),
	})
}

func (d *Dispatcher) ChannelPressure(channel, pressure int) error {
	return d.submit([]byte{
		statusChannelPressure | byte(channel&0x0F),
		byte(pressure & 0x7F),
	})
}

// Flush blocks until the queue has been drained. It returns immediately
// when the consumer is not running.
func (d *Dispatcher) Flush() {
	for {
		d.runMu.Lock()
		running := d.stop != nil
		d.runMu.Unlock()
		if !running || d.Pending() == 0 {
			return
		}
		time.Sleep(d.poll)
	}
}

// Pending returns the number of frames waiting for delivery.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}
