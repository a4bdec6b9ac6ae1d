// Package reelia is an embeddable live-coding music runtime: text commands
// create and mutate tick-driven generator entities whose values are
// dispatched to a MIDI sink.
package reelia

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	intcmd "github.com/reelia/reelia-go/internal/command"
	intdiag "github.com/reelia/reelia-go/internal/diag"
	intengine "github.com/reelia/reelia-go/internal/engine"
	intmidi "github.com/reelia/reelia-go/internal/midiout"
)

type SessionOption func(*sessionConfig)

type sessionConfig struct {
	sink     intmidi.Sink
	output   io.Writer
	reporter intdiag.Reporter
	logger   *slog.Logger
	seed     int64
	seeded   bool
	queue    int
	poll     time.Duration
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		sink:   intmidi.NewCapture(),
		output: io.Discard,
		logger: slog.Default(),
	}
}

// WithSink installs the MIDI sink. The default is an in-memory capture
// sink, so a Session without hardware still runs scripts.
func WithSink(sink intmidi.Sink) SessionOption {
	return func(cfg *sessionConfig) { cfg.sink = sink }
}

// WithOutput directs command feedback and inspection dumps to w.
func WithOutput(w io.Writer) SessionOption {
	return func(cfg *sessionConfig) { cfg.output = w }
}

// WithReporter overrides the diagnostic reporter. The default writes
// diagnostics as lines on the feedback writer.
func WithReporter(rep intdiag.Reporter) SessionOption {
	return func(cfg *sessionConfig) { cfg.reporter = rep }
}

// WithSeed fixes the seed of the shared random source behind RND.
func WithSeed(seed int64) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.seed = seed
		cfg.seeded = true
	}
}

// WithQueueLimit bounds the dispatcher queue.
func WithQueueLimit(n int) SessionOption {
	return func(cfg *sessionConfig) { cfg.queue = n }
}

// WithPollInterval sets the dispatcher consumer's idle polling interval.
func WithPollInterval(iv time.Duration) SessionOption {
	return func(cfg *sessionConfig) { cfg.poll = iv }
}

func WithLogger(l *slog.Logger) SessionOption {
	return func(cfg *sessionConfig) { cfg.logger = l }
}

// Session wires the command parser, the tick environment, and the output
// dispatcher behind one mutex. Commands and ticks are serialized; the
// dispatcher's consumer is the only concurrent part.
type Session struct {
	mu     sync.Mutex
	env    *intengine.Environment
	parser *intcmd.Parser
	disp   *intmidi.Dispatcher
	closed bool
}

// writerReporter prints diagnostics on the feedback writer, the way the
// interactive environment surfaces errors without aborting.
type writerReporter struct {
	w io.Writer
}

func (r writerReporter) Report(d intdiag.Diagnostic) {
	fmt.Fprintf(r.w, "Error: %s\n", d.Error())
}

func NewSession(opts ...SessionOption) *Session {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.reporter == nil {
		cfg.reporter = writerReporter{w: cfg.output}
	}

	dispOpts := []intmidi.Option{intmidi.WithLogger(cfg.logger)}
	if cfg.queue > 0 {
		dispOpts = append(dispOpts, intmidi.WithQueueLimit(cfg.queue))
	}
	if cfg.poll > 0 {
		dispOpts = append(dispOpts, intmidi.WithPollInterval(cfg.poll))
	}
	disp := intmidi.NewDispatcher(cfg.sink, dispOpts...)

	env := intengine.New(disp, cfg.reporter)
	if cfg.seeded {
		env.Seed(cfg.seed)
	}

	s := &Session{
		env:    env,
		parser: intcmd.New(env, cfg.reporter, cfg.output),
		disp:   disp,
	}
	disp.Start()
	return s
}

// ParseLine executes one command line. It reports whether the line
// matched a form and applied cleanly; a failed line never aborts the
// session.
func (s *Session) ParseLine(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parser.ParseLine(line)
}

// Eval evaluates an expression against the current variable table.
func (s *Session) Eval(expr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parser.Eval(expr)
}

// Tick advances the clock one step.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env.Tick()
}

// RunTicks advances the clock count steps.
func (s *Session) RunTicks(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env.RunTicks(count)
}

// TickCount returns the current tick counter (wraps modulo 256).
func (s *Session) TickCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.env.TickCount()
}

// Describe dumps every variable binding, sorted by name.
func (s *Session) Describe() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.env.Describe()
}

// Ports lists the sink's output ports.
func (s *Session) Ports() ([]string, error) {
	return s.disp.Ports()
}

// SelectDevice opens the output port at index, closing any previously
// open one first.
func (s *Session) SelectDevice(index int) error {
	return s.disp.SelectDevice(index)
}

// CloseDevice closes the current output port, if any.
func (s *Session) CloseDevice() error {
	return s.disp.CloseDevice()
}

// Pending returns the number of MIDI frames waiting for delivery.
func (s *Session) Pending() int {
	return s.disp.Pending()
}

// Close stops the dispatcher, closes the device, and destroys every
// binding. Closing a closed session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.disp.Stop()
	err := s.disp.CloseDevice()
	s.env.Close()
	return err
}
