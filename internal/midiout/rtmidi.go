package midiout

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// RtMidiSink adapts the rtmidi driver to the Sink contract.
type RtMidiSink struct {
	drv *rtmididrv.Driver
	out drivers.Out
}

func NewRtMidiSink() (*RtMidiSink, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("initializing rtmidi: %w", err)
	}
	return &RtMidiSink{drv: drv}, nil
}

func (s *RtMidiSink) Ports() ([]string, error) {
	outs, err := s.drv.Outs()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.String()
	}
	return names, nil
}

func (s *RtMidiSink) Open(index int) error {
	outs, err := s.drv.Outs()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(outs) {
		return fmt.Errorf("output port index %d out of range", index)
	}
	if s.out != nil {
		_ = s.out.Close()
		s.out = nil
	}
	if err := outs[index].Open(); err != nil {
		return err
	}
	s.out = outs[index]
	return nil
}

func (s *RtMidiSink) Close() error {
	if s.out == nil {
		return nil
	}
	err := s.out.Close()
	s.out = nil
	return err
}

func (s *RtMidiSink) Send(raw []byte) error {
	if s.out == nil {
		return fmt.Errorf("no open MIDI output port")
	}
	return s.out.Send(raw)
}

// Destroy releases the driver itself. Call after Close when the session
// ends.
func (s *RtMidiSink) Destroy() {
	_ = s.Close()
	s.drv.Close()
}
