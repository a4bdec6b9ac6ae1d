package reelia

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	intmidi "github.com/reelia/reelia-go/internal/midiout"
)

// RunScript feeds r to the session line by line. Blank lines and lines
// starting with ';' or '//' are skipped. Execution continues past failed
// lines; the count of failures is returned alongside any read error.
func (s *Session) RunScript(r io.Reader) (failed int, err error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "//") {
			continue
		}
		if !s.ParseLine(line) {
			failed++
		}
	}
	return failed, sc.Err()
}

// RenderScript runs a script against a fresh capture sink and returns the
// raw MIDI frames it produced, in delivery order. Useful for inspecting
// what a script plays without opening a device.
func RenderScript(r io.Reader, opts ...SessionOption) ([][]byte, error) {
	capture := intmidi.NewCapture()
	if err := capture.Open(0); err != nil {
		return nil, err
	}
	all := append([]SessionOption{WithSink(capture)}, opts...)
	s := NewSession(all...)
	defer s.Close()
	if err := s.SelectDevice(0); err != nil {
		return nil, err
	}

	failed, err := s.RunScript(r)
	if err != nil {
		return nil, err
	}
	s.disp.Flush()
	if failed > 0 {
		return capture.Frames(), fmt.Errorf("%d command line(s) failed", failed)
	}
	return capture.Frames(), nil
}
