package reelia

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/reelia/reelia-go/internal/midiout"
)

func newCaptureSession(t *testing.T) (*Session, *midiout.Capture) {
	t.Helper()
	capture := midiout.NewCapture()
	sess := NewSession(
		WithSink(capture),
		WithPollInterval(time.Millisecond),
		WithSeed(1),
	)
	t.Cleanup(func() { _ = sess.Close() })
	if err := sess.SelectDevice(0); err != nil {
		t.Fatal(err)
	}
	return sess, capture
}

func TestSessionNoteLifecycle(t *testing.T) {
	sess, capture := newCaptureSession(t)

	for _, line := range []string{
		"$n = @midi_note",
		"$n.note = 64",
		"$n.duration = 1",
		"$n.trigger()",
		"RUN 2",
	} {
		if !sess.ParseLine(line) {
			t.Fatalf("ParseLine(%q) failed", line)
		}
	}

	frames := awaitFrames(t, capture, 2)
	if frames[0][0] != 0x90 || frames[0][1] != 64 {
		t.Fatalf("first frame = %#v, want note-on 64", frames[0])
	}
	if frames[1][0] != 0x80 || frames[1][1] != 64 {
		t.Fatalf("second frame = %#v, want note-off 64", frames[1])
	}
}

func TestSessionFeedbackAndDiagnostics(t *testing.T) {
	var out bytes.Buffer
	sess := NewSession(WithOutput(&out))
	defer sess.Close()

	if !sess.ParseLine("$x = 5") {
		t.Fatal("assignment failed")
	}
	if !strings.Contains(out.String(), "$X = 5 (INTEGER)") {
		t.Fatalf("feedback = %q", out.String())
	}

	out.Reset()
	if sess.ParseLine("complete nonsense") {
		t.Fatal("garbage line should fail")
	}
	if !strings.Contains(out.String(), "Error:") {
		t.Fatalf("diagnostic not surfaced: %q", out.String())
	}

	// The session survives and keeps processing.
	if !sess.ParseLine("$y = $x + 1") {
		t.Fatal("valid line after an error failed")
	}
	if got := sess.Eval("$Y"); got != 6 {
		t.Fatalf("$Y = %d, want 6", got)
	}
}

func TestSessionTickingAndDescribe(t *testing.T) {
	sess := NewSession()
	defer sess.Close()

	sess.ParseLine("$m = SAW")
	sess.RunTicks(4)
	if sess.TickCount() != 4 {
		t.Fatalf("tick = %d, want 4", sess.TickCount())
	}
	if !strings.Contains(sess.Describe(), "$M") {
		t.Fatalf("Describe = %q", sess.Describe())
	}
}

func TestSessionSeedMakesRNDReproducible(t *testing.T) {
	a := NewSession(WithSeed(7))
	defer a.Close()
	b := NewSession(WithSeed(7))
	defer b.Close()

	for i := 0; i < 10; i++ {
		va := a.Eval("RND(0, 1000)")
		vb := b.Eval("RND(0, 1000)")
		if va != vb {
			t.Fatalf("draw %d: %d != %d", i, va, vb)
		}
	}
}

func TestSessionSendWithoutDeviceFailsFast(t *testing.T) {
	var out bytes.Buffer
	sess := NewSession(WithOutput(&out))
	defer sess.Close()

	// A CC value write sends immediately; with no device open the send
	// fails fast and nothing is queued.
	sess.ParseLine("$c = @midi_cc")
	sess.ParseLine("$c.value = 64")
	if sess.Pending() != 0 {
		t.Fatal("failed send was queued")
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	sess := NewSession()
	if err := sess.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sess.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRunScript(t *testing.T) {
	sess, capture := newCaptureSession(t)

	script := `
; drum line on channel 9
$s = @midi_seq
$s.data = #00000001
$s.midi_channel = 9
$s.note_0 = 36
RUN 1

// a failed line does not stop the script
$bogus.method = ???
$x = 1
`
	failed, err := sess.RunScript(strings.NewReader(script))
	if err != nil {
		t.Fatal(err)
	}
	if failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
	if got := sess.Eval("$X"); got != 1 {
		t.Fatalf("$X = %d; lines after a failure must still run", got)
	}
	frames := awaitFrames(t, capture, 1)
	if frames[0][0] != 0x99 || frames[0][1] != 36 {
		t.Fatalf("frame = %#v, want note-on 36 on channel 9", frames[0])
	}
}

func TestRenderScript(t *testing.T) {
	script := `
$n = @midi_note
$n.note = 60
$n.duration = 1
$n.trigger()
RUN 2
`
	frames, err := RenderScript(strings.NewReader(script))
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 2 {
		t.Fatalf("frames = %#v, want note-on and note-off", frames)
	}
	if frames[0][0] != 0x90 || frames[1][0] != 0x80 {
		t.Fatalf("frames = %#v", frames)
	}
}

func awaitFrames(t *testing.T, capture *midiout.Capture, n int) [][]byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frames := capture.Frames()
		if len(frames) >= n {
			return frames
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, got %d", n, len(capture.Frames()))
	return nil
}
