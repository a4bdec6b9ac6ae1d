// Command reelia is the interactive live-coding environment: a REPL over
// a Session with device selection, manual and timed ticking, and script
// execution.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"

	"github.com/reelia/reelia-go"
	"github.com/reelia/reelia-go/internal/midiout"
)

const historyFile = ".reelia_history"

func main() {
	var (
		listPorts = flag.Bool("list", false, "list MIDI output ports and exit")
		device    = flag.Int("device", -1, "MIDI output port index to open")
		interval  = flag.Int("interval", 0, "auto-tick interval in ms (0 = manual ticking)")
		script    = flag.String("file", "", "run a command script instead of the REPL")
		dryRun    = flag.Bool("dry", false, "use an in-memory sink instead of a MIDI device")
		seed      = flag.Int64("seed", 0, "seed for the RND function (0 = default)")
		debug     = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()
	initLogger(*debug)

	os.Exit(run(*listPorts, *device, *interval, *script, *dryRun, *seed))
}

// initLogger configures the shared slog logger so everything in the
// process routes through one handler.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	slog.SetDefault(slog.New(h))
}

func run(listPorts bool, device, interval int, script string, dryRun bool, seed int64) int {
	opts := []reelia.SessionOption{reelia.WithOutput(os.Stdout)}
	if seed != 0 {
		opts = append(opts, reelia.WithSeed(seed))
	}

	var sink midiout.Sink
	if dryRun {
		capture := midiout.NewCapture()
		_ = capture.Open(0)
		sink = capture
	} else {
		rt, err := midiout.NewRtMidiSink()
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		defer rt.Destroy()
		sink = rt
	}
	opts = append(opts, reelia.WithSink(sink))

	sess := reelia.NewSession(opts...)
	defer sess.Close()

	if listPorts {
		return printPorts(sess)
	}
	if device >= 0 {
		if err := sess.SelectDevice(device); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		fmt.Printf("Opened MIDI device %d\n", device)
	}

	if script != "" {
		return runScript(sess, script)
	}
	return repl(sess, interval)
}

func printPorts(sess *reelia.Session) int {
	ports, err := sess.Ports()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	if len(ports) == 0 {
		fmt.Println("No MIDI output ports found.")
		return 0
	}
	for i, name := range ports {
		fmt.Printf("%3d  %s\n", i, name)
	}
	return 0
}

func runScript(sess *reelia.Session, path string) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer f.Close()
	failed, err := sess.RunScript(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d command line(s) failed\n", failed)
		return 1
	}
	return 0
}

// autoTicker drives Session.Tick on a timer. Interval changes restart the
// loop; stopping joins it.
type autoTicker struct {
	sess *reelia.Session
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (a *autoTicker) Start(interval time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
	stop := make(chan struct{})
	done := make(chan struct{})
	a.stop, a.done = stop, done
	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				a.sess.Tick()
			}
		}
	}()
}

func (a *autoTicker) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *autoTicker) stopLocked() {
	if a.stop == nil {
		return
	}
	close(a.stop)
	<-a.done
	a.stop, a.done = nil, nil
}

func (a *autoTicker) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stop != nil
}

func repl(sess *reelia.Session, intervalMS int) int {
	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	ticker := &autoTicker{sess: sess}
	defer ticker.Stop()
	if intervalMS > 0 {
		ticker.Start(time.Duration(intervalMS) * time.Millisecond)
		fmt.Printf("Auto-tick: ON (%dms)\n", intervalMS)
	}

	fmt.Println("Reelia Live Coding Environment")
	fmt.Println("Type :help for commands, :quit to exit.")

	for {
		line, err := ln.Prompt("> ")
		if err != nil {
			if err == liner.ErrPromptAborted {
				continue
			}
			fmt.Println()
			return 0 // Ctrl+D
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)

		if strings.HasPrefix(line, ":") {
			if quit := replCommand(sess, ticker, line); quit {
				return 0
			}
			continue
		}
		sess.ParseLine(line)
	}
}

// replCommand handles the colon-prefixed REPL controls. Returns true on
// quit.
func replCommand(sess *reelia.Session, ticker *autoTicker, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q", ":exit":
		return true

	case ":help", ":h":
		printHelp()

	case ":tick", ":t":
		sess.Tick()
		fmt.Printf("Tick: %d\n", sess.TickCount())

	case ":vars", ":v":
		fmt.Print(sess.Describe())

	case ":ports":
		printPorts(sess)

	case ":device":
		if len(fields) < 2 {
			fmt.Println("usage: :device <index>")
			break
		}
		index, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Println("usage: :device <index>")
			break
		}
		if err := sess.SelectDevice(index); err != nil {
			fmt.Println("error:", err)
			break
		}
		fmt.Printf("Opened MIDI device %d\n", index)

	case ":auto":
		if len(fields) < 2 || fields[1] == "off" {
			ticker.Stop()
			fmt.Println("Auto-tick: OFF")
			break
		}
		ms, err := strconv.Atoi(fields[1])
		if err != nil || ms <= 0 {
			fmt.Println("usage: :auto <ms> | :auto off")
			break
		}
		ticker.Start(time.Duration(ms) * time.Millisecond)
		fmt.Printf("Auto-tick: ON (%dms)\n", ms)

	default:
		fmt.Printf("unknown command %s (try :help)\n", fields[0])
	}
	return false
}

func printHelp() {
	fmt.Print(`Commands:
  $var = PAT|EUC|SIN|TRI|SAW|SQR|RND|SEQ   create a generator module
  $var = @int|@binary|@seq|@count|@midi_note|@midi_cc|@midi_seq
                                           create a runtime object
  $var.attr = expr                         set a parameter or attribute
  $var = expr                              assign an integer
  $var = $other                            copy (deep clone)
  $var.start() | $other.stop()             deferred method calls, pipeline
  IF expr THEN cmd / REPEAT n DO cmd       control forms
  RUN n                                    advance n ticks
  $var                                     inspect a binding

REPL controls:
  :tick          advance one tick           :vars     dump variables
  :auto <ms>     timed auto-tick            :auto off stop auto-tick
  :ports         list MIDI outputs          :device N open output N
  :help          this text                  :quit     exit
`)
}
