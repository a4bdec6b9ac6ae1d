package midiout

import (
	"strconv"
	"strings"
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var noteOffsets = map[string]int{
	"C": 0, "C#": 1, "DB": 1, "D": 2, "D#": 3, "EB": 3,
	"E": 4, "F": 5, "F#": 6, "GB": 6, "G": 7, "G#": 8,
	"AB": 8, "A": 9, "A#": 10, "BB": 10, "B": 11,
}

// NoteName converts a MIDI note number to its display name (60 = "C4").
func NoteName(note int) string {
	if note < 0 || note > 127 {
		return "Invalid"
	}
	return noteNames[note%12] + strconv.Itoa(note/12-1)
}

// NoteNumber converts a note name like "C4" or "f#2" to its MIDI note
// number, or -1 when the name is not recognized.
func NoteNumber(name string) int {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	i := 0
	for i < len(normalized) && normalized[i] != '-' && (normalized[i] < '0' || normalized[i] > '9') {
		i++
	}
	notePart := normalized[:i]
	octave := 0
	if i < len(normalized) {
		n, err := strconv.Atoi(normalized[i:])
		if err != nil {
			return -1
		}
		octave = n
	}
	offset, ok := noteOffsets[notePart]
	if !ok {
		return -1
	}
	return (octave+1)*12 + offset
}
