// Package storage persists the power timeline as a single JSON file.
//
// The file holds an object mapping slot timestamps to 0/1:
//
//	{"2026-01-01T12:00:00Z": 1, "2026-01-01T12:05:00Z": 0}
//
// Saves replace the whole file atomically (temp file + rename), so readers
// never observe a partial write.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sweeney/outlet-monitor/internal/logic"
)

// CorruptError reports a data file that exists but cannot be decoded.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("storage: corrupt data file %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Loaded describes the result of reading the data file.
type Loaded struct {
	Timeline *logic.Timeline
	// Legacy is true when the file used the old {"x": [...], "y": [...]} layout.
	Legacy bool
	// Repaired lists the slots that were missing on disk and filled with OFF.
	Repaired []logic.Change
}

// File is a JSON data file on disk.
type File struct {
	path string
}

// NewFile returns a File for path. Nothing is read or created until Load or Save.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the location of the data file.
func (f *File) Path() string {
	return f.path
}

// Load reads the data file. A missing file yields an empty timeline and no
// error. A malformed file yields an empty timeline and a *CorruptError so the
// caller can report it and carry on.
func (f *File) Load() (Loaded, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Loaded{Timeline: logic.NewTimeline()}, nil
	}
	if err != nil {
		return Loaded{Timeline: logic.NewTimeline()}, fmt.Errorf("storage: read %s: %w", f.path, err)
	}

	loaded, err := Decode(data)
	if err != nil {
		return Loaded{Timeline: logic.NewTimeline()}, &CorruptError{Path: f.path, Err: err}
	}
	return loaded, nil
}

// Save atomically replaces the data file with tl.
func (f *File) Save(tl *logic.Timeline) error {
	data, err := Encode(tl)
	if err != nil {
		return fmt.Errorf("storage: encode: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("storage: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

// Encode serialises tl as a JSON object with slots in ascending order.
func Encode(tl *logic.Timeline) ([]byte, error) {
	entries := tl.Entries()

	// encoding/json sorts map keys, and fixed-width UTC RFC3339 strings sort
	// chronologically, so a map gives ascending output.
	m := make(map[string]int, len(entries))
	for _, e := range entries {
		m[logic.FormatSlot(e.Slot)] = e.State.Bit()
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Decode parses either the current slot-map layout or the legacy x/y layout,
// repairing any gaps so the result is contiguous.
func Decode(data []byte) (Loaded, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Loaded{Timeline: logic.NewTimeline()}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Loaded{}, err
	}

	var (
		tl     *logic.Timeline
		legacy bool
		err    error
	)
	if isLegacy(raw) {
		tl, err = decodeLegacy(raw)
		legacy = true
	} else {
		tl, err = decodeSlots(raw)
	}
	if err != nil {
		return Loaded{}, err
	}

	repaired := tl.Repair()
	return Loaded{Timeline: tl, Legacy: legacy, Repaired: repaired}, nil
}

func decodeSlots(raw map[string]json.RawMessage) (*logic.Timeline, error) {
	tl := logic.NewTimeline()
	for k, v := range raw {
		ts, err := logic.ParseTimestamp(k)
		if err != nil {
			return nil, fmt.Errorf("slot %q: %w", k, err)
		}
		var bit int
		if err := json.Unmarshal(v, &bit); err != nil {
			return nil, fmt.Errorf("slot %q: %w", k, err)
		}
		state, err := logic.StateFromBit(bit)
		if err != nil {
			return nil, fmt.Errorf("slot %q: %w", k, err)
		}
		tl.Put(logic.Floor(ts), state)
	}
	return tl, nil
}

// legacyData is the layout written by the previous service: parallel arrays
// of naive ISO timestamps and 0/1 values.
type legacyData struct {
	X []string `json:"x"`
	Y []int    `json:"y"`
}

func isLegacy(raw map[string]json.RawMessage) bool {
	if len(raw) != 2 {
		return false
	}
	_, hasX := raw["x"]
	_, hasY := raw["y"]
	return hasX && hasY
}

func decodeLegacy(raw map[string]json.RawMessage) (*logic.Timeline, error) {
	var ld legacyData
	if err := json.Unmarshal(raw["x"], &ld.X); err != nil {
		return nil, fmt.Errorf("legacy x: %w", err)
	}
	if err := json.Unmarshal(raw["y"], &ld.Y); err != nil {
		return nil, fmt.Errorf("legacy y: %w", err)
	}
	if len(ld.X) != len(ld.Y) {
		return nil, fmt.Errorf("legacy: %d timestamps but %d values", len(ld.X), len(ld.Y))
	}

	tl := logic.NewTimeline()
	for i, x := range ld.X {
		ts, err := logic.ParseTimestamp(x)
		if err != nil {
			return nil, fmt.Errorf("legacy x[%d]: %w", i, err)
		}
		state, err := logic.StateFromBit(ld.Y[i])
		if err != nil {
			return nil, fmt.Errorf("legacy y[%d]: %w", i, err)
		}
		tl.Put(logic.Floor(ts), state)
	}
	return tl, nil
}
