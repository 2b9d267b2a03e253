package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sweeney/outlet-monitor/internal/logic"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func slotAt(n int) time.Time {
	return t0.Add(time.Duration(n) * logic.SlotWidth)
}

func TestLoadMissingFile(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "power_data.json"))
	loaded, err := f.Load()
	require.NoError(t, err)
	require.Equal(t, 0, loaded.Timeline.Len())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "power_data.json"))
	tl := logic.NewTimeline()
	tl.Apply(slotAt(0), logic.StateOn)
	tl.Apply(slotAt(3), logic.StateOn)
	tl.Apply(slotAt(5), logic.StateOff)

	require.NoError(t, f.Save(tl))
	first, err := f.Load()
	require.NoError(t, err)
	require.True(t, tl.Equal(first.Timeline))
	require.Empty(t, first.Repaired)

	require.NoError(t, f.Save(first.Timeline))
	second, err := f.Load()
	require.NoError(t, err)
	require.True(t, first.Timeline.Equal(second.Timeline))
}

func TestSaveWritesAscendingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "power_data.json")
	f := NewFile(path)
	tl := logic.NewTimeline()
	tl.Apply(slotAt(2), logic.StateOn)
	tl.Apply(slotAt(0), logic.StateOn)

	require.NoError(t, f.Save(tl))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	s := string(data)
	i0 := strings.Index(s, logic.FormatSlot(slotAt(0)))
	i1 := strings.Index(s, logic.FormatSlot(slotAt(1)))
	i2 := strings.Index(s, logic.FormatSlot(slotAt(2)))
	require.True(t, i0 >= 0 && i0 < i1 && i1 < i2, "keys not ascending:\n%s", s)
	require.Contains(t, s, `"2026-01-01T12:00:00Z": 1`)
	require.Contains(t, s, `"2026-01-01T12:05:00Z": 0`)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	f := NewFile(filepath.Join(dir, "power_data.json"))
	tl := logic.NewTimeline()
	tl.Apply(slotAt(0), logic.StateOn)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.Save(tl))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "power_data.json", entries[0].Name())
}

func TestSaveCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "power_data.json")
	require.NoError(t, NewFile(path).Save(logic.NewTimeline()))
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestSaveFailsOnUnwritableTarget(t *testing.T) {
	dir := t.TempDir()
	// A directory where the file should be makes rename fail.
	path := filepath.Join(dir, "power_data.json")
	require.NoError(t, os.Mkdir(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "keep"), []byte("x"), 0o644))

	err := NewFile(path).Save(logic.NewTimeline())
	require.Error(t, err)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "power_data.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	loaded, err := NewFile(path).Load()
	require.Error(t, err)
	var ce *CorruptError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, path, ce.Path)
	require.NotNil(t, loaded.Timeline)
	require.Equal(t, 0, loaded.Timeline.Len())
}

func TestDecodeRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad state":     `{"2026-01-01T12:00:00Z": 2}`,
		"bad key":       `{"noon": 1}`,
		"string value":  `{"2026-01-01T12:00:00Z": "1"}`,
		"top-level arr": `[1, 2]`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(in))
			require.Error(t, err)
		})
	}
}

func TestDecodeEmptyDocument(t *testing.T) {
	loaded, err := Decode([]byte("  \n"))
	require.NoError(t, err)
	require.Equal(t, 0, loaded.Timeline.Len())

	loaded, err = Decode([]byte("{}"))
	require.NoError(t, err)
	require.Equal(t, 0, loaded.Timeline.Len())
}

func TestDecodeRepairsGaps(t *testing.T) {
	loaded, err := Decode([]byte(`{"2026-01-01T12:00:00Z": 1, "2026-01-01T12:15:00Z": 1}`))
	require.NoError(t, err)
	require.Len(t, loaded.Repaired, 2)
	require.True(t, loaded.Timeline.Contiguous())
	require.Equal(t, 4, loaded.Timeline.Len())
}

func TestDecodeLegacyLayout(t *testing.T) {
	in := `{"x": ["2026-01-01T12:00:00", "2026-01-01T12:05:00", "2026-01-01T12:05:00", "2026-01-01T12:20:00"],
	         "y": [1, 0, 1, 0]}`
	loaded, err := Decode([]byte(in))
	require.NoError(t, err)
	require.True(t, loaded.Legacy)

	tl := loaded.Timeline
	require.True(t, tl.Contiguous())
	require.Equal(t, 5, tl.Len())

	s, ok := tl.Get(slotAt(1))
	require.True(t, ok)
	require.Equal(t, logic.StateOn, s, "duplicate legacy slot should keep ON")
	s, _ = tl.Get(slotAt(4))
	require.Equal(t, logic.StateOff, s)
}

func TestDecodeLegacyMismatchedLengths(t *testing.T) {
	_, err := Decode([]byte(`{"x": ["2026-01-01T12:00:00"], "y": []}`))
	require.Error(t, err)
}
