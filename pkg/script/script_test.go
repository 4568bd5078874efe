package script

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thelolagemann/devsched/internal/machine"
	"github.com/thelolagemann/devsched/pkg/log"
)

func TestScript_StopsRun(t *testing.T) {
	var buf bytes.Buffer
	s, err := LoadString(`
function on_frame(snap)
	log("frame " .. snap.frame .. " " .. snap.units[1].name)
	return snap.frame < 3
end
`, log.NewWithWriter(&buf, false))
	require.NoError(t, err)
	defer s.Close()

	m, err := machine.New()
	require.NoError(t, err)
	m.OnFrame(s.OnFrame)

	for i := 0; i < 10 && !s.Done(); i++ {
		m.Frame()
	}
	assert.Equal(t, uint64(3), m.Frames())
	assert.ErrorIs(t, s.Err(), ErrStopped)
	assert.Contains(t, buf.String(), "frame 1 maincpu")
	assert.Contains(t, buf.String(), "frame 3 maincpu")
}

func TestScript_Snapshot(t *testing.T) {
	s, err := LoadString(`
seen = {}
function on_frame(snap)
	seen.frame = snap.frame
	seen.units = #snap.units
	seen.writes = snap.latch.writes
	seen.suspended = snap.units[2].suspended
end
`, nil)
	require.NoError(t, err)
	defer s.Close()

	s.OnFrame(machine.Snapshot{
		Frame: 7,
		Units: []machine.UnitSnapshot{{Name: "a"}, {Name: "b", Suspended: true}},
		Latch: machine.LatchSnapshot{Writes: 12},
	})
	require.NoError(t, s.Err())

	seen := s.L.GetGlobal("seen")
	assert.Equal(t, "7", s.L.GetField(seen, "frame").String())
	assert.Equal(t, "2", s.L.GetField(seen, "units").String())
	assert.Equal(t, "12", s.L.GetField(seen, "writes").String())
	assert.Equal(t, "true", s.L.GetField(seen, "suspended").String())
}

func TestScript_Errors(t *testing.T) {
	_, err := LoadString(`this is not lua`, nil)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.lua"), nil)
	assert.Error(t, err)

	s, err := LoadString(`function on_frame(snap) error("boom") end`, nil)
	require.NoError(t, err)
	defer s.Close()
	s.OnFrame(machine.Snapshot{})
	require.Error(t, s.Err())
	assert.Contains(t, s.Err().Error(), "boom")
	assert.True(t, s.Done())
}

func TestScript_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "count.lua")
	require.NoError(t, os.WriteFile(path, []byte(`
frames = 0
function on_frame(snap) frames = frames + 1 end
`), 0o644))

	s, err := Load(path, nil)
	require.NoError(t, err)
	defer s.Close()

	s.OnFrame(machine.Snapshot{})
	s.OnFrame(machine.Snapshot{})
	assert.False(t, s.Done())
	assert.Equal(t, "2", s.L.GetGlobal("frames").String())
}

func TestScript_NoHook(t *testing.T) {
	s, err := LoadString(`x = 1`, nil)
	require.NoError(t, err)
	defer s.Close()
	s.OnFrame(machine.Snapshot{})
	assert.NoError(t, s.Err())
}
