package savestate

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thelolagemann/devsched/internal/machine"
	"github.com/thelolagemann/devsched/internal/types"
)

func newMachine(t *testing.T, frames int) *machine.Machine {
	t.Helper()
	m, err := machine.New()
	require.NoError(t, err)
	for i := 0; i < frames; i++ {
		m.Frame()
	}
	return m
}

func raw(t *testing.T, m *machine.Machine) []byte {
	t.Helper()
	st := types.NewState()
	require.NoError(t, m.Save(st))
	return st.Bytes()
}

func TestWriteRead(t *testing.T) {
	m := newMachine(t, 2)
	path := filepath.Join(t.TempDir(), "m.state")
	require.NoError(t, Write(path, m))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, magic))
	assert.Less(t, len(data), len(raw(t, m)))

	state, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, raw(t, m), state)

	restored, err := machine.New(machine.WithState(state))
	require.NoError(t, err)
	assert.True(t, restored.LoadedFromState())
	assert.Equal(t, m.Frames(), restored.Frames())
}

func TestRead_Zip(t *testing.T) {
	m := newMachine(t, 1)
	data, err := Encode(m, 5)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("m.state")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	path := filepath.Join(t.TempDir(), "m.zip")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	state, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, raw(t, m), state)
}

func TestDecode(t *testing.T) {
	plain := []byte("DSCH raw")
	out, err := Decode(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, out)

	_, err = Decode(append(append([]byte(nil), magic...), 0xff, 0xff, 0xff))
	assert.ErrorIs(t, err, ErrCorrupt)
}
