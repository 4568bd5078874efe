// Package savestate stores machine states on disk, compressed with
// brotli.
package savestate

import (
	"bytes"
	"errors"
	"fmt"
	"github.com/google/brotli/go/cbrotli"
	"github.com/thelolagemann/devsched/internal/machine"
	"github.com/thelolagemann/devsched/internal/types"
	"github.com/thelolagemann/devsched/pkg/utils"
	"os"
	"path/filepath"
)

// magic marks a brotli compressed state. Files without it are read as
// raw machine states.
var magic = []byte("DSBR")

// DefaultQuality is the brotli quality used by Write.
const DefaultQuality = 9

// ErrCorrupt is returned when a compressed state cannot be decoded.
var ErrCorrupt = errors.New("savestate: corrupt state")

// Encode saves m and compresses the result.
func Encode(m *machine.Machine, quality int) ([]byte, error) {
	st := types.NewState()
	if err := m.Save(st); err != nil {
		return nil, err
	}

	out, err := cbrotli.Encode(st.Bytes(), cbrotli.WriterOptions{
		Quality: quality,
	})
	if err != nil {
		return nil, fmt.Errorf("savestate: compressing: %w", err)
	}
	return append(append([]byte(nil), magic...), out...), nil
}

// Decode returns the raw machine state held in data.
func Decode(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, magic) {
		return data, nil
	}

	raw, err := cbrotli.Decode(data[len(magic):])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return raw, nil
}

// Write saves m to path. The file is replaced atomically.
func Write(path string, m *machine.Machine) error {
	data, err := Encode(m, DefaultQuality)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Read loads the state stored at path, which may be inside an archive,
// and returns it ready for machine.WithState.
func Read(path string) ([]byte, error) {
	data, err := utils.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
