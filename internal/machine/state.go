package machine

import (
	"errors"
	"fmt"
	"github.com/thelolagemann/devsched/internal/scheduler"
	"github.com/thelolagemann/devsched/internal/types"
	"github.com/thelolagemann/devsched/internal/vtime"
)

const (
	stateMagic   = "DSCH"
	stateVersion = 1

	timeSize = 16
)

// ErrBadState is returned when a state was not written by a machine of
// the same shape.
var ErrBadState = errors.New("machine: bad state")

// Save writes the state of the machine: its cores, its devices and
// every pending timer.
func (m *Machine) Save(st *types.State) error {
	// check first, so that a refused save writes nothing at all
	if !m.s.CanSave() {
		return fmt.Errorf("machine: saving: %w", scheduler.ErrSaveCapacity)
	}

	st.WriteData([]byte(stateMagic))
	st.Write8(stateVersion)
	st.Write64(m.frames)

	if err := m.saveDevices(st); err != nil {
		return err
	}

	if err := m.s.Save(st); err != nil {
		return fmt.Errorf("machine: saving: %w", err)
	}
	m.Infof("machine: saved %d bytes at frame %d", st.Len(), m.frames)
	return nil
}

// Load restores a state written by Save. The machine must have been
// created with the same units.
func (m *Machine) Load(st *types.State) error {
	if err := st.Need(len(stateMagic) + 1 + 8); err != nil {
		return fmt.Errorf("%w: %v", ErrBadState, err)
	}
	magic := make([]byte, len(stateMagic))
	st.ReadData(magic)
	if string(magic) != stateMagic {
		return fmt.Errorf("%w: not a machine state", ErrBadState)
	}
	if v := st.Read8(); v != stateVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrBadState, v, stateVersion)
	}
	frames := st.Read64()

	// keep what the devices hold now, so that a state rejected halfway
	// through leaves the machine as it was
	backup := types.NewState()
	if err := m.saveDevices(backup); err != nil {
		return fmt.Errorf("machine: loading: %w", err)
	}
	if err := m.loadDevices(st); err != nil {
		m.restoreDevices(backup)
		return fmt.Errorf("%w: %v", ErrBadState, err)
	}
	if err := m.s.Load(st); err != nil {
		m.restoreDevices(backup)
		return fmt.Errorf("machine: loading: %w", err)
	}
	m.frames = frames
	m.Infof("machine: loaded state at frame %d", m.frames)
	return nil
}

// saveDevices writes the cores and the latch.
func (m *Machine) saveDevices(st *types.State) error {
	st.Write8(uint8(len(m.cores)))
	for _, c := range m.cores {
		st.Write64(c.cycles)
		writeTime(st, c.pos)
		if p, ok := c.program.(types.Stater); ok {
			if err := p.Save(st); err != nil {
				return err
			}
		}
	}
	return m.latch.Save(st)
}

func (m *Machine) loadDevices(st *types.State) error {
	if err := st.Need(1); err != nil {
		return err
	}
	if n := int(st.Read8()); n != len(m.cores) {
		return fmt.Errorf("state has %d cores, machine has %d", n, len(m.cores))
	}
	for _, c := range m.cores {
		if err := st.Need(8 + timeSize); err != nil {
			return fmt.Errorf("core %s: %v", c.name, err)
		}
		c.cycles = st.Read64()
		c.pos = readTime(st)
		if p, ok := c.program.(types.Stater); ok {
			if err := p.Load(st); err != nil {
				return fmt.Errorf("core %s: %v", c.name, err)
			}
		}
	}
	if err := m.latch.Load(st); err != nil {
		return fmt.Errorf("latch: %v", err)
	}
	return nil
}

// restoreDevices puts back devices written by saveDevices. The backup
// was written by this machine, so it always reads back.
func (m *Machine) restoreDevices(backup *types.State) {
	_ = m.loadDevices(types.StateFromBytes(backup.Bytes()))
}

func (p *latchWriter) Save(st *types.State) error {
	st.Write64(p.next)
	st.Write8(p.value)
	return nil
}

func (p *latchWriter) Load(st *types.State) error {
	if err := st.Need(8 + 1); err != nil {
		return err
	}
	p.next = st.Read64()
	p.value = st.Read8()
	return nil
}

func (p *latchReader) Save(st *types.State) error {
	st.Write64(p.sum)
	return nil
}

func (p *latchReader) Load(st *types.State) error {
	if err := st.Need(8); err != nil {
		return err
	}
	p.sum = st.Read64()
	return nil
}

func writeTime(st *types.State, t vtime.Time) {
	st.WriteInt64(t.Seconds())
	st.WriteInt64(t.Attoseconds())
}

func readTime(st *types.State) vtime.Time {
	seconds := st.ReadInt64()
	return vtime.New(seconds, st.ReadInt64())
}
