package scheduler

import (
	"github.com/cespare/xxhash"
	"strings"
)

// Device is implemented by anything that owns timers. The tag is used
// to build the unique id of its callbacks and in log messages.
type Device interface {
	Tag() string
}

// Callback is a registered timer callback: the delegate to invoke,
// along with a user pointer and the identity used to find it again
// after a state has been loaded. A Callback must not be copied once it
// has been registered.
type Callback struct {
	delegate   Delegate
	name       string
	ptr        any
	scheduler  *Scheduler
	device     Device
	persistent *PersistentTimer // owning persistent timer, or nil

	uniqueID   string
	uniqueHash uint32
	saveIndex  uint16
	registered bool

	calls uint64
}

// Init binds delegate to the callback and registers it with s. The
// unique id is formed from name and any additional unique strings;
// callbacks that are created more than once with the same name should
// pass something to tell them apart.
func (c *Callback) Init(s *Scheduler, delegate Delegate, name string, unique ...string) *Callback {
	return c.init(s, nil, delegate, name, unique)
}

// InitDevice is like Init, but records dev as the owner of the callback
// and prefixes the unique id with its tag.
func (c *Callback) InitDevice(s *Scheduler, dev Device, delegate Delegate, name string, unique ...string) *Callback {
	return c.init(s, dev, delegate, name, unique)
}

func (c *Callback) init(s *Scheduler, dev Device, delegate Delegate, name string, unique []string) *Callback {
	// rebinding, so drop the old registration first
	if c.registered {
		c.scheduler.DeregisterCallback(c)
	}

	c.scheduler = s
	c.delegate = delegate
	c.name = name
	c.device = dev

	var id strings.Builder
	if dev != nil {
		id.WriteString(dev.Tag())
		id.WriteByte('/')
	}
	id.WriteString(name)
	for _, u := range unique {
		if u == "" {
			continue
		}
		id.WriteByte('/')
		id.WriteString(u)
	}
	c.uniqueID = id.String()
	c.uniqueHash = uint32(xxhash.Sum64([]byte(c.uniqueID)))

	c.saveIndex = s.RegisterCallback(c)
	return c
}

// call invokes the delegate.
func (c *Callback) call(t *Instance) {
	c.calls++
	c.delegate(t)
}

// Name returns the human readable name of the callback.
func (c *Callback) Name() string { return c.name }

// Ptr returns the user pointer.
func (c *Callback) Ptr() any { return c.ptr }

// Device returns the owning device, or nil.
func (c *Callback) Device() Device { return c.device }

// Persistent returns the persistent timer that embeds the callback, or
// nil for free standing and transient callbacks.
func (c *Callback) Persistent() *PersistentTimer { return c.persistent }

// Scheduler returns the scheduler the callback is registered with.
func (c *Callback) Scheduler() *Scheduler { return c.scheduler }

// UniqueID returns the unique id string.
func (c *Callback) UniqueID() string { return c.uniqueID }

// UniqueHash returns the 32-bit hash of the unique id.
func (c *Callback) UniqueHash() uint32 { return c.uniqueHash }

// SaveIndex returns the index which, together with the unique hash,
// identifies the callback in a saved state.
func (c *Callback) SaveIndex() uint16 { return c.saveIndex }

// Calls returns the number of times the callback has been invoked.
func (c *Callback) Calls() uint64 { return c.calls }

// SetPtr sets the user pointer.
func (c *Callback) SetPtr(ptr any) *Callback {
	c.ptr = ptr
	return c
}

// SetDevice sets the owning device. The unique id is not changed.
func (c *Callback) SetDevice(dev Device) *Callback {
	c.device = dev
	return c
}

func (c *Callback) String() string {
	if c.device != nil {
		return c.device.Tag() + ":" + c.name
	}
	return c.name
}
