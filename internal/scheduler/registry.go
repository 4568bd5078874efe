package scheduler

// saveKey combines a unique hash and save index into one map key.
func saveKey(hash uint32, index uint16) uint64 {
	return uint64(hash)<<16 | uint64(index)
}

// RegisterCallback adds c to the registry and returns its save index.
// The index is the lowest one not already taken by a callback with the
// same unique hash, so the same sequence of registrations always hands
// out the same indices.
func (s *Scheduler) RegisterCallback(c *Callback) uint16 {
	if c.registered {
		s.DeregisterCallback(c)
	}

	var index uint16
	for {
		if _, taken := s.registry[saveKey(c.uniqueHash, index)]; !taken {
			break
		}
		index++
	}

	c.saveIndex = index
	c.registered = true
	s.registry[saveKey(c.uniqueHash, index)] = c
	s.callbacks = append(s.callbacks, c)

	s.log.Debugf("scheduler: registered callback %s (hash %08x, index %d)", c.uniqueID, c.uniqueHash, index)
	return index
}

// DeregisterCallback removes c from the registry. Deregistering a
// callback that is not registered does nothing.
func (s *Scheduler) DeregisterCallback(c *Callback) {
	if !c.registered {
		return
	}
	key := saveKey(c.uniqueHash, c.saveIndex)
	if s.assert(s.registry[key] == c, "callback %s registered under a foreign save index", c.uniqueID) {
		delete(s.registry, key)
	}

	for i, r := range s.callbacks {
		if r == c {
			s.callbacks = append(s.callbacks[:i], s.callbacks[i+1:]...)
			break
		}
	}
	c.registered = false
}

// lookupCallback finds a registered callback by its save identity.
func (s *Scheduler) lookupCallback(hash uint32, index uint16) *Callback {
	return s.registry[saveKey(hash, index)]
}

// Callbacks calls fn for every registered callback, in registration
// order, until fn returns false.
func (s *Scheduler) Callbacks(fn func(c *Callback) bool) {
	for _, c := range s.callbacks {
		if !fn(c) {
			return
		}
	}
}
