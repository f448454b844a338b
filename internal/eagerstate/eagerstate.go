// Package eagerstate implements the optional in-memory key/value snapshot
// carried in the start message, and the local overlay that records this
// invocation's own writes so they never require a wire round-trip (§4.4).
package eagerstate

// Status is the three-way answer a Get gives: a concrete value, a
// definite absence, or an absence the VM cannot resolve locally.
type Status uint8

const (
	// Unknown means the key is absent from a partial snapshot and
	// nothing local has overridden it — the coordinator must be asked.
	Unknown Status = iota
	// Empty means the key is definitely absent: either the snapshot
	// declared itself complete, or this invocation cleared the key.
	Empty
	// Found means a concrete value is available locally.
	Found
)

func (s Status) String() string {
	switch s {
	case Unknown:
		return "Unknown"
	case Empty:
		return "Empty"
	case Found:
		return "Found"
	default:
		return "Invalid"
	}
}

// Map is the eager state view for one invocation. It is seeded once from
// the start message's snapshot and partial_state flag, then mutated
// in-place by Set/Clear/ClearAll so that later Gets within the same
// invocation never re-consult the snapshot's absence semantics.
//
// Not safe for concurrent use (§5): one Map per invocation.
type Map struct {
	values     map[string][]byte
	emptyKeys  map[string]bool // keys explicitly known absent, regardless of partial
	partial    bool
	clearedAll bool
}

// New builds a Map from the start message's declared snapshot. partial
// mirrors partial_state: true means "absence here is Unknown", false
// means the snapshot is exhaustive and absence means Empty.
func New(snapshot map[string][]byte, partial bool) *Map {
	values := make(map[string][]byte, len(snapshot))
	for k, v := range snapshot {
		values[k] = v
	}
	return &Map{values: values, emptyKeys: make(map[string]bool), partial: partial}
}

// Get reports the local status of key k.
func (m *Map) Get(k string) (Status, []byte) {
	if v, ok := m.values[k]; ok {
		return Found, v
	}
	if m.emptyKeys[k] || m.clearedAll || !m.partial {
		return Empty, nil
	}
	return Unknown, nil
}

// Set immediately overwrites k in the local view; later Gets of k in
// this invocation serve this value regardless of partial_state (§3).
func (m *Map) Set(k string, v []byte) {
	m.values[k] = v
	delete(m.emptyKeys, k)
}

// Clear removes k from the local view and marks it definitely absent.
func (m *Map) Clear(k string) {
	delete(m.values, k)
	m.emptyKeys[k] = true
}

// ClearAll marks every key as definitely absent; any key not
// subsequently Set again resolves to Empty for the rest of the
// invocation (§3).
func (m *Map) ClearAll() {
	m.values = make(map[string][]byte)
	m.emptyKeys = make(map[string]bool)
	m.clearedAll = true
}

// Keys returns the set of keys currently known locally to hold a value.
// Absent or cleared keys are never included.
func (m *Map) Keys() []string {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	return keys
}
