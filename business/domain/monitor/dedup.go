package monitor

// Dedup is a bounded record of transaction hashes that were already
// admitted. Eviction is strictly oldest-inserted-first so that a recently
// seen hash can never be readmitted while older ones linger.
//
// A Dedup instance is owned by a single NetworkMonitor and must not be
// shared across networks.
type Dedup struct {
	capacity int
	seen     map[string]struct{}
	order    []string
	head     int
}

func NewDedup(capacity int) *Dedup {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Dedup{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
	}
}

// IsNew reports whether the hash was not seen before and records it as
// seen. Inserting beyond capacity evicts the oldest recorded hash.
func (d *Dedup) IsNew(hash string) bool {
	if _, ok := d.seen[hash]; ok {
		return false
	}

	if len(d.order) < d.capacity {
		d.order = append(d.order, hash)
	} else {
		oldest := d.order[d.head]
		delete(d.seen, oldest)
		d.order[d.head] = hash
		d.head = (d.head + 1) % d.capacity
	}
	d.seen[hash] = struct{}{}

	return true
}

// Len returns the number of hashes currently recorded.
func (d *Dedup) Len() int {
	return len(d.seen)
}
