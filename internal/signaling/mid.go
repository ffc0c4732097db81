package signaling

import "strconv"

// MIDAllocator assigns the lowest unused integer MID per media kind,
// matching the original peer connection's MID-numbering scheme
// (one independent counter per media kind, not a single global counter).
type MIDAllocator struct {
	used map[string]map[int]bool
}

// NewMIDAllocator returns an empty allocator.
func NewMIDAllocator() *MIDAllocator {
	return &MIDAllocator{used: make(map[string]map[int]bool)}
}

// Reserve marks mid as taken for kind, so Allocate never hands it out. Call
// this for MIDs carried over from an existing transceiver before assigning
// any new ones, so create_offer/create_answer preserve already-assigned
// MIDs rather than renumbering them.
func (a *MIDAllocator) Reserve(kind string, mid int) {
	a.streams(kind)[mid] = true
}

// Allocate returns the lowest non-negative integer not yet used for kind,
// and marks it used.
func (a *MIDAllocator) Allocate(kind string) int {
	used := a.streams(kind)
	mid := 0
	for used[mid] {
		mid++
	}
	used[mid] = true
	return mid
}

func (a *MIDAllocator) streams(kind string) map[int]bool {
	m, ok := a.used[kind]
	if !ok {
		m = make(map[int]bool)
		a.used[kind] = m
	}
	return m
}

// ParseMID parses a MID attribute value as assigned by Allocate. Returns
// ok=false if mid wasn't produced by this allocator's numbering scheme
// (e.g. a remote peer's non-numeric MID), in which case the caller should
// treat it as an opaque string rather than a slot to reserve.
func ParseMID(s string) (mid int, ok bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
