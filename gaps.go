package mavftp

import "time"

// gap is a contiguous byte range known to be missing from the read sink's
// prefix. lastSent is the zero time when the gap has never been sent.
//
// Grounded on spec.md §9's redesign note: the original keeps a parallel
// list and a (offset,length)-keyed map of last-send times; this collapses
// both into one ordered slice of records, with exact-pair lookups becoming
// linear scans by (offset, length).
type gap struct {
	offset   uint32
	length   uint8
	lastSent time.Time
}

// gapList tracks outstanding unfilled byte ranges in insertion order.
type gapList struct {
	items []gap
}

func (g *gapList) len() int { return len(g.items) }

func (g *gapList) empty() bool { return len(g.items) == 0 }

// add appends a new, never-sent gap.
func (g *gapList) add(offset uint32, length uint8) {
	g.items = append(g.items, gap{offset: offset, length: length})
}

// front returns the head gap (the next candidate for a repair read).
func (g *gapList) front() (gap, bool) {
	if len(g.items) == 0 {
		return gap{}, false
	}
	return g.items[0], true
}

// findExact locates a gap by exact (offset, length) identity, as required
// by spec.md §3 ("lookup is by exact-pair identity").
func (g *gapList) findExact(offset uint32, length int) int {
	for i, it := range g.items {
		if it.offset == offset && int(it.length) == length {
			return i
		}
	}
	return -1
}

// removeAt deletes the gap at index i, preserving the order of the rest.
func (g *gapList) removeAt(i int) {
	g.items = append(g.items[:i], g.items[i+1:]...)
}

// markSent moves the gap at index i to the tail and stamps its last-send
// time, matching __send_gap_read's remove+append-to-tail behavior.
func (g *gapList) markSent(i int, when time.Time) {
	it := g.items[i]
	it.lastSent = when
	g.items = append(g.items[:i], g.items[i+1:]...)
	g.items = append(g.items, it)
}

// resetFrontTimer clears the head gap's last-send time, making it eligible
// for resend on the next check.
func (g *gapList) resetFrontTimer() {
	if len(g.items) > 0 {
		g.items[0].lastSent = time.Time{}
	}
}

// clear empties the gap list (used on TerminateSession).
func (g *gapList) clear() {
	g.items = nil
}
