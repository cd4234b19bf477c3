package vmas

import "teachos/defs"

// Sbrk implements the sbrk-style heap-break operation. It
// returns the previous break address on success and a negative Err_t
// (EINVAL/ENOMEM) on failure; amount is rounded up to a page multiple when
// non-zero (amount==0 is the idempotent "query the break" call).
func (as *AddrSpace) Sbrk(amount int) (uintptr, defs.Err_t) {
	as.mu.Lock()
	defer as.mu.Unlock()

	if amount != 0 {
		if amount > 0 {
			amount = int(defs.PageRoundup(uintptr(amount)))
		} else {
			amount = -int(defs.PageRoundup(uintptr(-amount)))
		}
	}

	heap := as.heapRegion()
	if heap == nil {
		if amount < 0 {
			return 0, defs.EINVAL
		}
		heapBase := as.lastNonStackEnd()
		// the new top end must land in unused space: a break that reaches
		// the stack's downward span, or kernel addresses, is a collision.
		if rt := as.regionTypeLocked(heapBase + uintptr(amount)); rt != defs.SegUnused {
			return 0, defs.ENOMEM
		}
		reg := &Region{
			Start:    heapBase,
			Size:     uintptr(amount),
			CurPerms: defs.PERM_R | defs.PERM_W,
			IsHeap:   true,
		}
		as.regions = insertSorted(as.regions, reg)
		return heapBase, 0
	}

	oldBreak := heap.Start + heap.Size
	newEnd := int(heap.Start) + int(heap.Size) + amount

	if amount > 0 {
		if rt := as.regionTypeLocked(uintptr(newEnd)); rt != defs.SegUnused {
			return 0, defs.ENOMEM
		}
	}
	if amount < 0 && uintptr(newEnd) < heap.Start {
		return 0, defs.EINVAL
	}

	heap.Size = uintptr(int(heap.Size) + amount)
	return oldBreak, 0
}
