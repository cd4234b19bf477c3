package vmas

import "teachos/defs"

/// Region is one segment descriptor, kept as a singly-linked list node in
/// its address space's list, sorted by Start ascending.
type Region struct {
	Start    uintptr
	Size     uintptr
	CurPerms uint8
	OldPerms uint8
	IsStack  bool
	IsHeap   bool
	next     *Region
}

// end returns the region's exclusive upper bound for non-stack regions.
func (r *Region) end() uintptr { return r.Start + r.Size }

// containsDownward reports whether addr lies in [Start-Size, Start), the
// downward span a stack region occupies.
func (r *Region) containsDownward(addr uintptr) bool {
	return addr < r.Start && addr >= r.Start-r.Size
}

func (r *Region) contains(addr uintptr) bool {
	if r.IsStack {
		return r.containsDownward(addr)
	}
	return addr >= r.Start && addr < r.end()
}

// insertSorted splices r into the list headed by head, keeping Start
// ascending order, and returns the new head.
func insertSorted(head, r *Region) *Region {
	if head == nil || r.Start < head.Start {
		r.next = head
		return r
	}
	cur := head
	for cur.next != nil && cur.next.Start < r.Start {
		cur = cur.next
	}
	r.next = cur.next
	cur.next = r
	return head
}

/// DefineRegion page-aligns base and length (base rounds down, length
/// rounds up so the aligned region still covers the request) and inserts a
/// new region with the given permissions at the position that keeps the
/// list sorted by Start. Permissions are packed R<<2|W<<1|X.
func (as *AddrSpace) DefineRegion(vaddr uintptr, size uintptr, r, w, x bool) defs.Err_t {
	as.mu.Lock()
	defer as.mu.Unlock()

	start := defs.PageRounddown(vaddr)
	pageEnd := defs.PageRoundup(vaddr + size)
	length := pageEnd - start
	if length == 0 {
		return defs.EINVAL
	}

	perms := packPerms(r, w, x)
	reg := &Region{Start: start, Size: length, CurPerms: perms}
	as.regions = insertSorted(as.regions, reg)
	return 0
}

func packPerms(r, w, x bool) uint8 {
	var p uint8
	if r {
		p |= defs.PERM_R
	}
	if w {
		p |= defs.PERM_W
	}
	if x {
		p |= defs.PERM_X
	}
	return p
}

/// DefineStack appends the fixed-size stack region at the top of user
/// virtual memory (growing downward) and returns the
/// initial user stack pointer.
func (as *AddrSpace) DefineStack() (stackptr uintptr, err defs.Err_t) {
	as.mu.Lock()
	defer as.mu.Unlock()

	for r := as.regions; r != nil; r = r.next {
		if r.IsStack {
			return 0, defs.EINVAL
		}
	}

	size := uintptr(defs.USERSTACK_PAGES * defs.PGSIZE)
	reg := &Region{
		Start:    defs.USERSTACK,
		Size:     size,
		CurPerms: defs.PERM_R | defs.PERM_W,
		IsStack:  true,
	}
	as.regions = insertSorted(as.regions, reg)
	return defs.USERSTACK, 0
}

// lookup returns the region containing addr, or nil. Caller must hold
// as.mu.
func (as *AddrSpace) lookup(addr uintptr) *Region {
	for r := as.regions; r != nil; r = r.next {
		if r.contains(addr) {
			return r
		}
	}
	return nil
}

// nonStackIndex returns the 1-based position of r among non-stack regions
// in Start order, matching region_type's "1-based index of the containing
// non-stack region".
func (as *AddrSpace) nonStackIndex(r *Region) int {
	idx := 0
	for cur := as.regions; cur != nil; cur = cur.next {
		if cur.IsStack {
			continue
		}
		idx++
		if cur == r {
			return idx
		}
	}
	return 0
}

/// RegionType returns SEG_KERNEL if addr lies at or above the top of user
/// virtual memory, SEG_STACK if it lies in the stack's downward span, else
/// the 1-based index of the containing non-stack region, else SEG_UNUSED.
func (as *AddrSpace) RegionType(addr uintptr) defs.RegionType {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.regionTypeLocked(addr)
}

// regionTypeLocked is RegionType without re-acquiring as.mu, for use from
// Sbrk which already holds it.
func (as *AddrSpace) regionTypeLocked(addr uintptr) defs.RegionType {
	if addr >= defs.USERSTACK {
		return defs.SegKernel
	}
	r := as.lookup(addr)
	if r == nil {
		return defs.SegUnused
	}
	if r.IsStack {
		return defs.SegStack
	}
	return defs.RegionType(as.nonStackIndex(r))
}

/// RegionPerms returns the containing region's current permissions, or -1
/// (modeled as ok=false) if addr lies in no region.
func (as *AddrSpace) RegionPerms(addr uintptr) (uint8, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	r := as.lookup(addr)
	if r == nil {
		return 0, false
	}
	return r.CurPerms, true
}

// lastNonStackEnd returns the page-aligned end of the last non-stack
// region, or 0 if none exist. Caller holds as.mu.
func (as *AddrSpace) lastNonStackEnd() uintptr {
	var end uintptr
	for r := as.regions; r != nil; r = r.next {
		if r.IsStack {
			continue
		}
		if e := r.end(); e > end {
			end = e
		}
	}
	return end
}

// heapRegion returns the address space's heap region, or nil. Caller holds
// as.mu.
func (as *AddrSpace) heapRegion() *Region {
	for r := as.regions; r != nil; r = r.next {
		if r.IsHeap {
			return r
		}
	}
	return nil
}

/// PrepareLoad temporarily elevates every region's permissions to RWX,
/// saving the prior set, so the ELF loader can write into pages that will
/// ultimately be read-only text. Flushes the TLB before returning, per
/// the ordering guarantee that define/prepare/complete must be
/// followed by a flush before the next fault).
func (as *AddrSpace) PrepareLoad() {
	as.mu.Lock()
	for r := as.regions; r != nil; r = r.next {
		r.OldPerms = r.CurPerms
		r.CurPerms = defs.PERM_RWX
	}
	as.mu.Unlock()
	as.sys.TLB.Flush()
}

/// CompleteLoad restores permissions saved by PrepareLoad and flushes the
/// TLB so any stale writable entries are evicted.
func (as *AddrSpace) CompleteLoad() {
	as.mu.Lock()
	for r := as.regions; r != nil; r = r.next {
		r.CurPerms = r.OldPerms
	}
	as.mu.Unlock()
	as.sys.TLB.Flush()
}

/// Activate and Deactivate flush the TLB on every context switch: with no
/// per-ASID tagging, that is the only way to avoid leaking mappings across
/// address spaces. Both tolerate a nil as, matching as_activate's guard for
/// a kernel thread with no address space yet (early boot, before the first
/// process is created).
func (as *AddrSpace) Activate() {
	if as == nil {
		return
	}
	as.sys.TLB.Flush()
}

/// Deactivate flushes the TLB when switching away from as.
func (as *AddrSpace) Deactivate() {
	if as == nil {
		return
	}
	as.sys.TLB.Flush()
}
