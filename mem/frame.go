// Package mem owns every physical frame on the machine after bootstrap: a
// ref-counted free-list allocator plus the kernel direct map that turns a
// physical frame into a byte slice the rest of the kernel can read and
// write.
package mem

import (
	"fmt"
	"sync"

	"teachos/defs"
)

/// INVALID is the free-list sentinel: "no next frame" / "allocation failed".
const INVALID uint32 = ^uint32(0)

/// Page_t is a single zero-initializable physical page, addressed as bytes.
type Page_t [defs.PGSIZE]byte

/// frameent_t is one frame table entry, indexed by physical page number
/// (PPN). refcount==0 is exactly the free-list membership condition.
type frameent_t struct {
	refcount int32
	used     bool
	nextFree uint32
	pinned   bool
}

/// FrameTable owns every physical frame. Bootstrap allocation (before
/// FrametableInit runs) goes through StealMem instead.
type FrameTable struct {
	mu           sync.Mutex // the single stealmem_lock spinlock; a leaf lock
	frames       []frameent_t
	pages        []Page_t
	curFree      uint32
	nPages       uint32
	firstFreePgn uint32

	inited bool
}

/// StealMem is the bootstrap allocator: before FrametableInit runs, kernel
/// code that needs memory is handed pages directly out of the region the
/// boot loader reserved. It is a degenerate bump allocator with no lock of
/// its own: every path to it runs inside AllocKpages, under the one
/// steal-mem lock the frame table itself uses, so the boot-handoff decision
/// and the allocation are a single critical section.
type StealMem struct {
	backing []Page_t
	next    int
}

/// NewStealMem creates a bootstrap allocator over n pages of backing
/// storage. In a real kernel this memory is whatever the bootloader found;
/// here it is ordinary Go memory standing in for it.
func NewStealMem(n int) *StealMem {
	return &StealMem{backing: make([]Page_t, n)}
}

// alloc hands out the next untouched page, or nil if exhausted. Callers
// hold the frame-table lock.
func (s *StealMem) alloc() *Page_t {
	if s.next >= len(s.backing) {
		return nil
	}
	pg := &s.backing[s.next]
	s.next++
	return pg
}

/// FrametableInit computes n_pages = ramSize/PAGE_SIZE, sizes the frame
/// table and backing page storage, pins frames below firstFree, and threads
/// the remainder onto the free list in ascending PPN order. It must be
/// called exactly once.
func (ft *FrameTable) FrametableInit(ramSize, firstFree int) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if ft.inited {
		panic("frametable_init called twice")
	}
	nPages := uint32(ramSize / defs.PGSIZE)
	ft.nPages = nPages
	ft.frames = make([]frameent_t, nPages)
	ft.pages = make([]Page_t, nPages)
	ft.firstFreePgn = uint32(firstFree / defs.PGSIZE)

	for i := uint32(0); i < ft.firstFreePgn; i++ {
		ft.frames[i] = frameent_t{refcount: 1, used: true, nextFree: INVALID, pinned: true}
	}

	ft.curFree = INVALID
	// thread the free list in ascending PPN order: walk backwards so that
	// prepending each index leaves cur_free pointing at firstFreePgn first.
	for i := nPages; i > ft.firstFreePgn; i-- {
		ppn := i - 1
		ft.frames[ppn] = frameent_t{refcount: 0, used: false, nextFree: ft.curFree}
		ft.curFree = ppn
	}
	ft.inited = true
	fmt.Printf("frametable: %d pages (%d pinned), hpt target 2x\n", nPages, ft.firstFreePgn)
}

/// Ready reports whether FrametableInit has run and allocations have
/// stopped falling through to the bootstrap allocator.
func (ft *FrameTable) Ready() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.inited
}

// ppnToFrame returns the direct-mapped page for ppn. Ft.mu need not be held;
// the slice header itself never changes after FrametableInit.
func (ft *FrameTable) ppnToFrame(ppn uint32) *Page_t {
	return &ft.pages[ppn]
}

// PPN identifies a frame-table slot. Allocation returns "a
// virtual address in the kernel direct-mapped segment"; in this port that
// direct map is simply the *Page_t this process already addresses, so
// AllocKpages returns the pointer and the PPN (the frame table's handle)
// together instead of requiring a separate translation step.
type PPN uint32

/// AllocKpages allocates a single kernel page; n>1 is refused, since
/// nothing in the kernel needs contiguous multi-page memory once the frame
/// table is up. Returns ok=false on exhaustion.
func (ft *FrameTable) AllocKpages(sm *StealMem, n int) (*Page_t, PPN, bool) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if !ft.inited {
		if sm == nil {
			return nil, 0, false
		}
		pg := sm.alloc()
		if pg == nil {
			return nil, 0, false
		}
		return pg, 0, true
	}
	if n != 1 {
		return nil, 0, false
	}
	if ft.curFree == INVALID {
		return nil, 0, false
	}
	ppn := ft.curFree
	fe := &ft.frames[ppn]
	ft.curFree = fe.nextFree
	fe.refcount = 1
	fe.used = true
	fe.nextFree = INVALID
	pg := ft.ppnToFrame(ppn)
	*pg = Page_t{} // every frame a caller can observe is zero until written
	return pg, PPN(ppn), true
}

/// FreeKpages releases a reference to ppn. refcount==1 returns the frame to
/// the free list; refcount>1 only decrements (the frame is COW-shared, see
/// hpt.Duplicate); refcount==0 is a programming-contract violation.
func (ft *FrameTable) FreeKpages(ppn PPN) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	fe := &ft.frames[uint32(ppn)]
	switch {
	case fe.refcount == 0:
		panic("mem: free of frame with refcount 0")
	case fe.refcount == 1:
		fe.refcount = 0
		fe.used = false
		fe.nextFree = ft.curFree
		ft.curFree = uint32(ppn)
	default:
		fe.refcount--
	}
}

/// Refup increments a frame's reference count; used by hpt.Duplicate when
/// installing a COW twin.
func (ft *FrameTable) Refup(ppn PPN) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	fe := &ft.frames[uint32(ppn)]
	if fe.refcount == 0 {
		panic("mem: refup of free frame")
	}
	fe.refcount++
}

/// Refcount reports a frame's current reference count.
func (ft *FrameTable) Refcount(ppn PPN) int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return int(ft.frames[uint32(ppn)].refcount)
}

/// Bytes returns the frame's backing storage for reading/writing/copying.
func (ft *FrameTable) Bytes(ppn PPN) *Page_t {
	return ft.ppnToFrame(uint32(ppn))
}

/// NPages reports the number of physical pages the table was sized for.
func (ft *FrameTable) NPages() int {
	return int(ft.nPages)
}

/// Stats reports free/used/pinned counts for accounting checks and
/// for cmd/vmstat's snapshot output.
type Stats struct {
	NPages int
	Free   int
	Used   int
	Pinned int
}

/// Stats walks the frame table and reports aggregate counts. Intended for
/// diagnostics and tests, not the hot path: it takes the table lock.
func (ft *FrameTable) Stats() Stats {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	var s Stats
	s.NPages = int(ft.nPages)
	for i := range ft.frames {
		fe := &ft.frames[i]
		switch {
		case fe.pinned:
			s.Pinned++
		case fe.refcount == 0:
			s.Free++
		default:
			s.Used++
		}
	}
	return s
}

/// Snapshot is the coremap-statistics entry point cmd/vmstat and Profile
/// take, kept distinct from Stats so the accounting tests can name the
/// thing they check independently of the diagnostic output path.
func (ft *FrameTable) Snapshot() Stats {
	return ft.Stats()
}
