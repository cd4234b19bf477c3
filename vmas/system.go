// Package vmas is the address-space/region layer plus the page-fault
// handler and heap-break syscall that sit on top of it. Regions are kept
// as an ordered singly-linked list per address space; translation goes
// through the global hpt.Table rather than a per-process page table, and
// address-space identity is an opaque monotonic handle rather than a
// pointer value, so a descriptor can move without invalidating the
// mappings that name it.
package vmas

import (
	"sync"
	"sync/atomic"

	"teachos/defs"
	"teachos/hpt"
	"teachos/mem"
	"teachos/tlb"
)

/// System owns the machine-wide VM state: the frame table, the global HPT
/// and the TLB shim. All of it lives behind this one value rather than
/// package-level globals.
type System struct {
	Frames *mem.FrameTable
	HPT    *hpt.Table
	TLB    *tlb.TLB
	steal  *mem.StealMem

	// cowMu serializes COW frame surgery (refcount inspection, copy,
	// retarget) the way interrupts-off does on the real single-CPU machine:
	// two twins faulting on the same shared frame must not both copy it.
	cowMu sync.Mutex

	nextID atomic.Uint64
}

/// NewSystem builds a System sized for ramSize bytes of physical memory,
/// with firstFree bytes already consumed by the bootstrap allocator,
/// matching frametable_init's contract: hpt_size = 2 *
/// n_pages.
func NewSystem(ramSize, firstFree int) *System {
	ft := &mem.FrameTable{}
	ft.FrametableInit(ramSize, firstFree)
	nPages := ft.NPages()
	s := &System{
		Frames: ft,
		HPT:    hpt.New(2 * nPages),
		TLB:    tlb.New(),
	}
	return s
}

/// NewBootSystem additionally hands back a bootstrap allocator for use
/// before FrametableInit has run, mirroring the two-phase boot sequence:
/// ram_stealmem serves kernel allocations until the frame table exists,
/// then Bootstrap completes the handoff.
func NewBootSystem(stealPages int) (*System, *mem.StealMem) {
	sm := mem.NewStealMem(stealPages)
	return &System{Frames: &mem.FrameTable{}, steal: sm}, sm
}

/// Bootstrap finishes a NewBootSystem boot once ram_getsize and
/// ram_getfirstfree are stable: it runs FrametableInit over the surviving
/// RAM and brings up the HPT and TLB. Allocations stop falling through to
/// the bootstrap allocator from this point on.
func (s *System) Bootstrap(ramSize, firstFree int) {
	s.Frames.FrametableInit(ramSize, firstFree)
	s.HPT = hpt.New(2 * s.Frames.NPages())
	s.TLB = tlb.New()
}

func (s *System) allocFrame() (*mem.Page_t, mem.PPN, bool) {
	return s.Frames.AllocKpages(s.steal, 1)
}

/// AddrSpace is a process's address space: an ordered region list plus the
/// stable identity used as the HPT's owner key.
type AddrSpace struct {
	sys *System
	id  defs.AsID

	mu      sync.Mutex
	regions *Region
	stats   FaultStats
}

/// ID returns the address space's stable identity (its HPT owner key).
func (as *AddrSpace) ID() defs.AsID { return as.id }

/// Stats returns a snapshot of the address space's page-fault counters.
func (as *AddrSpace) Stats() FaultStats {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.stats
}

/// FaultStats are the per-address-space page-fault counters kept for
/// debugging; surfaced through cmd/vmstat.
type FaultStats struct {
	Fresh    uint64 // first fault installing a new mapping
	COW      uint64 // copy-on-write faults
	Readonly uint64 // READONLY faults rejected by region permissions
	StaleTLB uint64 // stale non-dirty TLB entries re-dirtied without a copy
}

/// Create returns a new, empty address space.
func (s *System) Create() *AddrSpace {
	id := defs.AsID(s.nextID.Add(1))
	return &AddrSpace{sys: s, id: id}
}
