// Package tlb is a thin software model of the hardware TLB: 64 fixed
// slots, a random-slot install, an indexed probe, and a full flush, all
// performed with interrupts conceptually disabled for the duration
// (modeled here with a mutex standing in for IPL-raising).
package tlb

import (
	"math/rand"
	"sync"

	"teachos/defs"
)

/// NSLOTS is the number of hardware TLB entries.
const NSLOTS = 64

/// EntryLo carries the PPN in place plus VALID/DIRTY bits, mirroring the
/// MIPS-style entrylo word. "Dirty" here means
/// writable, not "has been written".
type EntryLo uint32

const (
	ENTRY_VALID EntryLo = 1 << 0
	ENTRY_DIRTY EntryLo = 1 << 1 // writable
)

/// MkEntryLo packs a PPN and flags into an EntryLo word.
func MkEntryLo(ppn uint32, writable bool) EntryLo {
	e := EntryLo(ppn<<2) | ENTRY_VALID
	if writable {
		e |= ENTRY_DIRTY
	}
	return e
}

type slot struct {
	valid bool
	vpn   uintptr
	lo    EntryLo
	asid  defs.AsID
}

/// TLB is the process-wide hardware TLB shim. Shared across every address
/// space (no per-ASID tagging in hardware), so
/// context switches require a full flush.
type TLB struct {
	mu    sync.Mutex
	slots [NSLOTS]slot
	rng   *rand.Rand
}

/// New constructs an empty, all-invalid TLB.
func New() *TLB {
	return &TLB{rng: rand.New(rand.NewSource(1))}
}

func maskVPN(vaddr uintptr) uintptr {
	return defs.PageRounddown(vaddr)
}

/// Insert writes (vaddr, entrylo) into a hardware-chosen slot, masking
/// vaddr to its containing page first. Interrupts are disabled for the
/// duration (here: the TLB's own mutex).
func (t *TLB) Insert(asid defs.AsID, vaddr uintptr, lo EntryLo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.rng.Intn(NSLOTS)
	t.slots[i] = slot{valid: true, vpn: maskVPN(vaddr), lo: lo, asid: asid}
}

/// Probe returns the index of the slot holding (asid, vaddr)'s page, or -1
/// if absent.
func (t *TLB) Probe(asid defs.AsID, vaddr uintptr) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.probeLocked(asid, vaddr)
}

func (t *TLB) probeLocked(asid defs.AsID, vaddr uintptr) int {
	vpn := maskVPN(vaddr)
	for i := range t.slots {
		if t.slots[i].valid && t.slots[i].asid == asid && t.slots[i].vpn == vpn {
			return i
		}
	}
	return -1
}

/// Lookup returns the installed EntryLo for (asid, vaddr), if present.
func (t *TLB) Lookup(asid defs.AsID, vaddr uintptr) (EntryLo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.probeLocked(asid, vaddr)
	if i < 0 {
		return 0, false
	}
	return t.slots[i].lo, true
}

/// Replace overwrites the slot already holding (asid, vaddr) with lo. The
/// caller is contractually required to have an existing entry there (this
/// is the "stale non-dirty TLB entry" fast path); violating
/// that contract is a programming error.
func (t *TLB) Replace(asid defs.AsID, vaddr uintptr, lo EntryLo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.probeLocked(asid, vaddr)
	if i < 0 {
		panic("tlb: replace of absent entry")
	}
	t.slots[i].lo = lo
}

/// Flush writes an always-invalid pair into every slot.
func (t *TLB) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		t.slots[i] = slot{}
	}
}

/// FlushAsid invalidates only the entries belonging to asid. Not part of
/// the hardware contract (a software-refilled TLB with no ASID tagging
/// cannot do this cheaply) but useful for tests that want to assert
/// per-process isolation without a full flush.
func (t *TLB) FlushAsid(asid defs.AsID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if t.slots[i].asid == asid {
			t.slots[i] = slot{}
		}
	}
}

/// Shootdown is the SMP TLB-invalidation entry point. This kernel is
/// single-processor only; any attempt to reach it is a
/// programming error.
func Shootdown() {
	panic("tlb: shootdown requires SMP, which this kernel does not support")
}
