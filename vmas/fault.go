package vmas

import (
	"teachos/defs"
	"teachos/hpt"
	"teachos/mem"
	"teachos/tlb"
)

// VMFault resolves a page fault, cooperating with the TLB and HPT, per
// faulttype is READ/WRITE/READONLY; faultaddress is the
// address that trapped. A non-zero return is fatal to the faulting user
// instruction; the caller never retries internally.
func (s *System) VMFault(as *AddrSpace, faulttype defs.FaultType, faultaddr uintptr) defs.Err_t {
	if as == nil || s.HPT == nil {
		return defs.EFAULT
	}

	// Step 2: validate region.
	rtype := as.RegionType(faultaddr)
	if rtype == defs.SegUnused {
		return defs.EFAULT
	}
	perms, ok := as.RegionPerms(faultaddr)
	if !ok {
		return defs.EFAULT
	}

	switch faulttype {
	case defs.FaultRead, defs.FaultWrite:
		// A write is rejected against current region permissions before
		// anything else, so a region whose permissions were reduced after a
		// page was first mapped (prepare_load -> complete_load) is enforced
		// on the very next fault rather than trusting a stale cached entry.
		if faulttype == defs.FaultWrite && perms&defs.PERM_W == 0 {
			return defs.EFAULT
		}
		pe, created, allocated := s.HPT.LookupOrCreate(as.id, faultaddr, perms, s.allocFramePPN)
		if !allocated {
			return defs.ENOMEM
		}
		if created {
			as.mu.Lock()
			as.stats.Fresh++
			as.mu.Unlock()
		} else if perms&defs.PERM_W == 0 && pe.Writable() {
			// The region's permissions were reduced since this entry was
			// installed; reconcile so neither this TLB fill nor a future
			// READONLY fault trusts the stale writable bit.
			pe.SetWritable(false)
		}
		return s.fillTLB(as, faultaddr, pe)

	case defs.FaultReadOnly:
		pe := s.HPT.Lookup(as.id, faultaddr)
		if pe == nil {
			panic("vmas: READONLY fault with no HPT entry")
		}
		if perms&defs.PERM_W == 0 {
			as.mu.Lock()
			as.stats.Readonly++
			as.mu.Unlock()
			return defs.EFAULT
		}
		if pe.Writable() {
			// stale non-dirty TLB entry: fast path, no copy needed.
			s.TLB.Replace(as.id, faultaddr, tlb.MkEntryLo(uint32(pe.PPN()), true))
			as.mu.Lock()
			as.stats.StaleTLB++
			as.mu.Unlock()
			return 0
		}
		s.cowMu.Lock()
		if err := s.resolveCOW(pe); err != 0 {
			s.cowMu.Unlock()
			return err
		}
		pe.SetWritable(true)
		s.cowMu.Unlock()
		s.TLB.Flush()
		as.mu.Lock()
		as.stats.COW++
		as.mu.Unlock()
		return s.fillTLB(as, faultaddr, pe)

	default:
		return defs.EINVAL
	}
}

// resolveCOW implements the refcount branch of the READONLY/COW
// case: a frame shared by more than one mapping gets a private copy; a
// frame already unshared (the twin already copied) just gets remarked
// writable by the caller. Caller holds s.cowMu.
func (s *System) resolveCOW(pe *hpt.Entry) defs.Err_t {
	if s.Frames.Refcount(pe.PPN()) == 1 {
		return 0
	}
	newPg, newPPN, ok := s.allocFrame()
	if !ok {
		return defs.ENOMEM
	}
	old := s.Frames.Bytes(pe.PPN())
	*newPg = *old
	s.Frames.FreeKpages(pe.PPN())
	pe.SetPPN(newPPN)
	return 0
}

// allocFramePPN is the hpt.LookupOrCreate callback: it allocates a fresh,
// zero-filled frame and hands back just its PPN, since the HPT owns the
// entry and the frame table owns the bytes.
func (s *System) allocFramePPN() (mem.PPN, bool) {
	_, ppn, ok := s.allocFrame()
	return ppn, ok
}

func (s *System) fillTLB(as *AddrSpace, faultaddr uintptr, pe *hpt.Entry) defs.Err_t {
	lo := tlb.MkEntryLo(uint32(pe.PPN()), pe.Writable())
	s.TLB.Insert(as.id, faultaddr, lo)
	return 0
}
