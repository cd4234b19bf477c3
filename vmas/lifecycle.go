package vmas

// Copy implements fork semantics: clone old's region list
// (each Region struct is deep-copied; the list itself is never shared
// between address spaces), install COW twins for every HPT entry old owns,
// then flush the TLB so the child's first fault sees the now-read-only
// mapping rather than a stale writable one.
func (s *System) Copy(old *AddrSpace) *AddrSpace {
	old.mu.Lock()
	var cloneHead, cloneTail *Region
	for r := old.regions; r != nil; r = r.next {
		clone := &Region{
			Start:    r.Start,
			Size:     r.Size,
			CurPerms: r.CurPerms,
			OldPerms: r.OldPerms,
			IsStack:  r.IsStack,
			IsHeap:   r.IsHeap,
		}
		if cloneHead == nil {
			cloneHead = clone
			cloneTail = clone
		} else {
			cloneTail.next = clone
			cloneTail = clone
		}
	}
	oldID := old.id
	old.mu.Unlock()

	newAs := s.Create()
	newAs.regions = cloneHead

	s.HPT.Duplicate(s.Frames, newAs.id, oldID)
	s.TLB.Flush()
	return newAs
}

/// Destroy purges every HPT entry owned by as (freeing their frames) and
/// clears its region list.
func (s *System) Destroy(as *AddrSpace) {
	s.HPT.Purge(s.Frames, as.id)
	as.mu.Lock()
	as.regions = nil
	as.mu.Unlock()
}
