// Package hpt implements the hashed inverted page table: a single global
// table keyed on (address-space identity, virtual page number), sized
// proportional to physical frames rather than virtual address space, with
// separate chaining for collisions. Chaining keeps the bulk purge and
// duplicate walks that exit and fork need simple, and avoids the tombstone
// bookkeeping open addressing would force on them.
package hpt

import (
	"sync"

	"teachos/defs"
	"teachos/mem"
)

/// Entry is one HPT entry: the (proc, vpn, ppn, flags) tuple plus the
/// chain link. Individually heap-allocated.
type Entry struct {
	proc  defs.AsID
	vpn   uintptr
	ppn   mem.PPN
	flags uint8
	next  *Entry
}

/// PPN returns the frame backing this mapping.
func (e *Entry) PPN() mem.PPN { return e.ppn }

/// Flags returns the entry's permission/state byte.
func (e *Entry) Flags() uint8 { return e.flags }

/// Writable reports whether the mapping currently permits writes.
func (e *Entry) Writable() bool { return e.flags&defs.HPTE_PERM_W != 0 }

/// SetWritable flips the writable bit, used by the fast-path stale-TLB
/// re-dirty and by COW unsharing.
func (e *Entry) SetWritable(w bool) {
	if w {
		e.flags |= defs.HPTE_PERM_W
	} else {
		e.flags &^= defs.HPTE_PERM_W
	}
}

/// SetPPN retargets the mapping to a different frame (COW copy-on-write
/// unsharing).
func (e *Entry) SetPPN(ppn mem.PPN) { e.ppn = ppn }

type bucket struct {
	mu    sync.Mutex // stands in for "interrupts disabled" around this chain
	first *Entry
}

/// Table is the global HPT, sized 2x physical frames at construction to
/// target a load factor <= 0.5.
type Table struct {
	buckets []bucket
	size    uint32
}

/// New constructs a table with hptSize buckets. Callers compute hptSize as
/// 2*n_pages, matching frametable_init.
func New(hptSize int) *Table {
	t := &Table{buckets: make([]bucket, hptSize), size: uint32(hptSize)}
	return t
}

func (t *Table) index(as defs.AsID, vpn uintptr) uint32 {
	h := uint64(as) ^ uint64(vpn)
	return uint32(h % uint64(t.size))
}

/// Lookup walks the bucket chain for (as, vaddr) and returns the unique
/// matching entry, or nil.
func (t *Table) Lookup(as defs.AsID, vaddr uintptr) *Entry {
	vpn := defs.VPN(vaddr)
	b := &t.buckets[t.index(as, vpn)]
	b.mu.Lock()
	defer b.mu.Unlock()
	for e := b.first; e != nil; e = e.next {
		if e.proc == as && e.vpn == vpn {
			return e
		}
	}
	return nil
}

/// Insert allocates a new entry for (as, vaddr) backed by ppn with the
/// given permission flags, appends it to the tail of its bucket chain
/// (preserving insertion order), and returns it.
func (t *Table) Insert(as defs.AsID, vaddr uintptr, ppn mem.PPN, perms uint8) *Entry {
	vpn := defs.VPN(vaddr)
	e := &Entry{proc: as, vpn: vpn, ppn: ppn, flags: defs.HPTE_PRESENT | defs.PermToHPTE(perms)}
	b := &t.buckets[t.index(as, vpn)]
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.first == nil {
		b.first = e
		return e
	}
	tail := b.first
	for tail.next != nil {
		tail = tail.next
	}
	tail.next = e
	return e
}

/// LookupOrCreate performs the lookup-then-conditionally-insert that
/// a fault handler needs to happen as one atomic unit: if an
/// entry for (as, vaddr) already exists it is returned unchanged with
/// created=false; otherwise alloc is called to obtain a frame and a fresh
/// entry is appended, all while the bucket lock is held, so two faulting
/// threads racing on the same uninstalled page can never both insert.
func (t *Table) LookupOrCreate(as defs.AsID, vaddr uintptr, perms uint8, alloc func() (mem.PPN, bool)) (e *Entry, created bool, ok bool) {
	vpn := defs.VPN(vaddr)
	b := &t.buckets[t.index(as, vpn)]
	b.mu.Lock()
	defer b.mu.Unlock()
	for cur := b.first; cur != nil; cur = cur.next {
		if cur.proc == as && cur.vpn == vpn {
			return cur, false, true
		}
	}
	ppn, allocated := alloc()
	if !allocated {
		return nil, false, false
	}
	ne := &Entry{proc: as, vpn: vpn, ppn: ppn, flags: defs.HPTE_PRESENT | defs.PermToHPTE(perms)}
	if b.first == nil {
		b.first = ne
	} else {
		tail := b.first
		for tail.next != nil {
			tail = tail.next
		}
		tail.next = ne
	}
	return ne, true, true
}

/// Purge unlinks and frees every entry owned by as across every bucket,
/// releasing each one's frame via ft.FreeKpages. Used by address-space
/// destroy (fork-child exit, process exit).
func (t *Table) Purge(ft *mem.FrameTable, as defs.AsID) {
	for i := range t.buckets {
		b := &t.buckets[i]
		b.mu.Lock()
		var kept *Entry
		var keptTail *Entry
		for e := b.first; e != nil; {
			next := e.next
			if e.proc == as {
				ft.FreeKpages(e.ppn)
			} else {
				e.next = nil
				if kept == nil {
					kept = e
					keptTail = e
				} else {
					keptTail.next = e
					keptTail = e
				}
			}
			e = next
		}
		b.first = kept
		b.mu.Unlock()
	}
}

/// Duplicate installs a COW twin, owned by newAs, for every entry owned by
/// oldAs: same frame, write bit cleared on both the original and the twin,
/// frame refcount incremented. This is the sole COW install point; the
/// caller (vmas.Copy) is responsible for flushing the TLB
/// afterward.
func (t *Table) Duplicate(ft *mem.FrameTable, newAs, oldAs defs.AsID) {
	// A twin hashes on newAs, so it usually belongs in a different bucket
	// from its original; twins are collected during the walk and appended
	// to their own buckets afterwards, one bucket lock at a time.
	var twins []*Entry
	for i := range t.buckets {
		b := &t.buckets[i]
		b.mu.Lock()
		var olds []*Entry
		for e := b.first; e != nil; e = e.next {
			if e.proc == oldAs {
				olds = append(olds, e)
			}
		}
		for _, old := range olds {
			old.SetWritable(false)
			twin := &Entry{proc: newAs, vpn: old.vpn, ppn: old.ppn, flags: old.flags}
			twin.SetWritable(false)
			ft.Refup(old.ppn)
			twins = append(twins, twin)
		}
		b.mu.Unlock()
	}
	for _, twin := range twins {
		b := &t.buckets[t.index(newAs, twin.vpn)]
		b.mu.Lock()
		if b.first == nil {
			b.first = twin
		} else {
			tail := b.first
			for tail.next != nil {
				tail = tail.next
			}
			tail.next = twin
		}
		b.mu.Unlock()
	}
}

/// Size returns the number of live entries, for tests and cmd/vmstat.
func (t *Table) Size() int {
	n := 0
	for i := range t.buckets {
		b := &t.buckets[i]
		b.mu.Lock()
		for e := b.first; e != nil; e = e.next {
			n++
		}
		b.mu.Unlock()
	}
	return n
}

/// CountFor returns the number of live entries owned by as, used by
/// purge/duplicate accounting checks.
func (t *Table) CountFor(as defs.AsID) int {
	n := 0
	for i := range t.buckets {
		b := &t.buckets[i]
		b.mu.Lock()
		for e := b.first; e != nil; e = e.next {
			if e.proc == as {
				n++
			}
		}
		b.mu.Unlock()
	}
	return n
}
