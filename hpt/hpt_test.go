package hpt

import (
	"testing"

	"teachos/defs"
	"teachos/mem"
)

func freshFT(t *testing.T) *mem.FrameTable {
	t.Helper()
	ft := &mem.FrameTable{}
	ft.FrametableInit(64*defs.PGSIZE, 4*defs.PGSIZE)
	return ft
}

func TestInsertLookup(t *testing.T) {
	ft := freshFT(t)
	_, ppn, _ := ft.AllocKpages(nil, 1)
	tbl := New(128)
	e := tbl.Insert(1, 0x400010, ppn, defs.PERM_R|defs.PERM_W)
	got := tbl.Lookup(1, 0x400abc)
	if got != e {
		t.Fatal("expected lookup to find the inserted entry by page, not exact address")
	}
	if !got.Writable() {
		t.Fatal("expected writable flag to be set")
	}
}

func TestLookupMissAndAsidIsolation(t *testing.T) {
	ft := freshFT(t)
	_, ppn, _ := ft.AllocKpages(nil, 1)
	tbl := New(128)
	tbl.Insert(1, 0x400000, ppn, defs.PERM_R)
	if tbl.Lookup(2, 0x400000) != nil {
		t.Fatal("expected a different address space to not see the mapping")
	}
	if tbl.Lookup(1, 0x500000) != nil {
		t.Fatal("expected a different page to miss")
	}
}

// Purge frees every as-owned frame and their refcounts drop to 0.
func TestPurgeFreesFrames(t *testing.T) {
	ft := freshFT(t)
	_, ppn1, _ := ft.AllocKpages(nil, 1)
	_, ppn2, _ := ft.AllocKpages(nil, 1)
	tbl := New(128)
	tbl.Insert(1, 0x400000, ppn1, defs.PERM_R|defs.PERM_W)
	tbl.Insert(1, 0x401000, ppn2, defs.PERM_R|defs.PERM_W)
	_, otherPPN, _ := ft.AllocKpages(nil, 1)
	tbl.Insert(2, 0x400000, otherPPN, defs.PERM_R)

	tbl.Purge(ft, 1)

	if tbl.CountFor(1) != 0 {
		t.Fatal("expected no entries left for purged address space")
	}
	if tbl.CountFor(2) != 1 {
		t.Fatal("expected other address space's entries to survive purge")
	}
	if ft.Refcount(ppn1) != 0 || ft.Refcount(ppn2) != 0 {
		t.Fatal("expected purge to free the owning frames")
	}
	if ft.Refcount(otherPPN) == 0 {
		t.Fatal("expected the surviving mapping's frame to remain referenced")
	}
}

// Duplicate installs a same-frame, write-cleared twin and bumps the
// frame's refcount; both sides read identical contents until a write.
func TestDuplicateInstallsCOWTwin(t *testing.T) {
	ft := freshFT(t)
	pg, ppn, _ := ft.AllocKpages(nil, 1)
	pg[0] = 0xAB
	tbl := New(128)
	tbl.Insert(1, 0x500000, ppn, defs.PERM_R|defs.PERM_W)

	tbl.Duplicate(ft, 2, 1)

	orig := tbl.Lookup(1, 0x500000)
	twin := tbl.Lookup(2, 0x500000)
	if twin == nil {
		t.Fatal("expected duplicate to install a twin entry")
	}
	if orig.Writable() || twin.Writable() {
		t.Fatal("expected both sides to be write-protected after duplicate")
	}
	if orig.PPN() != twin.PPN() {
		t.Fatal("expected both sides to share the same frame")
	}
	if ft.Refcount(ppn) != 2 {
		t.Fatalf("expected shared frame refcount 2, got %d", ft.Refcount(ppn))
	}
	if ft.Bytes(twin.PPN())[0] != 0xAB {
		t.Fatal("expected twin to see identical contents")
	}
}
