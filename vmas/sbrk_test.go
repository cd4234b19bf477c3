package vmas

import (
	"testing"

	"teachos/defs"
)

// asWithDataAndStack defines data ending exactly at 0x410000 and a stack at
// the top of the address space, matching the heap-growth scenario's setup.
func asWithDataAndStack(t *testing.T, sys *System) *AddrSpace {
	t.Helper()
	as := sys.Create()
	if err := as.DefineRegion(0x400000, 0x10000, true, true, true); err != 0 {
		t.Fatalf("DefineRegion(data): %v", err)
	}
	if _, err := as.DefineStack(); err != 0 {
		t.Fatalf("DefineStack: %v", err)
	}
	return as
}

// Heap growth: sbrk(0x2000) returns 0x410000 (the end of data); sbrk(0) is
// idempotent and returns 0x412000; sbrk(0x1000) grows it, returning the
// prior break 0x412000; the grown range is then faultable.
func TestSbrkHeapGrowth(t *testing.T) {
	sys := freshSystem(t)
	as := asWithDataAndStack(t, sys)

	brk, err := as.Sbrk(0x2000)
	if err != 0 {
		t.Fatalf("sbrk(0x2000): %v", err)
	}
	if brk != 0x410000 {
		t.Fatalf("sbrk(0x2000) = %#x, want 0x410000", brk)
	}

	brk, err = as.Sbrk(0)
	if err != 0 {
		t.Fatalf("sbrk(0): %v", err)
	}
	if brk != 0x412000 {
		t.Fatalf("sbrk(0) = %#x, want 0x412000", brk)
	}
	if as.heapRegion().Size != 0x2000 {
		t.Fatal("sbrk(0) must not alter the region list")
	}

	brk, err = as.Sbrk(0x1000)
	if err != 0 {
		t.Fatalf("sbrk(0x1000): %v", err)
	}
	if brk != 0x412000 {
		t.Fatalf("sbrk(0x1000) = %#x, want 0x412000", brk)
	}

	if err := sys.VMFault(as, defs.FaultRead, 0x411234); err != 0 {
		t.Fatalf("VMFault into grown heap: %v", err)
	}
}

// Heap collides with stack: from the state left by TestSbrkHeapGrowth's
// first call (heap = [0x410000, 0x412000)), requesting growth that would
// run the break up to the stack's downward span fails with ENOMEM and
// leaves the heap untouched.
func TestSbrkCollidesWithStack(t *testing.T) {
	sys := freshSystem(t)
	as := asWithDataAndStack(t, sys)

	if _, err := as.Sbrk(0x2000); err != 0 {
		t.Fatalf("sbrk(0x2000): %v", err)
	}

	before := as.heapRegion().Size

	_, err := as.Sbrk(int(0x80000000 - 0x412000))
	if err != defs.ENOMEM {
		t.Fatalf("sbrk into stack = %v, want ENOMEM", err)
	}
	if as.heapRegion().Size != before {
		t.Fatal("heap size changed on a failed sbrk")
	}
}

// Growth whose new break lands exactly on the bottom of the stack's
// downward span is a collision: the exclusive top end itself must be
// unused, so the heap and stack may not even touch.
func TestSbrkTouchingStackRejected(t *testing.T) {
	sys := freshSystem(t)
	as := asWithDataAndStack(t, sys)

	stackBottom := defs.USERSTACK - uintptr(defs.USERSTACK_PAGES*defs.PGSIZE)
	if _, err := as.Sbrk(int(stackBottom - 0x410000)); err != defs.ENOMEM {
		t.Fatalf("sbrk up to stack bottom = %v, want ENOMEM", err)
	}
	if as.heapRegion() != nil {
		t.Fatal("failed heap creation must not leave a region behind")
	}

	// One page short of the stack bottom is still fine.
	if _, err := as.Sbrk(int(stackBottom - 0x410000 - uintptr(defs.PGSIZE))); err != 0 {
		t.Fatalf("sbrk one page short of the stack = %v", err)
	}
}

// sbrk(0) idempotence: with no heap yet, sbrk(0) still creates the
// zero-size heap region at heap_base (the literal algorithm's degenerate
// case) without touching any other region.
func TestSbrkZeroWithNoHeapYet(t *testing.T) {
	sys := freshSystem(t)
	as := sys.Create()
	if err := as.DefineRegion(0x400000, 0x1000, true, true, false); err != 0 {
		t.Fatalf("DefineRegion: %v", err)
	}

	brk, err := as.Sbrk(0)
	if err != 0 {
		t.Fatalf("sbrk(0): %v", err)
	}
	if brk != 0x401000 {
		t.Fatalf("sbrk(0) = %#x, want 0x401000", brk)
	}
	if as.heapRegion() == nil {
		t.Fatal("expected a heap region to exist after sbrk(0)")
	}
	if as.heapRegion().Size != 0 {
		t.Fatalf("heap size = %#x, want 0", as.heapRegion().Size)
	}
}

// sbrk with a negative amount before any heap exists is rejected.
func TestSbrkNegativeWithNoHeapYet(t *testing.T) {
	sys := freshSystem(t)
	as := sys.Create()
	if err := as.DefineRegion(0x400000, 0x1000, true, true, false); err != 0 {
		t.Fatalf("DefineRegion: %v", err)
	}

	if _, err := as.Sbrk(-0x1000); err != defs.EINVAL {
		t.Fatalf("sbrk(-0x1000) with no heap = %v, want EINVAL", err)
	}
}

// Shrinking the heap below its base is rejected; shrinking within bounds
// only adjusts bookkeeping (no frame is freed by Sbrk itself).
func TestSbrkShrink(t *testing.T) {
	sys := freshSystem(t)
	as := asWithDataAndStack(t, sys)

	if _, err := as.Sbrk(0x2000); err != 0 {
		t.Fatalf("sbrk(0x2000): %v", err)
	}
	if err := sys.VMFault(as, defs.FaultWrite, 0x411000); err != 0 {
		t.Fatalf("VMFault into heap: %v", err)
	}

	brk, err := as.Sbrk(-0x1000)
	if err != 0 {
		t.Fatalf("sbrk(-0x1000): %v", err)
	}
	if brk != 0x412000 {
		t.Fatalf("sbrk(-0x1000) = %#x, want 0x412000", brk)
	}
	if as.heapRegion().Size != 0x1000 {
		t.Fatalf("heap size = %#x, want 0x1000", as.heapRegion().Size)
	}

	// The page faulted in before the shrink is still mapped: Sbrk does not
	// eagerly unmap or free frames on shrink.
	if pe := sys.HPT.Lookup(as.ID(), 0x411000); pe == nil {
		t.Fatal("expected shrink to leave the existing mapping alone")
	}

	if _, err := as.Sbrk(-0x10000); err != defs.EINVAL {
		t.Fatalf("sbrk shrinking past heap base = %v, want EINVAL", err)
	}
}
