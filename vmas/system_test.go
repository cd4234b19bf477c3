package vmas

import (
	"testing"

	"teachos/defs"
)

// Two-phase boot: kernel allocations before Bootstrap come out of the
// bootstrap allocator; after Bootstrap the frame table serves them and the
// fault path works end to end.
func TestBootSystemHandoff(t *testing.T) {
	sys, sm := NewBootSystem(4)

	pg, _, ok := sys.Frames.AllocKpages(sm, 1)
	if !ok || pg == nil {
		t.Fatal("expected the bootstrap allocator to serve pre-init allocations")
	}

	sys.Bootstrap(8*1024*1024, 128*1024)

	as := sys.Create()
	if err := as.DefineRegion(0x400000, 0x1000, true, true, false); err != 0 {
		t.Fatalf("DefineRegion: %v", err)
	}
	if err := sys.VMFault(as, defs.FaultRead, 0x400000); err != 0 {
		t.Fatalf("VMFault after boot handoff: %v", err)
	}
	if sys.HPT.CountFor(as.ID()) != 1 {
		t.Fatal("expected the post-boot fault to land in the HPT")
	}
}

// Address-space identities are unique and monotonic; the HPT keys on them,
// so a recycled identity would alias another process's mappings.
func TestAsIDsAreUnique(t *testing.T) {
	sys := freshSystem(t)
	seen := make(map[defs.AsID]bool)
	for i := 0; i < 100; i++ {
		as := sys.Create()
		if seen[as.ID()] {
			t.Fatalf("duplicate AsID %d", as.ID())
		}
		seen[as.ID()] = true
	}
}
