// Program vmstat boots a standalone virtual memory system, runs it through a
// handful of representative operations (process creation, heap growth, a
// fork), and prints frame table and hashed page table occupancy. Passing
// -profile writes a pprof snapshot of frame occupancy that can be loaded
// with `go tool pprof`.
package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"teachos/defs"
	"teachos/vmas"
)

func main() {
	ramBytes := flag.Int("ram", 16*1024*1024, "simulated physical RAM size in bytes")
	firstFree := flag.Int("reserved", 256*1024, "bytes reserved by the bootstrap allocator before the frame table takes over")
	profilePath := flag.String("profile", "", "write a pprof frame-occupancy snapshot to this path")
	flag.Parse()

	sys := vmas.NewSystem(*ramBytes, *firstFree)

	as := sys.Create()
	if err := as.DefineRegion(0x400000, 0x10000, true, false, true); err != 0 {
		fmt.Fprintf(os.Stderr, "define code region: %v\n", err)
		os.Exit(1)
	}
	if err := as.DefineRegion(0x410000, 0x2000, true, true, false); err != 0 {
		fmt.Fprintf(os.Stderr, "define data region: %v\n", err)
		os.Exit(1)
	}
	if _, err := as.DefineStack(); err != 0 {
		fmt.Fprintf(os.Stderr, "define stack region: %v\n", err)
		os.Exit(1)
	}

	if err := sys.VMFault(as, defs.FaultRead, 0x400000); err != 0 {
		fmt.Fprintf(os.Stderr, "fault in code page: %v\n", err)
		os.Exit(1)
	}
	if err := sys.VMFault(as, defs.FaultReadOnly, 0x400000); err != defs.EFAULT {
		fmt.Fprintf(os.Stderr, "expected EFAULT writing to code page, got %v\n", err)
		os.Exit(1)
	}
	if _, err := as.Sbrk(0x2000); err != 0 {
		fmt.Fprintf(os.Stderr, "sbrk: %v\n", err)
		os.Exit(1)
	}

	child := sys.Copy(as)

	p := message.NewPrinter(language.English)

	fs := sys.Frames.Snapshot()
	p.Printf("frames: %d total, %d free, %d used, %d pinned\n", fs.NPages, fs.Free, fs.Used, fs.Pinned)
	p.Printf("hpt entries: %d total (parent %d, child %d)\n",
		sys.HPT.Size(), sys.HPT.CountFor(as.ID()), sys.HPT.CountFor(child.ID()))

	ps := as.Stats()
	p.Printf("parent fault stats: fresh=%d cow=%d readonly=%d stale-tlb=%d\n",
		ps.Fresh, ps.COW, ps.Readonly, ps.StaleTLB)

	if *profilePath != "" {
		prof := sys.Frames.Profile()
		f, err := os.Create(*profilePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := prof.Write(f); err != nil {
			fmt.Fprintf(os.Stderr, "write profile: %v\n", err)
			os.Exit(1)
		}
		p.Printf("wrote frame profile to %s\n", *profilePath)
	}
}
