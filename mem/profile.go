package mem

import (
	"time"

	"github.com/google/pprof/profile"
)

// Profile renders the frame table's free/used/pinned occupancy as a
// pprof heap-style profile so students can load it with `go tool pprof`
// and see fragmentation the way they would a Go heap profile. This mirrors
// the frame table's occupancy statistics (coremap statistics
// supplement) but in a format tool-compatible with the rest of the Go
// ecosystem rather than a bespoke sysctl dump.
func (ft *FrameTable) Profile() *profile.Profile {
	s := ft.Snapshot()

	frameType := &profile.ValueType{Type: "frames", Unit: "count"}
	sampleType := []*profile.ValueType{frameType}

	mkLoc := func(id uint64, name string) (*profile.Location, *profile.Function) {
		fn := &profile.Function{ID: id, Name: name}
		loc := &profile.Location{ID: id, Line: []profile.Line{{Function: fn}}}
		return loc, fn
	}

	locFree, fnFree := mkLoc(1, "free")
	locUsed, fnUsed := mkLoc(2, "used")
	locPinned, fnPinned := mkLoc(3, "pinned")

	p := &profile.Profile{
		SampleType:    sampleType,
		PeriodType:    frameType,
		Period:        1,
		TimeNanos:     time.Now().UnixNano(),
		Function:      []*profile.Function{fnFree, fnUsed, fnPinned},
		Location:      []*profile.Location{locFree, locUsed, locPinned},
		Sample: []*profile.Sample{
			{Location: []*profile.Location{locFree}, Value: []int64{int64(s.Free)}},
			{Location: []*profile.Location{locUsed}, Value: []int64{int64(s.Used)}},
			{Location: []*profile.Location{locPinned}, Value: []int64{int64(s.Pinned)}},
		},
	}
	return p
}
