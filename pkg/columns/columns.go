// Package columns reorganizes a decoded frame-record batch into dense typed
// columns, one per leaf field, sized to the batch.
//
// Fixed per-port fields use dense (port, frame) addressing: every column is
// pre-sized to port-count x frame-count and written by direct index
// assignment. Item fields use append addressing with an explicit per-frame
// length side array, because item counts are unknown until each frame is
// visited.
//
// Version-gated tiers are not modeled as nested optionals here. Each chain
// collapses to a single resolved depth tag plus flat column fields for every
// tier, allocated unconditionally; columns beyond the resolved depth are
// simply never written or read.
package columns

import (
	"github.com/replaystats/framecol/pkg/replay"
)

// PreColumns holds the pre-state column group, [port][frame].
type PreColumns struct {
	PositionX [][]float32
	PositionY [][]float32
	Direction [][]bool
	JoystickX [][]float32
	JoystickY [][]float32
	CstickX   [][]float32
	CstickY   [][]float32

	TriggerLogical [][]float32
	TriggerL       [][]float32
	TriggerR       [][]float32

	RandomSeed      [][]int32
	ButtonsLogical  [][]int32
	ButtonsPhysical [][]int32
	State           [][]int32

	// v1.2
	RawAnalogX [][]int32
	// v1.4
	Damage [][]float32
}

// PostColumns holds the post-state column group, [port][frame].
type PostColumns struct {
	PositionX [][]float32
	PositionY [][]float32
	Direction [][]bool
	Damage    [][]float32
	Shield    [][]float32

	State            [][]int32
	Character        [][]int32
	LastAttackLanded [][]int32
	ComboCount       [][]int32
	LastHitBy        [][]int32
	Stocks           [][]int32

	// v0.2
	StateAge [][]float32
	// v2.0
	Flags    [][]int64
	MiscAS   [][]float32
	Airborne [][]bool
	Ground   [][]int32
	Jumps    [][]int32
	LCancel  [][]int32
	// v2.1
	HurtboxState [][]int32
	// v3.5
	AutogenousX [][]float32
	AutogenousY [][]float32
	KnockbackX  [][]float32
	KnockbackY  [][]float32
	// v3.8
	Hitlag [][]float32
}

// PortColumns pairs pre- and post-state columns for one character slot.
type PortColumns struct {
	Pre  PreColumns
	Post PostColumns
}

// ItemColumns holds the item column group. All value columns grow by append,
// in frame order; Lengths records how many item rows each frame contributed.
type ItemColumns struct {
	Lengths []int

	FrameIndex []int32
	ID         []int32
	Type       []int32
	State      []int32
	Direction  []bool
	PositionX  []float32
	PositionY  []float32
	VelocityX  []float32
	VelocityY  []float32
	Damage     []int32
	Timer      []float32

	// v3.2
	Misc []int32
	// v3.6
	Owner []int32
}

// StartColumns holds the per-frame start-block columns.
type StartColumns struct {
	RandomSeed []int32
}

// EndColumns holds the per-frame end-block columns. The base tier is empty;
// only v3.7 contributes a leaf.
type EndColumns struct {
	LatestFinalizedFrame []int32
}

// Tree is the transform's output: a populated column tree mirroring the
// record's nested shape, immutable once the transform pass completes, and
// consumed exactly once by exactly one sink.
type Tree struct {
	NumPorts  int
	NumFrames int
	Depths    replay.TierDepths

	Leader   PortColumns
	Follower PortColumns

	Start StartColumns
	End   EndColumns
	Item  ItemColumns
}

// FrameIndexes returns the frame-index column shared by every row group:
// frame 0 in the batch is FirstFrameIndex on the wire.
func (t *Tree) FrameIndexes() []int32 {
	idx := make([]int32, t.NumFrames)
	for i := range idx {
		idx[i] = replay.FirstFrameIndex + int32(i)
	}
	return idx
}

// PortHasFollower reports whether the port should emit a follower row group:
// its frame-zero resident character is a paired-character identifier.
func (t *Tree) PortHasFollower(port int) bool {
	return replay.HasFollower(uint8(t.Leader.Post.Character[port][0]))
}

func alloc2f(ports, frames int) [][]float32 {
	out := make([][]float32, ports)
	for p := range out {
		out[p] = make([]float32, frames)
	}
	return out
}

func alloc2b(ports, frames int) [][]bool {
	out := make([][]bool, ports)
	for p := range out {
		out[p] = make([]bool, frames)
	}
	return out
}

func alloc2i32(ports, frames int) [][]int32 {
	out := make([][]int32, ports)
	for p := range out {
		out[p] = make([]int32, frames)
	}
	return out
}

func alloc2i64(ports, frames int) [][]int64 {
	out := make([][]int64, ports)
	for p := range out {
		out[p] = make([]int64, frames)
	}
	return out
}

func newPreColumns(ports, frames int) PreColumns {
	return PreColumns{
		PositionX:       alloc2f(ports, frames),
		PositionY:       alloc2f(ports, frames),
		Direction:       alloc2b(ports, frames),
		JoystickX:       alloc2f(ports, frames),
		JoystickY:       alloc2f(ports, frames),
		CstickX:         alloc2f(ports, frames),
		CstickY:         alloc2f(ports, frames),
		TriggerLogical:  alloc2f(ports, frames),
		TriggerL:        alloc2f(ports, frames),
		TriggerR:        alloc2f(ports, frames),
		RandomSeed:      alloc2i32(ports, frames),
		ButtonsLogical:  alloc2i32(ports, frames),
		ButtonsPhysical: alloc2i32(ports, frames),
		State:           alloc2i32(ports, frames),
		RawAnalogX:      alloc2i32(ports, frames),
		Damage:          alloc2f(ports, frames),
	}
}

func newPostColumns(ports, frames int) PostColumns {
	return PostColumns{
		PositionX:        alloc2f(ports, frames),
		PositionY:        alloc2f(ports, frames),
		Direction:        alloc2b(ports, frames),
		Damage:           alloc2f(ports, frames),
		Shield:           alloc2f(ports, frames),
		State:            alloc2i32(ports, frames),
		Character:        alloc2i32(ports, frames),
		LastAttackLanded: alloc2i32(ports, frames),
		ComboCount:       alloc2i32(ports, frames),
		LastHitBy:        alloc2i32(ports, frames),
		Stocks:           alloc2i32(ports, frames),
		StateAge:         alloc2f(ports, frames),
		Flags:            alloc2i64(ports, frames),
		MiscAS:           alloc2f(ports, frames),
		Airborne:         alloc2b(ports, frames),
		Ground:           alloc2i32(ports, frames),
		Jumps:            alloc2i32(ports, frames),
		LCancel:          alloc2i32(ports, frames),
		HurtboxState:     alloc2i32(ports, frames),
		AutogenousX:      alloc2f(ports, frames),
		AutogenousY:      alloc2f(ports, frames),
		KnockbackX:       alloc2f(ports, frames),
		KnockbackY:       alloc2f(ports, frames),
		Hitlag:           alloc2f(ports, frames),
	}
}

func newTree(ports, frames int, depths replay.TierDepths) *Tree {
	t := &Tree{
		NumPorts:  ports,
		NumFrames: frames,
		Depths:    depths,
		Leader: PortColumns{
			Pre:  newPreColumns(ports, frames),
			Post: newPostColumns(ports, frames),
		},
		Follower: PortColumns{
			Pre:  newPreColumns(ports, frames),
			Post: newPostColumns(ports, frames),
		},
		Item: ItemColumns{
			Lengths: make([]int, frames),
		},
	}
	if depths.HasStart {
		t.Start.RandomSeed = make([]int32, frames)
	}
	if depths.HasEnd && depths.End >= replay.EndTierV3_7 {
		t.End.LatestFinalizedFrame = make([]int32, frames)
	}
	return t
}
