// Package testutil builds synthetic frame batches for tests. Values are
// deterministic functions of port and frame index so assertions can recompute
// them instead of carrying fixtures.
package testutil

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/replaystats/framecol/pkg/replay"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// BatchOptions shapes a synthetic batch. Zero tier depths and false flags
// produce the oldest-protocol batch: base tiers only, no start/end blocks,
// no items.
type BatchOptions struct {
	Ports  int
	Frames int

	PreDepth  int
	PostDepth int
	ItemDepth int
	EndDepth  int

	WithStart bool
	WithEnd   bool

	// ItemsPerFrame gives each frame's item count; nil means no items.
	ItemsPerFrame []int

	// FollowerPorts lists ports resident with a paired character; those ports
	// get follower data on every frame.
	FollowerPorts []int
}

// NewBatch builds a batch per opts.
func NewBatch(opts BatchOptions) []replay.Frame {
	follower := make(map[int]bool, len(opts.FollowerPorts))
	for _, p := range opts.FollowerPorts {
		follower[p] = true
	}

	frames := make([]replay.Frame, opts.Frames)
	for f := range frames {
		frame := replay.Frame{
			Ports: make([]replay.PortFrame, opts.Ports),
		}
		for p := range frame.Ports {
			pf := replay.PortFrame{
				Leader: NewPortData(opts, p, f, follower[p]),
			}
			if follower[p] {
				fd := NewPortData(opts, p, f, true)
				fd.Post.Character = replay.CharPairedFollower
				pf.Follower = &fd
			}
			frame.Ports[p] = pf
		}
		if opts.WithStart {
			frame.Start = &replay.Start{RandomSeed: uint32(1000 + f)}
		}
		if opts.WithEnd {
			end := &replay.End{}
			if opts.EndDepth >= replay.EndTierV3_7 {
				end.V3_7 = &replay.EndV3_7{LatestFinalizedFrame: replay.FirstFrameIndex + int32(f)}
			}
			frame.End = end
		}
		if opts.ItemsPerFrame != nil {
			for j := 0; j < opts.ItemsPerFrame[f]; j++ {
				frame.Items = append(frame.Items, NewItem(opts, f, j))
			}
		}
		frames[f] = frame
	}
	return frames
}

// NewPortData builds one character's pre/post blocks with deterministic
// values derived from (port, frame).
func NewPortData(opts BatchOptions, p, f int, paired bool) replay.PortData {
	base := float32(p*1000 + f)
	d := replay.PortData{
		Pre: replay.Pre{
			Position:  replay.Position{X: base + 0.25, Y: base + 0.5},
			Direction: direction(f),
			Joystick:  replay.Position{X: 0.1, Y: -0.1},
			Cstick:    replay.Position{X: 0.2, Y: -0.2},
			Triggers: replay.Triggers{
				Logical:  0.5,
				Physical: replay.TriggersPhysical{L: 0.3, R: 0.7},
			},
			RandomSeed: uint32(p*100 + f),
			Buttons: replay.Buttons{
				Logical:  uint32(f),
				Physical: uint16(f),
			},
			State: uint16(14 + p),
		},
		Post: replay.Post{
			Position:   replay.Position{X: base + 1.25, Y: base + 1.5},
			Direction:  direction(f + 1),
			Damage:     float32(f) * 1.5,
			Shield:     60,
			State:      uint16(14 + p),
			Character:  uint8(p + 1),
			ComboCount: uint8(f % 4),
			Stocks:     4,
		},
	}
	if paired {
		d.Post.Character = replay.CharPairedLeader
	}

	if opts.PreDepth >= replay.PreTierV1_2 {
		v12 := &replay.PreV1_2{RawAnalogX: uint8(f % 256)}
		if opts.PreDepth >= replay.PreTierV1_4 {
			v12.V1_4 = &replay.PreV1_4{Damage: float32(f) * 1.5}
		}
		d.Pre.V1_2 = v12
	}

	if opts.PostDepth >= replay.PostTierV0_2 {
		v02 := &replay.PostV0_2{StateAge: float32(f)}
		if opts.PostDepth >= replay.PostTierV2_0 {
			v20 := &replay.PostV2_0{
				Flags:    uint64(f) << 8,
				MiscAS:   float32(f) / 2,
				Airborne: f%2 == 1,
				Ground:   uint16(34),
				Jumps:    2,
			}
			if f%3 == 0 {
				success := f%2 == 0
				v20.LCancel = &success
			}
			if opts.PostDepth >= replay.PostTierV2_1 {
				v21 := &replay.PostV2_1{HurtboxState: uint8(f % 3)}
				if opts.PostDepth >= replay.PostTierV3_5 {
					v35 := &replay.PostV3_5{
						Autogenous: replay.Velocity{X: 0.5, Y: -0.5},
						Knockback:  replay.Velocity{X: float32(f), Y: 0},
					}
					if opts.PostDepth >= replay.PostTierV3_8 {
						v35.V3_8 = &replay.PostV3_8{Hitlag: float32(f % 5)}
					}
					v21.V3_5 = v35
				}
				v20.V2_1 = v21
			}
			v02.V2_0 = v20
		}
		d.Post.V0_2 = v02
	}
	return d
}

// NewItem builds one item with deterministic values derived from
// (frame, slot).
func NewItem(opts BatchOptions, f, j int) replay.Item {
	item := replay.Item{
		ID:        uint32(f*replay.MaxItems + j),
		Type:      uint16(j + 1),
		State:     uint8(j % 4),
		Direction: direction(j),
		Position:  replay.Position{X: float32(f), Y: float32(j)},
		Velocity:  replay.Velocity{X: 0.5, Y: -1},
		Damage:    uint16(j * 3),
		Timer:     float32(120 - f),
	}
	if opts.ItemDepth >= replay.ItemTierV3_2 {
		v32 := &replay.ItemV3_2{Misc: [4]byte{byte(j), 0, 0, byte(f % 2)}}
		if opts.ItemDepth >= replay.ItemTierV3_6 {
			owner := uint8(j % 2)
			v32.V3_6 = &replay.ItemV3_6{Owner: &owner}
		}
		item.V3_2 = v32
	}
	return item
}

// Ptr returns a pointer to v, for optional scalar fields in test fixtures.
func Ptr[T any](v T) *T {
	return &v
}

func direction(n int) int8 {
	if n%2 == 0 {
		return 1
	}
	return -1
}
