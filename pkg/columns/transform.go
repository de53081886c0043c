package columns

import (
	"encoding/binary"
	"math"

	"github.com/replaystats/framecol/pkg/errors"
	"github.com/replaystats/framecol/pkg/replay"
)

// Sentinel values for fields that are logically absent but must be dense:
// several sinks have no null representation for these columns.
const (
	// AbsentAttackLanded replaces a nil "last attack landed" identifier.
	AbsentAttackLanded int32 = 0
	// AbsentPort replaces a nil "last hit by" or item-owner port identifier.
	AbsentPort int32 = math.MaxUint8
)

// L-cancel tri-state encoding.
const (
	LCancelUnknown int32 = 0
	LCancelSuccess int32 = 1
	LCancelFailure int32 = 2
)

// Transform reorganizes a batch into a populated column tree in a single
// pass. Depths must come from replay.Resolve on the same batch.
//
// Value conversion never fails; the only reportable failure is a structural
// one: a frame whose actual tier depth is shallower than the batch-wide
// resolved depth. That aborts the whole conversion.
func Transform(frames []replay.Frame, depths replay.TierDepths) (*Tree, error) {
	if len(frames) == 0 {
		return nil, errors.New(errors.ErrorTypePrecondition, "empty frame sequence")
	}
	numPorts := len(frames[0].Ports)
	if numPorts == 0 {
		return nil, errors.New(errors.ErrorTypePrecondition, "first frame has no occupied ports")
	}

	t := newTree(numPorts, len(frames), depths)

	for f := range frames {
		frame := &frames[f]

		if len(frame.Ports) != numPorts {
			return nil, errors.Newf(errors.ErrorTypePrecondition,
				"frame %d has %d ports, batch has %d", f, len(frame.Ports), numPorts)
		}

		if depths.HasStart && frame.Start != nil {
			t.Start.RandomSeed[f] = int32(frame.Start.RandomSeed)
		}
		if depths.HasEnd && frame.End != nil && depths.End >= replay.EndTierV3_7 {
			if frame.End.V3_7 != nil {
				t.End.LatestFinalizedFrame[f] = frame.End.V3_7.LatestFinalizedFrame
			}
		}

		for p := range frame.Ports {
			port := &frame.Ports[p]
			if err := t.transformPort(&port.Leader, &t.Leader, p, f); err != nil {
				return nil, err
			}
			if port.Follower != nil {
				if err := t.transformPort(port.Follower, &t.Follower, p, f); err != nil {
					return nil, err
				}
			}
		}

		t.Item.Lengths[f] = len(frame.Items)
		for i := range frame.Items {
			if err := t.appendItem(&frame.Items[i], f); err != nil {
				return nil, err
			}
		}
	}

	return t, nil
}

func (t *Tree) transformPort(src *replay.PortData, dst *PortColumns, p, f int) error {
	if err := t.transformPre(&src.Pre, &dst.Pre, p, f); err != nil {
		return err
	}
	return t.transformPost(&src.Post, &dst.Post, p, f)
}

func (t *Tree) transformPre(src *replay.Pre, dst *PreColumns, p, f int) error {
	dst.PositionX[p][f] = src.Position.X
	dst.PositionY[p][f] = src.Position.Y
	dst.Direction[p][f] = facesRight(src.Direction)
	dst.JoystickX[p][f] = src.Joystick.X
	dst.JoystickY[p][f] = src.Joystick.Y
	dst.CstickX[p][f] = src.Cstick.X
	dst.CstickY[p][f] = src.Cstick.Y
	dst.TriggerLogical[p][f] = src.Triggers.Logical
	dst.TriggerL[p][f] = src.Triggers.Physical.L
	dst.TriggerR[p][f] = src.Triggers.Physical.R
	dst.RandomSeed[p][f] = int32(src.RandomSeed)
	dst.ButtonsLogical[p][f] = int32(src.Buttons.Logical)
	dst.ButtonsPhysical[p][f] = int32(src.Buttons.Physical)
	dst.State[p][f] = int32(src.State)

	if t.Depths.Pre >= replay.PreTierV1_2 {
		if src.V1_2 == nil {
			return tierMismatch("pre v1.2", p, f)
		}
		dst.RawAnalogX[p][f] = int32(src.V1_2.RawAnalogX)
		if t.Depths.Pre >= replay.PreTierV1_4 {
			if src.V1_2.V1_4 == nil {
				return tierMismatch("pre v1.4", p, f)
			}
			dst.Damage[p][f] = src.V1_2.V1_4.Damage
		}
	}
	return nil
}

func (t *Tree) transformPost(src *replay.Post, dst *PostColumns, p, f int) error {
	dst.PositionX[p][f] = src.Position.X
	dst.PositionY[p][f] = src.Position.Y
	dst.Direction[p][f] = facesRight(src.Direction)
	dst.Damage[p][f] = src.Damage
	dst.Shield[p][f] = src.Shield
	dst.State[p][f] = int32(src.State)
	dst.Character[p][f] = int32(src.Character)
	dst.LastAttackLanded[p][f] = optionalAttack(src.LastAttackLanded)
	dst.ComboCount[p][f] = int32(src.ComboCount)
	dst.LastHitBy[p][f] = optionalPort(src.LastHitBy)
	dst.Stocks[p][f] = int32(src.Stocks)

	if t.Depths.Post < replay.PostTierV0_2 {
		return nil
	}
	v02 := src.V0_2
	if v02 == nil {
		return tierMismatch("post v0.2", p, f)
	}
	dst.StateAge[p][f] = v02.StateAge

	if t.Depths.Post < replay.PostTierV2_0 {
		return nil
	}
	v20 := v02.V2_0
	if v20 == nil {
		return tierMismatch("post v2.0", p, f)
	}
	dst.Flags[p][f] = int64(v20.Flags)
	dst.MiscAS[p][f] = v20.MiscAS
	dst.Airborne[p][f] = v20.Airborne
	dst.Ground[p][f] = int32(v20.Ground)
	dst.Jumps[p][f] = int32(v20.Jumps)
	dst.LCancel[p][f] = lcancelState(v20.LCancel)

	if t.Depths.Post < replay.PostTierV2_1 {
		return nil
	}
	v21 := v20.V2_1
	if v21 == nil {
		return tierMismatch("post v2.1", p, f)
	}
	dst.HurtboxState[p][f] = int32(v21.HurtboxState)

	if t.Depths.Post < replay.PostTierV3_5 {
		return nil
	}
	v35 := v21.V3_5
	if v35 == nil {
		return tierMismatch("post v3.5", p, f)
	}
	dst.AutogenousX[p][f] = v35.Autogenous.X
	dst.AutogenousY[p][f] = v35.Autogenous.Y
	dst.KnockbackX[p][f] = v35.Knockback.X
	dst.KnockbackY[p][f] = v35.Knockback.Y

	if t.Depths.Post < replay.PostTierV3_8 {
		return nil
	}
	v38 := v35.V3_8
	if v38 == nil {
		return tierMismatch("post v3.8", p, f)
	}
	dst.Hitlag[p][f] = v38.Hitlag
	return nil
}

func (t *Tree) appendItem(src *replay.Item, f int) error {
	it := &t.Item
	it.FrameIndex = append(it.FrameIndex, replay.FirstFrameIndex+int32(f))
	it.ID = append(it.ID, int32(src.ID))
	it.Type = append(it.Type, int32(src.Type))
	it.State = append(it.State, int32(src.State))
	it.Direction = append(it.Direction, facesRight(src.Direction))
	it.PositionX = append(it.PositionX, src.Position.X)
	it.PositionY = append(it.PositionY, src.Position.Y)
	it.VelocityX = append(it.VelocityX, src.Velocity.X)
	it.VelocityY = append(it.VelocityY, src.Velocity.Y)
	it.Damage = append(it.Damage, int32(src.Damage))
	it.Timer = append(it.Timer, src.Timer)

	if t.Depths.Item >= replay.ItemTierV3_2 {
		if src.V3_2 == nil {
			return tierMismatch("item v3.2", -1, f)
		}
		it.Misc = append(it.Misc, decodeItemMisc(src.V3_2.Misc))
		if t.Depths.Item >= replay.ItemTierV3_6 {
			if src.V3_2.V3_6 == nil {
				return tierMismatch("item v3.6", -1, f)
			}
			it.Owner = append(it.Owner, optionalPort(src.V3_2.V3_6.Owner))
		}
	}
	return nil
}

// facesRight maps the signed direction encoding to a boolean: negative means
// facing left, zero and positive mean facing right.
func facesRight(direction int8) bool {
	return direction >= 0
}

func optionalAttack(attack *uint8) int32 {
	if attack == nil {
		return AbsentAttackLanded
	}
	return int32(*attack)
}

func optionalPort(port *uint8) int32 {
	if port == nil {
		return AbsentPort
	}
	return int32(*port)
}

func lcancelState(lc *bool) int32 {
	switch {
	case lc == nil:
		return LCancelUnknown
	case *lc:
		return LCancelSuccess
	default:
		return LCancelFailure
	}
}

// decodeItemMisc reinterprets the four raw misc bytes as a little-endian
// unsigned 32-bit integer. This is a reinterpretation of the wire bytes, not
// a numeric conversion.
func decodeItemMisc(misc [4]byte) int32 {
	return int32(binary.LittleEndian.Uint32(misc[:]))
}

func tierMismatch(tier string, port, frame int) error {
	e := errors.Newf(errors.ErrorTypePrecondition,
		"tier %s resolved present from frame zero but missing at frame %d", tier, frame)
	if port >= 0 {
		e = e.WithDetail("port", port)
	}
	return e
}
