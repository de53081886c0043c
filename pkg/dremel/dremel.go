// Package dremel projects the nested column tree into the flat
// (value, definition level, repetition level) triples a nested columnar file
// format needs to losslessly reconstruct optional and repeated structure.
//
// This protocol keeps the bookkeeping simple: optional chains are linear, and
// tier presence is batch-wide. A leaf's definition level is therefore a
// per-column constant equal to its count of optional ancestors, and
// repetition levels only matter for the per-frame item list, where the first
// item of a frame opens a new list occurrence (level 0) and every further
// item continues it (level 1). An empty list still emits one placeholder
// entry at definition level 0 so frame boundaries survive the flattening.
package dremel

import (
	"github.com/replaystats/framecol/pkg/columns"
	"github.com/replaystats/framecol/pkg/errors"
	"github.com/replaystats/framecol/pkg/replay"
)

// Type tags the physical type of a leaf column at the sink boundary.
type Type int

const (
	TypeBool Type = iota
	TypeInt32
	TypeInt64
	TypeFloat32
)

// Leaf is one flat column handed to a nested sink: a typed value buffer plus
// the level buffers needed to reconstruct its place in the record shape.
// DefLevels and RepLevels are nil for leaves with no optional or repeated
// ancestors; when present they share one length, which can exceed the value
// count (placeholder entries carry levels but no value).
type Leaf struct {
	Path   []string
	Type   Type
	MaxDef int16
	MaxRep int16

	Bools    []bool
	Int32s   []int32
	Int64s   []int64
	Float32s []float32

	DefLevels []int16
	RepLevels []int16
}

// NumValues returns the number of physical values in the leaf's buffer.
func (l *Leaf) NumValues() int {
	switch l.Type {
	case TypeBool:
		return len(l.Bools)
	case TypeInt32:
		return len(l.Int32s)
	case TypeInt64:
		return len(l.Int64s)
	default:
		return len(l.Float32s)
	}
}

// NumLevels returns the number of level entries, which is the row count the
// leaf contributes to its row group.
func (l *Leaf) NumLevels() int {
	if l.DefLevels == nil {
		return l.NumValues()
	}
	return len(l.DefLevels)
}

// ConstLevels builds the constant definition-level vector for a leaf inside
// batch-wide-present optional tiers: every row sits at the same depth.
func ConstLevels(n int, def int16) []int16 {
	if def == 0 {
		return nil
	}
	levels := make([]int16, n)
	for i := range levels {
		levels[i] = def
	}
	return levels
}

// ListLevels computes the definition and repetition level vectors for a leaf
// inside the repeated item group. lengths is the per-frame item count;
// maxDef is the leaf's full optional depth (the repeated group itself plus
// any item tier wrappers, all present batch-wide).
//
// Each frame with n > 0 items contributes n entries at definition level
// maxDef, the first at repetition level 0 and the rest at 1. A frame with no
// items contributes a single placeholder entry at definition level 0,
// repetition level 0, and no value.
func ListLevels(lengths []int, maxDef int16) (def, rep []int16) {
	total := 0
	for _, n := range lengths {
		if n == 0 {
			total++
		} else {
			total += n
		}
	}
	def = make([]int16, 0, total)
	rep = make([]int16, 0, total)
	for _, n := range lengths {
		if n == 0 {
			def = append(def, 0)
			rep = append(rep, 0)
			continue
		}
		for j := 0; j < n; j++ {
			def = append(def, maxDef)
			if j == 0 {
				rep = append(rep, 0)
			} else {
				rep = append(rep, 1)
			}
		}
	}
	return def, rep
}

// DecodeListLengths reconstructs the per-frame item counts from a leaf's
// level vectors: each repetition level 0 entry starts a new frame, and an
// entry defines a value only when its definition level is above zero.
// This is the inverse of ListLevels and is what a nested-format reader does
// to rebuild list boundaries.
func DecodeListLengths(def, rep []int16) ([]int, error) {
	if len(def) != len(rep) {
		return nil, errors.New(errors.ErrorTypeInternal, "definition/repetition level length mismatch")
	}
	var lengths []int
	for i := range def {
		if rep[i] == 0 {
			lengths = append(lengths, 0)
		} else if len(lengths) == 0 {
			return nil, errors.New(errors.ErrorTypeInternal, "repetition level continues a list before any list started")
		}
		if def[i] > 0 {
			lengths[len(lengths)-1]++
		}
	}
	return lengths, nil
}

// validateDepths fails fast when a chain's presence flags contradict each
// other; a sink must never be asked to describe such a tree.
func validateDepths(d replay.TierDepths) error {
	if d.Pre < replay.PreTierBase || d.Pre > replay.PreTierV1_4 {
		return errors.Newf(errors.ErrorTypeSchema, "pre-state tier depth %d out of range", d.Pre)
	}
	if d.Post < replay.PostTierBase || d.Post > replay.PostTierV3_8 {
		return errors.Newf(errors.ErrorTypeSchema, "post-state tier depth %d out of range", d.Post)
	}
	if d.Item < replay.ItemTierBase || d.Item > replay.ItemTierV3_6 {
		return errors.Newf(errors.ErrorTypeSchema, "item tier depth %d out of range", d.Item)
	}
	if d.Item > replay.ItemTierBase && !d.HasItems {
		return errors.New(errors.ErrorTypeSchema, "item tier resolved deeper than base but batch has no items")
	}
	if d.End > replay.EndTierBase && !d.HasEnd {
		return errors.New(errors.ErrorTypeSchema, "end tier resolved deeper than base but batch has no end blocks")
	}
	return nil
}

// boolLeaf, i32Leaf, i64Leaf, f32Leaf construct leaves with a constant
// definition level determined by the leaf's optional-tier depth.
func boolLeaf(path []string, vals []bool, def int16) Leaf {
	return Leaf{Path: path, Type: TypeBool, MaxDef: def, Bools: vals, DefLevels: ConstLevels(len(vals), def)}
}

func i32Leaf(path []string, vals []int32, def int16) Leaf {
	return Leaf{Path: path, Type: TypeInt32, MaxDef: def, Int32s: vals, DefLevels: ConstLevels(len(vals), def)}
}

func i64Leaf(path []string, vals []int64, def int16) Leaf {
	return Leaf{Path: path, Type: TypeInt64, MaxDef: def, Int64s: vals, DefLevels: ConstLevels(len(vals), def)}
}

func f32Leaf(path []string, vals []float32, def int16) Leaf {
	return Leaf{Path: path, Type: TypeFloat32, MaxDef: def, Float32s: vals, DefLevels: ConstLevels(len(vals), def)}
}

// PortLeaves encodes one port's row group: the shared index/port/is_follower
// columns followed by every pre- and post-state leaf present at the resolved
// tier depths, in schema order. src selects leader or follower columns.
func PortLeaves(t *columns.Tree, src *columns.PortColumns, port int, isFollower bool) ([]Leaf, error) {
	if err := validateDepths(t.Depths); err != nil {
		return nil, err
	}
	if port < 0 || port >= t.NumPorts {
		return nil, errors.Newf(errors.ErrorTypeInternal, "port %d out of range", port)
	}

	n := t.NumFrames
	portCol := make([]int32, n)
	followerCol := make([]bool, n)
	for i := range portCol {
		portCol[i] = int32(port)
		followerCol[i] = isFollower
	}

	leaves := []Leaf{
		i32Leaf([]string{"index"}, t.FrameIndexes(), 0),
		i32Leaf([]string{"port"}, portCol, 0),
		boolLeaf([]string{"is_follower"}, followerCol, 0),
	}
	leaves = append(leaves, preLeaves(t, &src.Pre, port)...)
	leaves = append(leaves, postLeaves(t, &src.Post, port)...)
	return leaves, nil
}

func preLeaves(t *columns.Tree, pre *columns.PreColumns, p int) []Leaf {
	leaves := []Leaf{
		f32Leaf([]string{"pre", "position", "x"}, pre.PositionX[p], 0),
		f32Leaf([]string{"pre", "position", "y"}, pre.PositionY[p], 0),
		boolLeaf([]string{"pre", "direction"}, pre.Direction[p], 0),
		f32Leaf([]string{"pre", "joystick", "x"}, pre.JoystickX[p], 0),
		f32Leaf([]string{"pre", "joystick", "y"}, pre.JoystickY[p], 0),
		f32Leaf([]string{"pre", "cstick", "x"}, pre.CstickX[p], 0),
		f32Leaf([]string{"pre", "cstick", "y"}, pre.CstickY[p], 0),
		f32Leaf([]string{"pre", "triggers", "physical", "l"}, pre.TriggerL[p], 0),
		f32Leaf([]string{"pre", "triggers", "physical", "r"}, pre.TriggerR[p], 0),
		f32Leaf([]string{"pre", "triggers", "logical"}, pre.TriggerLogical[p], 0),
		i32Leaf([]string{"pre", "random_seed"}, pre.RandomSeed[p], 0),
		i32Leaf([]string{"pre", "buttons", "physical"}, pre.ButtonsPhysical[p], 0),
		i32Leaf([]string{"pre", "buttons", "logical"}, pre.ButtonsLogical[p], 0),
		i32Leaf([]string{"pre", "state"}, pre.State[p], 0),
	}
	if t.Depths.Pre >= replay.PreTierV1_2 {
		leaves = append(leaves,
			i32Leaf([]string{"pre", "v1_2", "raw_analog_x"}, pre.RawAnalogX[p], 1))
		if t.Depths.Pre >= replay.PreTierV1_4 {
			leaves = append(leaves,
				f32Leaf([]string{"pre", "v1_2", "v1_4", "damage"}, pre.Damage[p], 2))
		}
	}
	return leaves
}

func postLeaves(t *columns.Tree, post *columns.PostColumns, p int) []Leaf {
	leaves := []Leaf{
		f32Leaf([]string{"post", "position", "x"}, post.PositionX[p], 0),
		f32Leaf([]string{"post", "position", "y"}, post.PositionY[p], 0),
		boolLeaf([]string{"post", "direction"}, post.Direction[p], 0),
		f32Leaf([]string{"post", "damage"}, post.Damage[p], 0),
		f32Leaf([]string{"post", "shield"}, post.Shield[p], 0),
		i32Leaf([]string{"post", "state"}, post.State[p], 0),
		i32Leaf([]string{"post", "character"}, post.Character[p], 0),
		i32Leaf([]string{"post", "last_attack_landed"}, post.LastAttackLanded[p], 0),
		i32Leaf([]string{"post", "combo_count"}, post.ComboCount[p], 0),
		i32Leaf([]string{"post", "last_hit_by"}, post.LastHitBy[p], 0),
		i32Leaf([]string{"post", "stocks"}, post.Stocks[p], 0),
	}
	d := t.Depths.Post
	if d >= replay.PostTierV0_2 {
		leaves = append(leaves,
			f32Leaf([]string{"post", "v0_2", "state_age"}, post.StateAge[p], 1))
	}
	if d >= replay.PostTierV2_0 {
		base := []string{"post", "v0_2", "v2_0"}
		leaves = append(leaves,
			i64Leaf(append(base[:len(base):len(base)], "flags"), post.Flags[p], 2),
			f32Leaf(append(base[:len(base):len(base)], "misc_as"), post.MiscAS[p], 2),
			boolLeaf(append(base[:len(base):len(base)], "airborne"), post.Airborne[p], 2),
			i32Leaf(append(base[:len(base):len(base)], "ground"), post.Ground[p], 2),
			i32Leaf(append(base[:len(base):len(base)], "jumps"), post.Jumps[p], 2),
			i32Leaf(append(base[:len(base):len(base)], "l_cancel"), post.LCancel[p], 2),
		)
	}
	if d >= replay.PostTierV2_1 {
		leaves = append(leaves,
			i32Leaf([]string{"post", "v0_2", "v2_0", "v2_1", "hurtbox_state"}, post.HurtboxState[p], 3))
	}
	if d >= replay.PostTierV3_5 {
		base := []string{"post", "v0_2", "v2_0", "v2_1", "v3_5", "velocities"}
		leaves = append(leaves,
			f32Leaf(append(base[:len(base):len(base)], "autogenous", "x"), post.AutogenousX[p], 4),
			f32Leaf(append(base[:len(base):len(base)], "autogenous", "y"), post.AutogenousY[p], 4),
			f32Leaf(append(base[:len(base):len(base)], "knockback", "x"), post.KnockbackX[p], 4),
			f32Leaf(append(base[:len(base):len(base)], "knockback", "y"), post.KnockbackY[p], 4),
		)
	}
	if d >= replay.PostTierV3_8 {
		leaves = append(leaves,
			f32Leaf([]string{"post", "v0_2", "v2_0", "v2_1", "v3_5", "v3_8", "hitlag"}, post.Hitlag[p], 5))
	}
	return leaves
}

// ItemLeaves encodes the item file's single row group: one row per frame,
// the frame index as a required column, and every item leaf inside one
// repeated group with levels computed from the per-frame list lengths.
func ItemLeaves(t *columns.Tree) ([]Leaf, error) {
	if err := validateDepths(t.Depths); err != nil {
		return nil, err
	}

	it := &t.Item

	leaves := []Leaf{
		i32Leaf([]string{"index"}, t.FrameIndexes(), 0),
	}

	listLeaf := func(path []string, l Leaf, tierDepth int16) Leaf {
		maxDef := 1 + tierDepth
		def, rep := ListLevels(it.Lengths, maxDef)
		l.Path = append([]string{"item"}, path...)
		l.MaxDef = maxDef
		l.MaxRep = 1
		l.DefLevels = def
		l.RepLevels = rep
		return l
	}

	leaves = append(leaves,
		listLeaf([]string{"id"}, Leaf{Type: TypeInt32, Int32s: it.ID}, 0),
		listLeaf([]string{"type"}, Leaf{Type: TypeInt32, Int32s: it.Type}, 0),
		listLeaf([]string{"state"}, Leaf{Type: TypeInt32, Int32s: it.State}, 0),
		listLeaf([]string{"direction"}, Leaf{Type: TypeBool, Bools: it.Direction}, 0),
		listLeaf([]string{"position", "x"}, Leaf{Type: TypeFloat32, Float32s: it.PositionX}, 0),
		listLeaf([]string{"position", "y"}, Leaf{Type: TypeFloat32, Float32s: it.PositionY}, 0),
		listLeaf([]string{"velocity", "x"}, Leaf{Type: TypeFloat32, Float32s: it.VelocityX}, 0),
		listLeaf([]string{"velocity", "y"}, Leaf{Type: TypeFloat32, Float32s: it.VelocityY}, 0),
		listLeaf([]string{"damage"}, Leaf{Type: TypeInt32, Int32s: it.Damage}, 0),
		listLeaf([]string{"timer"}, Leaf{Type: TypeFloat32, Float32s: it.Timer}, 0),
	)
	if t.Depths.Item >= replay.ItemTierV3_2 {
		leaves = append(leaves,
			listLeaf([]string{"v3_2", "misc"}, Leaf{Type: TypeInt32, Int32s: it.Misc}, 1))
		if t.Depths.Item >= replay.ItemTierV3_6 {
			leaves = append(leaves,
				listLeaf([]string{"v3_2", "v3_6", "owner"}, Leaf{Type: TypeInt32, Int32s: it.Owner}, 2))
		}
	}
	return leaves, nil
}
