// Package parquetsink writes a populated column tree to Parquet: a frames
// file with one row group per occupied port (plus one follower row group per
// paired-character port), and an items file with one row per frame and a
// single repeated item group.
//
// Version tiers appear in the embedded schema as named optional groups, so a
// reader supports old- and new-protocol files alike by checking which groups
// the file's schema carries. Definition and repetition levels come from the
// level encoder, never from the parquet library's own assembly.
package parquetsink

import (
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/schema"

	"github.com/replaystats/framecol/pkg/errors"
	"github.com/replaystats/framecol/pkg/replay"
)

func reqFloat(name string) schema.Node {
	return schema.MustPrimitive(schema.NewPrimitiveNode(name, parquet.Repetitions.Required, parquet.Types.Float, -1, -1))
}

func reqBool(name string) schema.Node {
	return schema.MustPrimitive(schema.NewPrimitiveNode(name, parquet.Repetitions.Required, parquet.Types.Boolean, -1, -1))
}

func reqInt32(name string) schema.Node {
	return schema.MustPrimitive(schema.NewPrimitiveNode(name, parquet.Repetitions.Required, parquet.Types.Int32, -1, -1))
}

func reqUint(name string, converted schema.ConvertedType) schema.Node {
	return schema.MustPrimitive(schema.NewPrimitiveNodeConverted(
		name, parquet.Repetitions.Required, parquet.Types.Int32, converted, 0, 0, 0, -1))
}

func reqUint64(name string) schema.Node {
	return schema.MustPrimitive(schema.NewPrimitiveNodeConverted(
		name, parquet.Repetitions.Required, parquet.Types.Int64, schema.ConvertedTypes.Uint64, 0, 0, 0, -1))
}

func group(name string, rep parquet.Repetition, fields ...schema.Node) schema.Node {
	return schema.MustGroup(schema.NewGroupNode(name, rep, fields, -1))
}

func position(name string) schema.Node {
	return group(name, parquet.Repetitions.Required, reqFloat("x"), reqFloat("y"))
}

// preSchema builds the pre-state group with tier groups nested to the
// resolved depth. Field order here must match dremel.PortLeaves.
func preSchema(depth int) schema.Node {
	fields := []schema.Node{
		position("position"),
		reqBool("direction"),
		position("joystick"),
		position("cstick"),
		group("triggers", parquet.Repetitions.Required,
			group("physical", parquet.Repetitions.Required, reqFloat("l"), reqFloat("r")),
			reqFloat("logical"),
		),
		reqUint("random_seed", schema.ConvertedTypes.Uint32),
		group("buttons", parquet.Repetitions.Required,
			reqUint("physical", schema.ConvertedTypes.Uint16),
			reqUint("logical", schema.ConvertedTypes.Uint32),
		),
		reqUint("state", schema.ConvertedTypes.Uint16),
	}
	if depth >= replay.PreTierV1_2 {
		v12 := []schema.Node{reqUint("raw_analog_x", schema.ConvertedTypes.Uint8)}
		if depth >= replay.PreTierV1_4 {
			v12 = append(v12, group("v1_4", parquet.Repetitions.Optional, reqFloat("damage")))
		}
		fields = append(fields, group("v1_2", parquet.Repetitions.Optional, v12...))
	}
	return group("pre", parquet.Repetitions.Required, fields...)
}

// postSchema builds the post-state group with tier groups nested to the
// resolved depth. Field order here must match dremel.PortLeaves.
func postSchema(depth int) schema.Node {
	fields := []schema.Node{
		position("position"),
		reqBool("direction"),
		reqFloat("damage"),
		reqFloat("shield"),
		reqUint("state", schema.ConvertedTypes.Uint16),
		reqUint("character", schema.ConvertedTypes.Uint8),
		reqUint("last_attack_landed", schema.ConvertedTypes.Uint8),
		reqUint("combo_count", schema.ConvertedTypes.Uint8),
		reqUint("last_hit_by", schema.ConvertedTypes.Uint8),
		reqUint("stocks", schema.ConvertedTypes.Uint8),
	}
	if depth >= replay.PostTierV0_2 {
		v02 := []schema.Node{reqFloat("state_age")}
		if depth >= replay.PostTierV2_0 {
			v20 := []schema.Node{
				reqUint64("flags"),
				reqFloat("misc_as"),
				reqBool("airborne"),
				reqUint("ground", schema.ConvertedTypes.Uint16),
				reqUint("jumps", schema.ConvertedTypes.Uint8),
				reqUint("l_cancel", schema.ConvertedTypes.Uint8),
			}
			if depth >= replay.PostTierV2_1 {
				v21 := []schema.Node{reqUint("hurtbox_state", schema.ConvertedTypes.Uint8)}
				if depth >= replay.PostTierV3_5 {
					v35 := []schema.Node{
						group("velocities", parquet.Repetitions.Required,
							position("autogenous"),
							position("knockback"),
						),
					}
					if depth >= replay.PostTierV3_8 {
						v35 = append(v35, group("v3_8", parquet.Repetitions.Optional, reqFloat("hitlag")))
					}
					v21 = append(v21, group("v3_5", parquet.Repetitions.Optional, v35...))
				}
				v20 = append(v20, group("v2_1", parquet.Repetitions.Optional, v21...))
			}
			v02 = append(v02, group("v2_0", parquet.Repetitions.Optional, v20...))
		}
		fields = append(fields, group("v0_2", parquet.Repetitions.Optional, v02...))
	}
	return group("post", parquet.Repetitions.Required, fields...)
}

// FrameSchema builds the frames-file message for the resolved tier depths.
func FrameSchema(depths replay.TierDepths) (*schema.GroupNode, error) {
	if err := checkDepths(depths); err != nil {
		return nil, err
	}
	root, err := schema.NewGroupNode("frame_data", parquet.Repetitions.Required, schema.FieldList{
		reqInt32("index"),
		reqUint("port", schema.ConvertedTypes.Uint8),
		reqBool("is_follower"),
		preSchema(depths.Pre),
		postSchema(depths.Post),
	}, -1)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "building frame schema")
	}
	return root, nil
}

// ItemSchema builds the items-file message for the resolved tier depths:
// one row per frame, a required frame index, and all item leaves inside one
// repeated group. Field order must match dremel.ItemLeaves.
func ItemSchema(depths replay.TierDepths) (*schema.GroupNode, error) {
	if err := checkDepths(depths); err != nil {
		return nil, err
	}
	fields := []schema.Node{
		reqUint("id", schema.ConvertedTypes.Uint32),
		reqUint("type", schema.ConvertedTypes.Uint16),
		reqUint("state", schema.ConvertedTypes.Uint8),
		reqBool("direction"),
		position("position"),
		position("velocity"),
		reqUint("damage", schema.ConvertedTypes.Uint16),
		reqFloat("timer"),
	}
	if depths.Item >= replay.ItemTierV3_2 {
		v32 := []schema.Node{reqUint("misc", schema.ConvertedTypes.Uint32)}
		if depths.Item >= replay.ItemTierV3_6 {
			v32 = append(v32, group("v3_6", parquet.Repetitions.Optional,
				reqUint("owner", schema.ConvertedTypes.Uint8)))
		}
		fields = append(fields, group("v3_2", parquet.Repetitions.Optional, v32...))
	}
	root, err := schema.NewGroupNode("item_data", parquet.Repetitions.Required, schema.FieldList{
		reqInt32("index"),
		group("item", parquet.Repetitions.Repeated, fields...),
	}, -1)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "building item schema")
	}
	return root, nil
}

// checkDepths rejects tier depths whose presence flags contradict each
// other before any schema node is built.
func checkDepths(d replay.TierDepths) error {
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
		return errors.New(errors.ErrorTypeSchema, "item tier deeper than base in a batch without items")
	}
	if d.End > replay.EndTierBase && !d.HasEnd {
		return errors.New(errors.ErrorTypeSchema, "end tier deeper than base in a batch without end blocks")
	}
	return nil
}
