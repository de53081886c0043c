// Package jsonsink renders a populated column tree back into nested JSON,
// one document per batch, for inspection and for consumers without columnar
// tooling. Output can be compressed with any codec the compression package
// ships.
package jsonsink

import (
	"bytes"
	"io"
	"strconv"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/replaystats/framecol/pkg/columns"
	"github.com/replaystats/framecol/pkg/compression"
	"github.com/replaystats/framecol/pkg/errors"
	"github.com/replaystats/framecol/pkg/logger"
	"github.com/replaystats/framecol/pkg/replay"
	"github.com/replaystats/framecol/pkg/sink"
)

// Options configures the JSON sink. Rendering choices are explicit per call;
// in particular enum-name rendering is an option here, never process-wide
// state, so two conversions in one process can disagree about it safely.
type Options struct {
	// SourceDigest, when non-zero, is recorded in the document's meta object.
	SourceDigest uint64
	// Codec compresses the whole document. compression.None writes raw JSON.
	Codec compression.Algorithm
	// Level is the compression level; zero means the codec default.
	Level compression.Level
	// EnumNames renders enumerated fields as names instead of numbers:
	// direction as "left"/"right" and l_cancel as its state name.
	EnumNames bool
}

type document struct {
	Meta   meta    `json:"meta"`
	Frames []frame `json:"frames"`
}

type meta struct {
	Ports        int    `json:"ports"`
	Frames       int    `json:"frames"`
	FirstFrame   int32  `json:"first_frame"`
	SourceDigest string `json:"source_digest,omitempty"`
}

type frame struct {
	Index int32      `json:"index"`
	Start *startDoc  `json:"start,omitempty"`
	End   *endDoc    `json:"end,omitempty"`
	Ports []portDoc  `json:"ports"`
	Items []itemDoc  `json:"items,omitempty"`
}

type startDoc struct {
	RandomSeed int32 `json:"random_seed"`
}

type endDoc struct {
	LatestFinalizedFrame int32 `json:"latest_finalized_frame"`
}

type portDoc struct {
	Port     int      `json:"port"`
	Leader   charDoc  `json:"leader"`
	Follower *charDoc `json:"follower,omitempty"`
}

type charDoc struct {
	Pre  map[string]interface{} `json:"pre"`
	Post map[string]interface{} `json:"post"`
}

type itemDoc map[string]interface{}

// Write renders the tree and writes it through the configured codec.
func Write(path string, tree *columns.Tree, opts Options) error {
	comp, err := compression.NewCompressor(&compression.Config{
		Algorithm: codecOrNone(opts.Codec),
		Level:     levelOrDefault(opts.Level),
	})
	if err != nil {
		return err
	}

	doc := render(tree, opts)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, errors.ErrorTypeSink, "encoding json document")
	}

	return sink.WriteAtomic(path, func(f io.Writer) error {
		if err := comp.CompressStream(f, &buf); err != nil {
			return errors.Wrap(err, errors.ErrorTypeSink, "compressing json document")
		}
		logger.Debug("wrote json file",
			zap.String("path", path),
			zap.String("codec", string(comp.Algorithm())),
			zap.Int("frames", tree.NumFrames))
		return nil
	})
}

func codecOrNone(codec compression.Algorithm) compression.Algorithm {
	if codec == "" {
		return compression.None
	}
	return codec
}

func levelOrDefault(level compression.Level) compression.Level {
	if level == 0 {
		return compression.Default
	}
	return level
}

func render(tree *columns.Tree, opts Options) document {
	doc := document{
		Meta: meta{
			Ports:      tree.NumPorts,
			Frames:     tree.NumFrames,
			FirstFrame: replay.FirstFrameIndex,
		},
		Frames: make([]frame, tree.NumFrames),
	}
	if opts.SourceDigest != 0 {
		doc.Meta.SourceDigest = strconv.FormatUint(opts.SourceDigest, 16)
	}

	itemOff := 0
	for f := 0; f < tree.NumFrames; f++ {
		fr := frame{
			Index: replay.FirstFrameIndex + int32(f),
			Ports: make([]portDoc, tree.NumPorts),
		}
		if tree.Depths.HasStart {
			fr.Start = &startDoc{RandomSeed: tree.Start.RandomSeed[f]}
		}
		if tree.Depths.HasEnd && tree.Depths.End >= replay.EndTierV3_7 {
			fr.End = &endDoc{LatestFinalizedFrame: tree.End.LatestFinalizedFrame[f]}
		}

		for p := 0; p < tree.NumPorts; p++ {
			pd := portDoc{
				Port: p,
				Leader: charDoc{
					Pre:  renderPre(tree, &tree.Leader.Pre, p, f, opts),
					Post: renderPost(tree, &tree.Leader.Post, p, f, opts),
				},
			}
			if tree.PortHasFollower(p) {
				pd.Follower = &charDoc{
					Pre:  renderPre(tree, &tree.Follower.Pre, p, f, opts),
					Post: renderPost(tree, &tree.Follower.Post, p, f, opts),
				}
			}
			fr.Ports[p] = pd
		}

		n := tree.Item.Lengths[f]
		for j := 0; j < n; j++ {
			fr.Items = append(fr.Items, renderItem(tree, itemOff+j, opts))
		}
		itemOff += n

		doc.Frames[f] = fr
	}
	return doc
}

func renderPre(tree *columns.Tree, pre *columns.PreColumns, p, f int, opts Options) map[string]interface{} {
	out := map[string]interface{}{
		"position":  xy(pre.PositionX[p][f], pre.PositionY[p][f]),
		"direction": direction(pre.Direction[p][f], opts),
		"joystick":  xy(pre.JoystickX[p][f], pre.JoystickY[p][f]),
		"cstick":    xy(pre.CstickX[p][f], pre.CstickY[p][f]),
		"triggers": map[string]interface{}{
			"physical": map[string]interface{}{
				"l": pre.TriggerL[p][f],
				"r": pre.TriggerR[p][f],
			},
			"logical": pre.TriggerLogical[p][f],
		},
		"random_seed": uint32(pre.RandomSeed[p][f]),
		"buttons": map[string]interface{}{
			"physical": pre.ButtonsPhysical[p][f],
			"logical":  pre.ButtonsLogical[p][f],
		},
		"state": pre.State[p][f],
	}
	if tree.Depths.Pre >= replay.PreTierV1_2 {
		v12 := map[string]interface{}{"raw_analog_x": pre.RawAnalogX[p][f]}
		if tree.Depths.Pre >= replay.PreTierV1_4 {
			v12["v1_4"] = map[string]interface{}{"damage": pre.Damage[p][f]}
		}
		out["v1_2"] = v12
	}
	return out
}

func renderPost(tree *columns.Tree, post *columns.PostColumns, p, f int, opts Options) map[string]interface{} {
	out := map[string]interface{}{
		"position":           xy(post.PositionX[p][f], post.PositionY[p][f]),
		"direction":          direction(post.Direction[p][f], opts),
		"damage":             post.Damage[p][f],
		"shield":             post.Shield[p][f],
		"state":              post.State[p][f],
		"character":          post.Character[p][f],
		"last_attack_landed": post.LastAttackLanded[p][f],
		"combo_count":        post.ComboCount[p][f],
		"last_hit_by":        post.LastHitBy[p][f],
		"stocks":             post.Stocks[p][f],
	}
	d := tree.Depths.Post
	if d < replay.PostTierV0_2 {
		return out
	}
	v02 := map[string]interface{}{"state_age": post.StateAge[p][f]}
	out["v0_2"] = v02
	if d < replay.PostTierV2_0 {
		return out
	}
	v20 := map[string]interface{}{
		"flags":    uint64(post.Flags[p][f]),
		"misc_as":  post.MiscAS[p][f],
		"airborne": post.Airborne[p][f],
		"ground":   post.Ground[p][f],
		"jumps":    post.Jumps[p][f],
		"l_cancel": lcancel(post.LCancel[p][f], opts),
	}
	v02["v2_0"] = v20
	if d < replay.PostTierV2_1 {
		return out
	}
	v21 := map[string]interface{}{"hurtbox_state": post.HurtboxState[p][f]}
	v20["v2_1"] = v21
	if d < replay.PostTierV3_5 {
		return out
	}
	v35 := map[string]interface{}{
		"velocities": map[string]interface{}{
			"autogenous": xy(post.AutogenousX[p][f], post.AutogenousY[p][f]),
			"knockback":  xy(post.KnockbackX[p][f], post.KnockbackY[p][f]),
		},
	}
	v21["v3_5"] = v35
	if d < replay.PostTierV3_8 {
		return out
	}
	v35["v3_8"] = map[string]interface{}{"hitlag": post.Hitlag[p][f]}
	return out
}

func renderItem(tree *columns.Tree, i int, opts Options) itemDoc {
	it := &tree.Item
	out := itemDoc{
		"id":        uint32(it.ID[i]),
		"type":      it.Type[i],
		"state":     it.State[i],
		"direction": direction(it.Direction[i], opts),
		"position":  xy(it.PositionX[i], it.PositionY[i]),
		"velocity":  xy(it.VelocityX[i], it.VelocityY[i]),
		"damage":    it.Damage[i],
		"timer":     it.Timer[i],
	}
	if tree.Depths.Item >= replay.ItemTierV3_2 {
		v32 := map[string]interface{}{"misc": uint32(it.Misc[i])}
		if tree.Depths.Item >= replay.ItemTierV3_6 {
			v32["v3_6"] = map[string]interface{}{"owner": it.Owner[i]}
		}
		out["v3_2"] = v32
	}
	return out
}

func xy(x, y float32) map[string]interface{} {
	return map[string]interface{}{"x": x, "y": y}
}

func direction(facesRight bool, opts Options) interface{} {
	if !opts.EnumNames {
		return facesRight
	}
	if facesRight {
		return "right"
	}
	return "left"
}

func lcancel(state int32, opts Options) interface{} {
	if !opts.EnumNames {
		return state
	}
	switch state {
	case columns.LCancelSuccess:
		return "success"
	case columns.LCancelFailure:
		return "failure"
	default:
		return "unknown"
	}
}
