// Package flatsink writes a populated column tree to a single Arrow IPC file
// of flat arrays, the layout array-oriented analysis tooling loads directly.
//
// Every column has one entry per frame. Per-port leaves become fixed-size
// lists of port-count values; item leaves become fixed-size lists of
// MaxItems slots, dense, with absent slots carrying sentinel values. Version
// tiers do not nest here: a leaf beyond the resolved tier depth simply has no
// column, and a reader discovers the file's protocol era from which columns
// exist. Column names are slash-joined leaf paths prefixed by their group.
package flatsink

import (
	"io"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/replaystats/framecol/pkg/columns"
	"github.com/replaystats/framecol/pkg/compression"
	"github.com/replaystats/framecol/pkg/dremel"
	"github.com/replaystats/framecol/pkg/errors"
	"github.com/replaystats/framecol/pkg/logger"
	"github.com/replaystats/framecol/pkg/replay"
	"github.com/replaystats/framecol/pkg/sink"
)

// AbsentItemID fills the id column of unoccupied item slots. The bit pattern
// is the maximum unsigned 32-bit value; every other column of an unoccupied
// slot is zero.
const AbsentItemID int32 = -1

// Options configures the flat sink. Threaded explicitly into every write
// call; there is no process-wide sink state.
type Options struct {
	// SourceDigest, when non-zero, is recorded in the schema metadata.
	SourceDigest uint64
	// Codec selects the IPC record-body compression. The IPC format supports
	// lz4 and zstd bodies; compression.None leaves bodies raw.
	Codec compression.Algorithm
}

// Write writes the whole tree, items included, as one record batch.
func Write(path string, tree *columns.Tree, opts Options) error {
	ipcOpts, err := codecOptions(opts.Codec)
	if err != nil {
		return err
	}

	mem := memory.NewGoAllocator()
	fields, cols, err := buildColumns(mem, tree)
	if err != nil {
		releaseAll(cols)
		return err
	}
	defer releaseAll(cols)

	md := buildMetadata(tree, opts)
	sc := arrow.NewSchema(fields, &md)
	ipcOpts = append(ipcOpts, ipc.WithSchema(sc), ipc.WithAllocator(mem))

	return sink.WriteAtomic(path, func(f io.Writer) error {
		fw, err := ipc.NewFileWriter(f, ipcOpts...)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeSink, "creating arrow writer")
		}

		rec := array.NewRecord(sc, cols, int64(tree.NumFrames))
		defer rec.Release()

		if err := fw.Write(rec); err != nil {
			fw.Close()
			return errors.Wrap(err, errors.ErrorTypeSink, "writing record batch")
		}
		if err := fw.Close(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeSink, "closing arrow writer")
		}
		logger.Debug("wrote flat array file",
			zap.String("path", path),
			zap.Int("columns", len(cols)),
			zap.Int("frames", tree.NumFrames))
		return nil
	})
}

func codecOptions(codec compression.Algorithm) ([]ipc.Option, error) {
	switch codec {
	case "", compression.None:
		return nil, nil
	case compression.LZ4:
		return []ipc.Option{ipc.WithLZ4()}, nil
	case compression.Zstd:
		return []ipc.Option{ipc.WithZstd()}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"compression %q not supported by the arrow ipc format", codec)
	}
}

func buildMetadata(tree *columns.Tree, opts Options) arrow.Metadata {
	keys := []string{"ports", "frames", "max_items", "first_frame"}
	vals := []string{
		strconv.Itoa(tree.NumPorts),
		strconv.Itoa(tree.NumFrames),
		strconv.Itoa(replay.MaxItems),
		strconv.FormatInt(int64(replay.FirstFrameIndex), 10),
	}
	if opts.SourceDigest != 0 {
		keys = append(keys, "source_digest")
		vals = append(vals, strconv.FormatUint(opts.SourceDigest, 16))
	}
	return arrow.NewMetadata(keys, vals)
}

func buildColumns(mem memory.Allocator, tree *columns.Tree) ([]arrow.Field, []arrow.Array, error) {
	var fields []arrow.Field
	var cols []arrow.Array

	add := func(name string, arr arrow.Array) {
		fields = append(fields, arrow.Field{Name: name, Type: arr.DataType()})
		cols = append(cols, arr)
	}

	add("index", int32Array(mem, tree.FrameIndexes()))
	if tree.Depths.HasStart {
		add("start/random_seed", int32Array(mem, tree.Start.RandomSeed))
	}
	if tree.Depths.HasEnd && tree.Depths.End >= replay.EndTierV3_7 {
		add("end/latest_finalized_frame", int32Array(mem, tree.End.LatestFinalizedFrame))
	}

	if err := addPortColumns(mem, tree, &tree.Leader, "leader", add); err != nil {
		return fields, cols, err
	}
	if anyFollower(tree) {
		if err := addPortColumns(mem, tree, &tree.Follower, "follower", add); err != nil {
			return fields, cols, err
		}
	}

	if err := addItemColumns(mem, tree, add); err != nil {
		return fields, cols, err
	}
	return fields, cols, nil
}

func anyFollower(tree *columns.Tree) bool {
	for p := 0; p < tree.NumPorts; p++ {
		if tree.PortHasFollower(p) {
			return true
		}
	}
	return false
}

// addPortColumns emits one fixed-size-list column per leaf, interleaving the
// per-port value slices frame-major so entry f holds the values of every port
// at frame f. The leaf walk shares ordering and paths with the nested sink;
// the row-group bookkeeping leaves it opens with are skipped here.
func addPortColumns(mem memory.Allocator, tree *columns.Tree, src *columns.PortColumns, prefix string, add func(string, arrow.Array)) error {
	perPort := make([][]dremel.Leaf, tree.NumPorts)
	for p := 0; p < tree.NumPorts; p++ {
		leaves, err := dremel.PortLeaves(tree, src, p, prefix == "follower")
		if err != nil {
			return err
		}
		perPort[p] = leaves
	}

	for li := range perPort[0] {
		leaf := &perPort[0][li]
		if len(leaf.Path) == 1 {
			// index, port, is_follower
			continue
		}
		name := prefix + "/" + joinPath(leaf.Path)
		ports := make([]*dremel.Leaf, tree.NumPorts)
		for p := range perPort {
			ports[p] = &perPort[p][li]
		}
		arr, err := portListArray(mem, ports, tree.NumFrames)
		if err != nil {
			return err
		}
		add(name, arr)
	}
	return nil
}

func joinPath(path []string) string {
	out := path[0]
	for _, seg := range path[1:] {
		out += "/" + seg
	}
	return out
}

func portListArray(mem memory.Allocator, ports []*dremel.Leaf, frames int) (arrow.Array, error) {
	b := array.NewFixedSizeListBuilder(mem, int32(len(ports)), leafType(ports[0].Type))
	defer b.Release()

	switch ports[0].Type {
	case dremel.TypeBool:
		vb := b.ValueBuilder().(*array.BooleanBuilder)
		for f := 0; f < frames; f++ {
			b.Append(true)
			for _, leaf := range ports {
				vb.Append(leaf.Bools[f])
			}
		}
	case dremel.TypeInt32:
		vb := b.ValueBuilder().(*array.Int32Builder)
		for f := 0; f < frames; f++ {
			b.Append(true)
			for _, leaf := range ports {
				vb.Append(leaf.Int32s[f])
			}
		}
	case dremel.TypeInt64:
		vb := b.ValueBuilder().(*array.Int64Builder)
		for f := 0; f < frames; f++ {
			b.Append(true)
			for _, leaf := range ports {
				vb.Append(leaf.Int64s[f])
			}
		}
	case dremel.TypeFloat32:
		vb := b.ValueBuilder().(*array.Float32Builder)
		for f := 0; f < frames; f++ {
			b.Append(true)
			for _, leaf := range ports {
				vb.Append(leaf.Float32s[f])
			}
		}
	default:
		return nil, errors.Newf(errors.ErrorTypeInternal, "unknown leaf type %d", ports[0].Type)
	}
	return b.NewArray(), nil
}

func leafType(t dremel.Type) arrow.DataType {
	switch t {
	case dremel.TypeBool:
		return arrow.FixedWidthTypes.Boolean
	case dremel.TypeInt32:
		return arrow.PrimitiveTypes.Int32
	case dremel.TypeInt64:
		return arrow.PrimitiveTypes.Int64
	default:
		return arrow.PrimitiveTypes.Float32
	}
}

// addItemColumns emits the item grid: every column is a fixed-size list of
// MaxItems slots per frame, occupied slots first, the rest sentinel-filled.
func addItemColumns(mem memory.Allocator, tree *columns.Tree, add func(string, arrow.Array)) error {
	it := &tree.Item
	for f, n := range it.Lengths {
		if n > replay.MaxItems {
			return errors.Newf(errors.ErrorTypePrecondition,
				"frame %d carries %d items, limit is %d", f, n, replay.MaxItems)
		}
	}

	add("item/id", itemI32(mem, it.Lengths, it.ID, AbsentItemID))
	add("item/type", itemI32(mem, it.Lengths, it.Type, 0))
	add("item/state", itemI32(mem, it.Lengths, it.State, 0))
	add("item/direction", itemBool(mem, it.Lengths, it.Direction))
	add("item/position/x", itemF32(mem, it.Lengths, it.PositionX))
	add("item/position/y", itemF32(mem, it.Lengths, it.PositionY))
	add("item/velocity/x", itemF32(mem, it.Lengths, it.VelocityX))
	add("item/velocity/y", itemF32(mem, it.Lengths, it.VelocityY))
	add("item/damage", itemI32(mem, it.Lengths, it.Damage, 0))
	add("item/timer", itemF32(mem, it.Lengths, it.Timer))

	if tree.Depths.Item >= replay.ItemTierV3_2 {
		add("item/v3_2/misc", itemI32(mem, it.Lengths, it.Misc, 0))
		if tree.Depths.Item >= replay.ItemTierV3_6 {
			add("item/v3_2/v3_6/owner", itemI32(mem, it.Lengths, it.Owner, columns.AbsentPort))
		}
	}
	return nil
}

func itemI32(mem memory.Allocator, lengths []int, vals []int32, absent int32) arrow.Array {
	b := array.NewFixedSizeListBuilder(mem, replay.MaxItems, arrow.PrimitiveTypes.Int32)
	defer b.Release()
	vb := b.ValueBuilder().(*array.Int32Builder)

	off := 0
	for _, n := range lengths {
		b.Append(true)
		for j := 0; j < replay.MaxItems; j++ {
			if j < n {
				vb.Append(vals[off+j])
			} else {
				vb.Append(absent)
			}
		}
		off += n
	}
	return b.NewArray()
}

func itemF32(mem memory.Allocator, lengths []int, vals []float32) arrow.Array {
	b := array.NewFixedSizeListBuilder(mem, replay.MaxItems, arrow.PrimitiveTypes.Float32)
	defer b.Release()
	vb := b.ValueBuilder().(*array.Float32Builder)

	off := 0
	for _, n := range lengths {
		b.Append(true)
		for j := 0; j < replay.MaxItems; j++ {
			if j < n {
				vb.Append(vals[off+j])
			} else {
				vb.Append(0)
			}
		}
		off += n
	}
	return b.NewArray()
}

func itemBool(mem memory.Allocator, lengths []int, vals []bool) arrow.Array {
	b := array.NewFixedSizeListBuilder(mem, replay.MaxItems, arrow.FixedWidthTypes.Boolean)
	defer b.Release()
	vb := b.ValueBuilder().(*array.BooleanBuilder)

	off := 0
	for _, n := range lengths {
		b.Append(true)
		for j := 0; j < replay.MaxItems; j++ {
			if j < n {
				vb.Append(vals[off+j])
			} else {
				vb.Append(false)
			}
		}
		off += n
	}
	return b.NewArray()
}

func int32Array(mem memory.Allocator, vals []int32) arrow.Array {
	b := array.NewInt32Builder(mem)
	defer b.Release()
	b.AppendValues(vals, nil)
	return b.NewArray()
}

func releaseAll(cols []arrow.Array) {
	for _, c := range cols {
		if c != nil {
			c.Release()
		}
	}
}
