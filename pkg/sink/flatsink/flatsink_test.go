package flatsink_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replaystats/framecol/pkg/columns"
	"github.com/replaystats/framecol/pkg/compression"
	"github.com/replaystats/framecol/pkg/replay"
	"github.com/replaystats/framecol/pkg/sink/flatsink"
	"github.com/replaystats/framecol/pkg/testutil"
)

func buildTree(t *testing.T, opts testutil.BatchOptions) *columns.Tree {
	t.Helper()
	frames := testutil.NewBatch(opts)
	depths, err := replay.Resolve(frames)
	require.NoError(t, err)
	tree, err := columns.Transform(frames, depths)
	require.NoError(t, err)
	return tree
}

func readFile(t *testing.T, path string) (*arrow.Schema, arrow.Record) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	r, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(memory.NewGoAllocator()))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	require.Equal(t, 1, r.NumRecords())
	rec, err := r.Record(0)
	require.NoError(t, err)
	return r.Schema(), rec
}

func column(t *testing.T, sc *arrow.Schema, rec arrow.Record, name string) arrow.Array {
	t.Helper()
	indices := sc.FieldIndices(name)
	require.Len(t, indices, 1, "column %s", name)
	return rec.Column(indices[0])
}

func fslFloat32(t *testing.T, arr arrow.Array) []float32 {
	t.Helper()
	fsl, ok := arr.(*array.FixedSizeList)
	require.True(t, ok)
	return fsl.ListValues().(*array.Float32).Float32Values()
}

func fslInt32(t *testing.T, arr arrow.Array) []int32 {
	t.Helper()
	fsl, ok := arr.(*array.FixedSizeList)
	require.True(t, ok)
	return fsl.ListValues().(*array.Int32).Int32Values()
}

func TestWriteLayout(t *testing.T) {
	tree := buildTree(t, testutil.BatchOptions{
		Ports:     2,
		Frames:    3,
		WithStart: true,
	})
	path := filepath.Join(t.TempDir(), "frames.arrow")

	require.NoError(t, flatsink.Write(path, tree, flatsink.Options{SourceDigest: 0xfeed}))

	sc, rec := readFile(t, path)
	assert.Equal(t, int64(3), rec.NumRows())

	// Schema metadata carries the grid dimensions and digest.
	md := sc.Metadata()
	assert.Equal(t, "2", mdValue(t, md, "ports"))
	assert.Equal(t, "3", mdValue(t, md, "frames"))
	assert.Equal(t, "16", mdValue(t, md, "max_items"))
	assert.Equal(t, "-123", mdValue(t, md, "first_frame"))
	assert.Equal(t, "feed", mdValue(t, md, "source_digest"))

	idx := column(t, sc, rec, "index").(*array.Int32)
	assert.Equal(t, []int32{-123, -122, -121}, idx.Int32Values())

	seeds := column(t, sc, rec, "start/random_seed").(*array.Int32)
	assert.Equal(t, []int32{1000, 1001, 1002}, seeds.Int32Values())

	// Per-port columns interleave frame-major: entry f holds every port's
	// value at frame f.
	posX := fslFloat32(t, column(t, sc, rec, "leader/pre/position/x"))
	require.Len(t, posX, 6)
	for f := 0; f < 3; f++ {
		for p := 0; p < 2; p++ {
			assert.Equal(t, float32(p*1000+f)+0.25, posX[f*2+p])
		}
	}

	// No paired characters, no follower columns.
	assert.Empty(t, sc.FieldIndices("follower/pre/position/x"))
	// Base item tier, no tier columns.
	assert.Empty(t, sc.FieldIndices("item/v3_2/misc"))
}

func TestWriteFollowerColumns(t *testing.T) {
	tree := buildTree(t, testutil.BatchOptions{
		Ports:         2,
		Frames:        2,
		FollowerPorts: []int{1},
	})
	path := filepath.Join(t.TempDir(), "frames.arrow")

	require.NoError(t, flatsink.Write(path, tree, flatsink.Options{}))

	sc, rec := readFile(t, path)
	chars := fslInt32(t, column(t, sc, rec, "follower/post/character"))
	// Port 0 has no follower; its slots stay zero.
	assert.Equal(t, []int32{0, int32(replay.CharPairedFollower), 0, int32(replay.CharPairedFollower)}, chars)
}

func TestWriteItemGridSentinels(t *testing.T) {
	tree := buildTree(t, testutil.BatchOptions{
		Ports:         1,
		Frames:        2,
		ItemDepth:     replay.ItemTierV3_6,
		ItemsPerFrame: []int{2, 0},
	})
	path := filepath.Join(t.TempDir(), "frames.arrow")

	require.NoError(t, flatsink.Write(path, tree, flatsink.Options{}))

	sc, rec := readFile(t, path)

	ids := fslInt32(t, column(t, sc, rec, "item/id"))
	require.Len(t, ids, 2*replay.MaxItems)
	assert.Equal(t, int32(0), ids[0])
	assert.Equal(t, int32(1), ids[1])
	for j := 2; j < 2*replay.MaxItems; j++ {
		assert.Equal(t, flatsink.AbsentItemID, ids[j], "slot %d", j)
	}

	owners := fslInt32(t, column(t, sc, rec, "item/v3_2/v3_6/owner"))
	assert.Equal(t, int32(0), owners[0])
	assert.Equal(t, int32(1), owners[1])
	for j := 2; j < 2*replay.MaxItems; j++ {
		assert.Equal(t, columns.AbsentPort, owners[j], "slot %d", j)
	}

	timers := fslFloat32(t, column(t, sc, rec, "item/timer"))
	assert.Equal(t, float32(120), timers[0])
	assert.Equal(t, float32(0), timers[2])
}

func TestWriteItemOverflow(t *testing.T) {
	tree := buildTree(t, testutil.BatchOptions{Ports: 1, Frames: 1})
	tree.Item.Lengths[0] = replay.MaxItems + 1

	err := flatsink.Write(filepath.Join(t.TempDir(), "frames.arrow"), tree, flatsink.Options{})
	assert.Error(t, err)
}

func TestWriteCompressedBodies(t *testing.T) {
	tree := buildTree(t, testutil.BatchOptions{Ports: 2, Frames: 64})

	for _, codec := range []compression.Algorithm{compression.None, compression.LZ4, compression.Zstd} {
		path := filepath.Join(t.TempDir(), "frames.arrow")
		require.NoError(t, flatsink.Write(path, tree, flatsink.Options{Codec: codec}), "codec %s", codec)

		sc, rec := readFile(t, path)
		assert.Equal(t, int64(64), rec.NumRows(), "codec %s", codec)
		idx := column(t, sc, rec, "index").(*array.Int32)
		assert.Equal(t, int32(-123), idx.Value(0), "codec %s", codec)
	}
}

func TestWriteGzipRejected(t *testing.T) {
	tree := buildTree(t, testutil.BatchOptions{Ports: 1, Frames: 1})
	err := flatsink.Write(filepath.Join(t.TempDir(), "frames.arrow"), tree, flatsink.Options{
		Codec: compression.Gzip,
	})
	assert.Error(t, err)
}

func mdValue(t *testing.T, md arrow.Metadata, key string) string {
	t.Helper()
	i := md.FindKey(key)
	require.GreaterOrEqual(t, i, 0, "metadata key %s", key)
	return md.Values()[i]
}
