package columns_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replaystats/framecol/pkg/columns"
	"github.com/replaystats/framecol/pkg/errors"
	"github.com/replaystats/framecol/pkg/replay"
	"github.com/replaystats/framecol/pkg/testutil"
)

func transform(t *testing.T, frames []replay.Frame) *columns.Tree {
	t.Helper()
	depths, err := replay.Resolve(frames)
	require.NoError(t, err)
	tree, err := columns.Transform(frames, depths)
	require.NoError(t, err)
	return tree
}

func TestTransformEmptyBatch(t *testing.T) {
	_, err := columns.Transform(nil, replay.TierDepths{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePrecondition))
}

func TestTransformDirection(t *testing.T) {
	frames := testutil.NewBatch(testutil.BatchOptions{Ports: 1, Frames: 3})
	frames[0].Ports[0].Leader.Pre.Direction = -1
	frames[1].Ports[0].Leader.Pre.Direction = 0
	frames[2].Ports[0].Leader.Pre.Direction = 1

	tree := transform(t, frames)

	// Negative faces left; zero and positive face right.
	assert.Equal(t, []bool{false, true, true}, tree.Leader.Pre.Direction[0])
}

func TestTransformAbsentSentinels(t *testing.T) {
	frames := testutil.NewBatch(testutil.BatchOptions{Ports: 1, Frames: 2})
	frames[0].Ports[0].Leader.Post.LastAttackLanded = nil
	frames[0].Ports[0].Leader.Post.LastHitBy = nil
	frames[1].Ports[0].Leader.Post.LastAttackLanded = testutil.Ptr(uint8(17))
	frames[1].Ports[0].Leader.Post.LastHitBy = testutil.Ptr(uint8(2))

	tree := transform(t, frames)

	post := &tree.Leader.Post
	assert.Equal(t, columns.AbsentAttackLanded, post.LastAttackLanded[0][0])
	assert.Equal(t, columns.AbsentPort, post.LastHitBy[0][0])
	assert.Equal(t, int32(math.MaxUint8), post.LastHitBy[0][0])
	assert.Equal(t, int32(17), post.LastAttackLanded[0][1])
	assert.Equal(t, int32(2), post.LastHitBy[0][1])
}

func TestTransformLCancelTriState(t *testing.T) {
	frames := testutil.NewBatch(testutil.BatchOptions{
		Ports:     1,
		Frames:    3,
		PostDepth: replay.PostTierV2_0,
	})
	v20 := func(f int) *replay.PostV2_0 {
		return frames[f].Ports[0].Leader.Post.V0_2.V2_0
	}
	v20(0).LCancel = nil
	v20(1).LCancel = testutil.Ptr(true)
	v20(2).LCancel = testutil.Ptr(false)

	tree := transform(t, frames)

	lc := tree.Leader.Post.LCancel[0]
	assert.Equal(t, columns.LCancelUnknown, lc[0])
	assert.Equal(t, columns.LCancelSuccess, lc[1])
	assert.Equal(t, columns.LCancelFailure, lc[2])
}

func TestTransformItemMiscBytes(t *testing.T) {
	frames := testutil.NewBatch(testutil.BatchOptions{
		Ports:         1,
		Frames:        2,
		ItemDepth:     replay.ItemTierV3_2,
		ItemsPerFrame: []int{1, 1},
	})
	frames[0].Items[0].V3_2.Misc = [4]byte{0x01, 0x00, 0x00, 0x00}
	frames[1].Items[0].V3_2.Misc = [4]byte{0xFF, 0xFF, 0xFF, 0xFF}

	tree := transform(t, frames)

	// Little-endian reinterpretation of the raw bytes.
	assert.Equal(t, int32(1), tree.Item.Misc[0])
	assert.Equal(t, int32(-1), tree.Item.Misc[1])
	assert.Equal(t, uint32(math.MaxUint32), uint32(tree.Item.Misc[1]))
}

func TestTransformItemOwnerSentinel(t *testing.T) {
	frames := testutil.NewBatch(testutil.BatchOptions{
		Ports:         1,
		Frames:        1,
		ItemDepth:     replay.ItemTierV3_6,
		ItemsPerFrame: []int{2},
	})
	frames[0].Items[0].V3_2.V3_6.Owner = nil
	frames[0].Items[1].V3_2.V3_6.Owner = testutil.Ptr(uint8(3))

	tree := transform(t, frames)

	assert.Equal(t, columns.AbsentPort, tree.Item.Owner[0])
	assert.Equal(t, int32(3), tree.Item.Owner[1])
}

func TestTransformItemLengths(t *testing.T) {
	frames := testutil.NewBatch(testutil.BatchOptions{
		Ports:         1,
		Frames:        4,
		ItemsPerFrame: []int{2, 0, 3, 0},
	})

	tree := transform(t, frames)

	assert.Equal(t, []int{2, 0, 3, 0}, tree.Item.Lengths)
	assert.Len(t, tree.Item.ID, 5)
	// Items carry their frame's wire index.
	assert.Equal(t, []int32{-123, -123, -121, -121, -121}, tree.Item.FrameIndex)
}

func TestTransformFollower(t *testing.T) {
	frames := testutil.NewBatch(testutil.BatchOptions{
		Ports:         2,
		Frames:        2,
		FollowerPorts: []int{0},
	})

	tree := transform(t, frames)

	assert.True(t, tree.PortHasFollower(0))
	assert.False(t, tree.PortHasFollower(1))
	assert.Equal(t, int32(replay.CharPairedLeader), tree.Leader.Post.Character[0][0])
	assert.Equal(t, int32(replay.CharPairedFollower), tree.Follower.Post.Character[0][0])
	// Follower columns for unpaired ports stay zero-valued and unread.
	assert.Equal(t, int32(0), tree.Follower.Post.Character[1][0])
}

func TestTransformStartAndEnd(t *testing.T) {
	frames := testutil.NewBatch(testutil.BatchOptions{
		Ports:     1,
		Frames:    3,
		EndDepth:  replay.EndTierV3_7,
		WithStart: true,
		WithEnd:   true,
	})

	tree := transform(t, frames)

	assert.Equal(t, []int32{1000, 1001, 1002}, tree.Start.RandomSeed)
	assert.Equal(t, []int32{-123, -122, -121}, tree.End.LatestFinalizedFrame)
}

func TestTransformTierMismatch(t *testing.T) {
	// Frame zero resolves the v1.2 tier present; a later shallower frame is a
	// structural violation that aborts the conversion.
	frames := testutil.NewBatch(testutil.BatchOptions{
		Ports:    1,
		Frames:   3,
		PreDepth: replay.PreTierV1_2,
	})
	frames[2].Ports[0].Leader.Pre.V1_2 = nil

	depths, err := replay.Resolve(frames)
	require.NoError(t, err)

	_, err = columns.Transform(frames, depths)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePrecondition))
}

func TestTransformDeeperFrameIgnored(t *testing.T) {
	// The opposite direction is tolerated: fields below the resolved depth
	// are ignored, not an error.
	frames := testutil.NewBatch(testutil.BatchOptions{Ports: 1, Frames: 2})
	frames[1].Ports[0].Leader.Pre.V1_2 = &replay.PreV1_2{RawAnalogX: 99}

	depths, err := replay.Resolve(frames)
	require.NoError(t, err)
	require.Equal(t, replay.PreTierBase, depths.Pre)

	tree, err := columns.Transform(frames, depths)
	require.NoError(t, err)
	assert.Equal(t, int32(0), tree.Leader.Pre.RawAnalogX[0][1])
}

func TestTransformPortCountMismatch(t *testing.T) {
	frames := testutil.NewBatch(testutil.BatchOptions{Ports: 2, Frames: 2})
	frames[1].Ports = frames[1].Ports[:1]

	depths, err := replay.Resolve(frames)
	require.NoError(t, err)

	_, err = columns.Transform(frames, depths)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePrecondition))
}

func TestFrameIndexes(t *testing.T) {
	tree := transform(t, testutil.NewBatch(testutil.BatchOptions{Ports: 1, Frames: 3}))
	assert.Equal(t, []int32{-123, -122, -121}, tree.FrameIndexes())
}
