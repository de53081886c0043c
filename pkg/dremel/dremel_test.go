package dremel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replaystats/framecol/pkg/columns"
	"github.com/replaystats/framecol/pkg/dremel"
	"github.com/replaystats/framecol/pkg/replay"
	"github.com/replaystats/framecol/pkg/testutil"
)

func TestConstLevels(t *testing.T) {
	assert.Nil(t, dremel.ConstLevels(5, 0))
	assert.Equal(t, []int16{2, 2, 2}, dremel.ConstLevels(3, 2))
}

func TestListLevels(t *testing.T) {
	def, rep := dremel.ListLevels([]int{2, 0, 1}, 1)

	// Two entries for frame 0, a placeholder for empty frame 1, one for
	// frame 2. Placeholders carry definition level 0 and no value.
	assert.Equal(t, []int16{1, 1, 0, 1}, def)
	assert.Equal(t, []int16{0, 1, 0, 0}, rep)
}

func TestListLevelsAllEmpty(t *testing.T) {
	def, rep := dremel.ListLevels([]int{0, 0}, 3)
	assert.Equal(t, []int16{0, 0}, def)
	assert.Equal(t, []int16{0, 0}, rep)
}

func TestDecodeListLengthsRoundTrip(t *testing.T) {
	cases := [][]int{
		{0, 0, 0},
		{1},
		{3, 0, 2, 0, 0, 4},
		{16, 16},
	}
	for _, lengths := range cases {
		def, rep := dremel.ListLevels(lengths, 2)
		got, err := dremel.DecodeListLengths(def, rep)
		require.NoError(t, err)
		assert.Equal(t, lengths, got)
	}
}

func TestDecodeListLengthsMismatched(t *testing.T) {
	_, err := dremel.DecodeListLengths([]int16{1}, []int16{0, 1})
	assert.Error(t, err)

	_, err = dremel.DecodeListLengths([]int16{1}, []int16{1})
	assert.Error(t, err)
}

func buildTree(t *testing.T, opts testutil.BatchOptions) *columns.Tree {
	t.Helper()
	frames := testutil.NewBatch(opts)
	depths, err := replay.Resolve(frames)
	require.NoError(t, err)
	tree, err := columns.Transform(frames, depths)
	require.NoError(t, err)
	return tree
}

func leafByPath(leaves []dremel.Leaf, path ...string) *dremel.Leaf {
	for i := range leaves {
		if len(leaves[i].Path) != len(path) {
			continue
		}
		match := true
		for j := range path {
			if leaves[i].Path[j] != path[j] {
				match = false
				break
			}
		}
		if match {
			return &leaves[i]
		}
	}
	return nil
}

func TestPortLeavesBaseTier(t *testing.T) {
	tree := buildTree(t, testutil.BatchOptions{Ports: 2, Frames: 3})

	leaves, err := dremel.PortLeaves(tree, &tree.Leader, 1, false)
	require.NoError(t, err)

	// 3 bookkeeping + 14 pre + 11 post, no tier leaves.
	assert.Len(t, leaves, 28)

	idx := leafByPath(leaves, "index")
	require.NotNil(t, idx)
	assert.Equal(t, []int32{-123, -122, -121}, idx.Int32s)
	assert.Nil(t, idx.DefLevels)

	port := leafByPath(leaves, "port")
	require.NotNil(t, port)
	assert.Equal(t, []int32{1, 1, 1}, port.Int32s)

	assert.Nil(t, leafByPath(leaves, "pre", "v1_2", "raw_analog_x"))
	assert.Nil(t, leafByPath(leaves, "post", "v0_2", "state_age"))
}

func TestPortLeavesTierDefLevels(t *testing.T) {
	tree := buildTree(t, testutil.BatchOptions{
		Ports:     1,
		Frames:    2,
		PreDepth:  replay.PreTierV1_4,
		PostDepth: replay.PostTierV3_8,
	})

	leaves, err := dremel.PortLeaves(tree, &tree.Leader, 0, false)
	require.NoError(t, err)

	// Each tier leaf's constant definition level is its optional depth.
	for _, tc := range []struct {
		path []string
		def  int16
	}{
		{[]string{"pre", "v1_2", "raw_analog_x"}, 1},
		{[]string{"pre", "v1_2", "v1_4", "damage"}, 2},
		{[]string{"post", "v0_2", "state_age"}, 1},
		{[]string{"post", "v0_2", "v2_0", "l_cancel"}, 2},
		{[]string{"post", "v0_2", "v2_0", "v2_1", "hurtbox_state"}, 3},
		{[]string{"post", "v0_2", "v2_0", "v2_1", "v3_5", "velocities", "knockback", "y"}, 4},
		{[]string{"post", "v0_2", "v2_0", "v2_1", "v3_5", "v3_8", "hitlag"}, 5},
	} {
		leaf := leafByPath(leaves, tc.path...)
		require.NotNil(t, leaf, "missing leaf %v", tc.path)
		assert.Equal(t, tc.def, leaf.MaxDef, "leaf %v", tc.path)
		assert.Equal(t, dremel.ConstLevels(2, tc.def), leaf.DefLevels, "leaf %v", tc.path)
	}
}

func TestPortLeavesPortOutOfRange(t *testing.T) {
	tree := buildTree(t, testutil.BatchOptions{Ports: 1, Frames: 1})
	_, err := dremel.PortLeaves(tree, &tree.Leader, 1, false)
	assert.Error(t, err)
}

func TestItemLeaves(t *testing.T) {
	tree := buildTree(t, testutil.BatchOptions{
		Ports:         1,
		Frames:        3,
		ItemDepth:     replay.ItemTierV3_6,
		ItemsPerFrame: []int{2, 0, 1},
	})

	leaves, err := dremel.ItemLeaves(tree)
	require.NoError(t, err)

	idx := leafByPath(leaves, "index")
	require.NotNil(t, idx)
	assert.Equal(t, []int32{-123, -122, -121}, idx.Int32s)

	id := leafByPath(leaves, "item", "id")
	require.NotNil(t, id)
	assert.Equal(t, int16(1), id.MaxDef)
	assert.Equal(t, int16(1), id.MaxRep)
	assert.Equal(t, []int16{1, 1, 0, 1}, id.DefLevels)
	assert.Equal(t, []int16{0, 1, 0, 0}, id.RepLevels)
	assert.Len(t, id.Int32s, 3)

	// Item tier wrappers deepen the definition level past the list itself.
	misc := leafByPath(leaves, "item", "v3_2", "misc")
	require.NotNil(t, misc)
	assert.Equal(t, int16(2), misc.MaxDef)

	owner := leafByPath(leaves, "item", "v3_2", "v3_6", "owner")
	require.NotNil(t, owner)
	assert.Equal(t, int16(3), owner.MaxDef)
	assert.Equal(t, []int16{3, 3, 0, 3}, owner.DefLevels)

	// Level row count matches the frame count plus continuation entries.
	lengths, err := dremel.DecodeListLengths(owner.DefLevels, owner.RepLevels)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 1}, lengths)
}

func TestItemLeavesContradictoryDepths(t *testing.T) {
	tree := buildTree(t, testutil.BatchOptions{Ports: 1, Frames: 1})
	tree.Depths.Item = replay.ItemTierV3_2
	tree.Depths.HasItems = false

	_, err := dremel.ItemLeaves(tree)
	assert.Error(t, err)
}
