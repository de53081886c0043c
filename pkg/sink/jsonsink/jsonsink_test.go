package jsonsink_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replaystats/framecol/pkg/columns"
	"github.com/replaystats/framecol/pkg/compression"
	"github.com/replaystats/framecol/pkg/replay"
	"github.com/replaystats/framecol/pkg/sink/jsonsink"
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

type doc struct {
	Meta struct {
		Ports        int    `json:"ports"`
		Frames       int    `json:"frames"`
		FirstFrame   int32  `json:"first_frame"`
		SourceDigest string `json:"source_digest"`
	} `json:"meta"`
	Frames []map[string]interface{} `json:"frames"`
}

func writeAndDecode(t *testing.T, tree *columns.Tree, opts jsonsink.Options) doc {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frames.json")
	require.NoError(t, jsonsink.Write(path, tree, opts))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	if opts.Codec != "" && opts.Codec != compression.None {
		comp, err := compression.NewCompressor(&compression.Config{
			Algorithm: opts.Codec,
			Level:     compression.Default,
		})
		require.NoError(t, err)
		data, err = comp.Decompress(data)
		require.NoError(t, err)
	}

	var d doc
	require.NoError(t, json.Unmarshal(data, &d))
	return d
}

func TestWriteDocumentShape(t *testing.T) {
	tree := buildTree(t, testutil.BatchOptions{
		Ports:         2,
		Frames:        3,
		PostDepth:     replay.PostTierV0_2,
		WithStart:     true,
		ItemsPerFrame: []int{1, 0, 0},
	})

	d := writeAndDecode(t, tree, jsonsink.Options{SourceDigest: 0xbeef})

	assert.Equal(t, 2, d.Meta.Ports)
	assert.Equal(t, 3, d.Meta.Frames)
	assert.Equal(t, int32(-123), d.Meta.FirstFrame)
	assert.Equal(t, "beef", d.Meta.SourceDigest)
	require.Len(t, d.Frames, 3)

	first := d.Frames[0]
	assert.Equal(t, float64(-123), first["index"])
	require.Contains(t, first, "start")
	assert.NotContains(t, d.Frames[1], "items")

	ports := first["ports"].([]interface{})
	require.Len(t, ports, 2)
	leader := ports[0].(map[string]interface{})["leader"].(map[string]interface{})
	post := leader["post"].(map[string]interface{})
	require.Contains(t, post, "v0_2")
	assert.NotContains(t, post["v0_2"].(map[string]interface{}), "v2_0")
}

func TestWriteEnumNames(t *testing.T) {
	tree := buildTree(t, testutil.BatchOptions{
		Ports:     1,
		Frames:    2,
		PostDepth: replay.PostTierV2_0,
	})

	numeric := writeAndDecode(t, tree, jsonsink.Options{})
	named := writeAndDecode(t, tree, jsonsink.Options{EnumNames: true})

	dir := func(d doc, f int) interface{} {
		ports := d.Frames[f]["ports"].([]interface{})
		leader := ports[0].(map[string]interface{})["leader"].(map[string]interface{})
		return leader["pre"].(map[string]interface{})["direction"]
	}

	// Frame 0 faces right, frame 1 faces left in the synthetic batch.
	assert.Equal(t, true, dir(numeric, 0))
	assert.Equal(t, false, dir(numeric, 1))
	assert.Equal(t, "right", dir(named, 0))
	assert.Equal(t, "left", dir(named, 1))

	lc := func(d doc, f int) interface{} {
		ports := d.Frames[f]["ports"].([]interface{})
		leader := ports[0].(map[string]interface{})["leader"].(map[string]interface{})
		post := leader["post"].(map[string]interface{})
		v20 := post["v0_2"].(map[string]interface{})["v2_0"].(map[string]interface{})
		return v20["l_cancel"]
	}
	// Frame 0 attempts and succeeds; frame 1 has no attempt.
	assert.Equal(t, float64(columns.LCancelSuccess), lc(numeric, 0))
	assert.Equal(t, "success", lc(named, 0))
	assert.Equal(t, "unknown", lc(named, 1))
}

func TestWriteFollowerRendered(t *testing.T) {
	tree := buildTree(t, testutil.BatchOptions{
		Ports:         2,
		Frames:        1,
		FollowerPorts: []int{0},
	})

	d := writeAndDecode(t, tree, jsonsink.Options{})
	ports := d.Frames[0]["ports"].([]interface{})
	assert.Contains(t, ports[0].(map[string]interface{}), "follower")
	assert.NotContains(t, ports[1].(map[string]interface{}), "follower")
}

func TestWriteCompressed(t *testing.T) {
	tree := buildTree(t, testutil.BatchOptions{Ports: 1, Frames: 8})

	for _, codec := range []compression.Algorithm{compression.Gzip, compression.LZ4, compression.Zstd} {
		d := writeAndDecode(t, tree, jsonsink.Options{Codec: codec})
		assert.Len(t, d.Frames, 8, "codec %s", codec)
	}
}
