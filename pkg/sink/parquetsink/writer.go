package parquetsink

import (
	"io"
	"strconv"

	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"go.uber.org/zap"

	"github.com/replaystats/framecol/pkg/columns"
	"github.com/replaystats/framecol/pkg/dremel"
	"github.com/replaystats/framecol/pkg/errors"
	"github.com/replaystats/framecol/pkg/logger"
	"github.com/replaystats/framecol/pkg/sink"
)

// Options configures the parquet sink. Threaded explicitly into every write
// call; there is no process-wide sink state.
type Options struct {
	// SourceDigest, when non-zero, is recorded as file key-value metadata.
	SourceDigest uint64
}

// createdBy identifies this writer in the parquet file footer.
const createdBy = "framecol"

// writerProps returns the fixed writer properties: plain encoding, no
// dictionary, uncompressed, format v2. Analytics consumers re-compress on
// their own terms.
func writerProps() *parquet.WriterProperties {
	return parquet.NewWriterProperties(
		parquet.WithVersion(parquet.V2_LATEST),
		parquet.WithDictionaryDefault(false),
		parquet.WithEncoding(parquet.Encodings.Plain),
		parquet.WithCompression(compress.Codecs.Uncompressed),
		parquet.WithCreatedBy(createdBy),
	)
}

// WriteFrames writes the frames file: one leader row group per occupied
// port, then one follower row group per port whose frame-zero resident
// character is a paired-character identifier. The file is written to a
// temporary path and renamed into place only on success.
func WriteFrames(path string, tree *columns.Tree, opts Options) error {
	sc, err := FrameSchema(tree.Depths)
	if err != nil {
		return err
	}

	return sink.WriteAtomic(path, func(f io.Writer) error {
		w := file.NewParquetWriter(f, sc, file.WithWriterProps(writerProps()))

		for port := 0; port < tree.NumPorts; port++ {
			leaves, err := dremel.PortLeaves(tree, &tree.Leader, port, false)
			if err != nil {
				return err
			}
			if err := writeRowGroup(w, leaves); err != nil {
				return err
			}
		}
		for port := 0; port < tree.NumPorts; port++ {
			if !tree.PortHasFollower(port) {
				continue
			}
			leaves, err := dremel.PortLeaves(tree, &tree.Follower, port, true)
			if err != nil {
				return err
			}
			if err := writeRowGroup(w, leaves); err != nil {
				return err
			}
		}

		if err := appendDigest(w, opts); err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeSink, "closing parquet writer")
		}
		logger.Debug("wrote parquet frames file",
			zap.String("path", path),
			zap.Int("ports", tree.NumPorts),
			zap.Int("frames", tree.NumFrames))
		return nil
	})
}

// WriteItems writes the items file: a single row group with one row per
// frame and the item list as a repeated group. A batch without items still
// produces a valid file whose every row is an empty list.
func WriteItems(path string, tree *columns.Tree, opts Options) error {
	sc, err := ItemSchema(tree.Depths)
	if err != nil {
		return err
	}
	leaves, err := dremel.ItemLeaves(tree)
	if err != nil {
		return err
	}

	return sink.WriteAtomic(path, func(f io.Writer) error {
		w := file.NewParquetWriter(f, sc, file.WithWriterProps(writerProps()))
		if err := writeRowGroup(w, leaves); err != nil {
			return err
		}
		if err := appendDigest(w, opts); err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeSink, "closing parquet writer")
		}
		logger.Debug("wrote parquet items file",
			zap.String("path", path),
			zap.Int("frames", tree.NumFrames))
		return nil
	})
}

func appendDigest(w *file.Writer, opts Options) error {
	if opts.SourceDigest == 0 {
		return nil
	}
	if err := w.AppendKeyValueMetadata("source_digest", strconv.FormatUint(opts.SourceDigest, 16)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeSink, "appending file metadata")
	}
	return nil
}

// writeRowGroup writes one row group, one column chunk per leaf, in leaf
// order. Leaf order and schema field order are constructed in lockstep.
func writeRowGroup(w *file.Writer, leaves []dremel.Leaf) error {
	rg := w.AppendRowGroup()
	for i := range leaves {
		leaf := &leaves[i]
		cw, err := rg.NextColumn()
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeSink, "opening column chunk")
		}
		if err := writeLeaf(cw, leaf); err != nil {
			return err
		}
		if err := cw.Close(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeSink, "closing column chunk")
		}
	}
	if err := rg.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeSink, "closing row group")
	}
	return nil
}

func writeLeaf(cw file.ColumnChunkWriter, leaf *dremel.Leaf) error {
	var err error
	switch w := cw.(type) {
	case *file.BooleanColumnChunkWriter:
		_, err = w.WriteBatch(leaf.Bools, leaf.DefLevels, leaf.RepLevels)
	case *file.Int32ColumnChunkWriter:
		_, err = w.WriteBatch(leaf.Int32s, leaf.DefLevels, leaf.RepLevels)
	case *file.Int64ColumnChunkWriter:
		_, err = w.WriteBatch(leaf.Int64s, leaf.DefLevels, leaf.RepLevels)
	case *file.Float32ColumnChunkWriter:
		_, err = w.WriteBatch(leaf.Float32s, leaf.DefLevels, leaf.RepLevels)
	default:
		return errors.Newf(errors.ErrorTypeSink, "unexpected column chunk writer %T", cw)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSink, "writing column batch")
	}
	return nil
}
