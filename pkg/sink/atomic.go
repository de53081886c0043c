// Package sink holds helpers shared by the sink adapters.
package sink

import (
	"io"
	"os"
	"path/filepath"

	"github.com/replaystats/framecol/pkg/errors"
)

// WriteAtomic runs write against a temporary file in the destination
// directory and renames it into place only if write succeeds, so a failed
// conversion never leaves a readable partial file. The callback receives a
// bare io.Writer; the temp file's lifecycle belongs here even when the
// format writer closes its sink.
func WriteAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".framecol-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSink, "creating temporary file")
	}
	tmpPath := tmp.Name()

	if err := write(struct{ io.Writer }{tmp}); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, errors.ErrorTypeSink, "closing temporary file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, errors.ErrorTypeSink, "finalizing output file")
	}
	return nil
}
