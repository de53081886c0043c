package replay

import (
	"io"

	"github.com/goccy/go-json"

	"github.com/replaystats/framecol/pkg/errors"
)

// Batch is the decoded form of one replay as handed over by the upstream
// parser: an ordered, non-empty frame sequence plus the source digest.
type Batch struct {
	Frames []Frame `json:"frames"`

	// SourceDigest is the 64-bit digest of the raw replay bytes, carried
	// through to sink metadata. Zero when the producer did not compute one.
	SourceDigest uint64 `json:"source_digest,omitempty"`
}

// ReadBatch decodes a batch from its JSON interchange form. The binary replay
// parser is an external producer; this is the handoff format it emits (and
// the fixture format used by tests).
func ReadBatch(r io.Reader) (*Batch, error) {
	var b Batch
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypePrecondition, "malformed batch input")
	}
	return &b, nil
}

// WriteBatch encodes a batch to its JSON interchange form.
func WriteBatch(w io.Writer, b *Batch) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(b); err != nil {
		return errors.Wrap(err, errors.ErrorTypeSink, "encoding batch")
	}
	return nil
}
