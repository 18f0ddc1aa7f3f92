package mirror

import (
	"bufio"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/ulikunitz/xz"
)

// WriteKeyList writes a snapshot as the plain key-list artifact consumed
// by downstream tooling: one canonical key per line, in the order given.
// With compress set, the list is wrapped in an xz stream.
func WriteKeyList(w io.Writer, snapshot []SnapshotPath, compress bool) error {
	out := w
	var xzWriter *xz.Writer
	if compress {
		var err error
		xzWriter, err = xz.NewWriter(w)
		if err != nil {
			return errors.Wrap(err, "create xz writer")
		}
		out = xzWriter
	}

	buffered := bufio.NewWriter(out)
	for _, key := range snapshot {
		if _, err := buffered.WriteString(string(key)); err != nil {
			return errors.Wrap(err, "write key")
		}
		if err := buffered.WriteByte('\n'); err != nil {
			return errors.Wrap(err, "write key")
		}
	}
	if err := buffered.Flush(); err != nil {
		return errors.Wrap(err, "flush key list")
	}

	if xzWriter != nil {
		if err := xzWriter.Close(); err != nil {
			return errors.Wrap(err, "close xz stream")
		}
	}
	return nil
}
