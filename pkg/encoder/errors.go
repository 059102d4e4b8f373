package encoder

import "github.com/juju/errors"

// ErrEncodingLengthMismatch is returned when two feature vectors of different
// lengths are compared. Vectors are never truncated to a common length.
var ErrEncodingLengthMismatch = errors.New("encoding length mismatch")

func checkLength(a, b int) error {
	if a != b {
		return errors.Annotatef(ErrEncodingLengthMismatch, "%d != %d", a, b)
	}
	return nil
}
