package mirror

import (
	"github.com/cockroachdb/errors"
)

// Distinguished error kinds. Wrapped errors stay matchable with errors.Is.
var (
	// ErrTimeout marks an operation abandoned because its deadline
	// passed. The transfer engine treats it like any other per-item
	// failure.
	ErrTimeout = errors.New("operation timed out")

	// ErrNotFound marks a key that cannot be resolved to an object.
	ErrNotFound = errors.New("key not found")
)

// IsTimeout reports whether err is (or wraps) a deadline overrun.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
