package replay

import "errors"

var (
	// ErrLoadFailed wraps any loader failure during EnsureLoaded
	ErrLoadFailed = errors.New("timeline load failed")

	// ErrStaleSession is returned when a timeline is read before it was initialized
	ErrStaleSession = errors.New("timeline not initialized")

	// ErrInvalidCursorState signals a cursor outside [0, totalEvents]; it is a bug if seen
	ErrInvalidCursorState = errors.New("invalid cursor state")
)
