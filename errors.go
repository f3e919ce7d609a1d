package vatblend

import "fmt"

// ErrConfiguration is returned for malformed or missing recipe/terrain
// documents and unknown terrain profiles. It is always detected before any
// raster is read.
type ErrConfiguration struct {
	msg string
	err error
}

func (e ErrConfiguration) Error() string {
	if e.err != nil {
		return "configuration: " + e.msg + ": " + e.err.Error()
	}
	return "configuration: " + e.msg
}

func (e ErrConfiguration) Unwrap() error { return e.err }

// ErrInvalidArgument is returned for unknown visualization or blend mode names
// and for inconsistent layer shapes
type ErrInvalidArgument struct {
	msg string
}

func (e ErrInvalidArgument) Error() string {
	return "invalid argument: " + e.msg
}

// ErrIO wraps failures to read a source raster or write an output
type ErrIO struct {
	Path string
	err  error
}

func (e ErrIO) Error() string {
	return fmt.Sprintf("io %s: %v", e.Path, e.err)
}

func (e ErrIO) Unwrap() error { return e.err }

// ErrCompute is returned when a derivative comes back misaligned or otherwise
// unusable
type ErrCompute struct {
	msg string
	err error
}

func (e ErrCompute) Error() string {
	if e.err != nil {
		return "compute: " + e.msg + ": " + e.err.Error()
	}
	return "compute: " + e.msg
}

func (e ErrCompute) Unwrap() error { return e.err }

func configErrorf(format string, args ...interface{}) error {
	return ErrConfiguration{msg: fmt.Sprintf(format, args...)}
}

func configError(msg string, err error) error {
	return ErrConfiguration{msg: msg, err: err}
}

func invalidArgumentf(format string, args ...interface{}) error {
	return ErrInvalidArgument{msg: fmt.Sprintf(format, args...)}
}

// IOError wraps err as an ErrIO for path. It is used by RasterSource and
// RasterSink implementations.
func IOError(path string, err error) error {
	return ErrIO{Path: path, err: err}
}

func computeError(msg string, err error) error {
	return ErrCompute{msg: msg, err: err}
}
