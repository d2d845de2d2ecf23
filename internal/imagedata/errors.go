package imagedata

import "fmt"

// DecodeError wraps a failure to decode an image file, carrying the
// filename so the server can report which input caused the run to
// abort. Decode failures are not recoverable mid-run: a worker that
// cannot decode its assigned image reports the error back as a Result
// rather than guessing at partial data.
type DecodeError struct {
	Filename string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("imagedata: decode %s: %v", e.Filename, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
