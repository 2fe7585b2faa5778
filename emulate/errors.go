package emulate

import (
	"errors"
	"fmt"
)

// ErrProfileRequired is returned when no profile could be selected for a
// request and emulation is not optional.
var ErrProfileRequired = errors.New("emulate: user agent profile could not be selected")

// ErrInvalidOverwrites wraps every failure to parse the overwrites metadata
// header.
var ErrInvalidOverwrites = errors.New("emulate: invalid overwrites header")

// InvalidHeaderOrderValueError reports an entry of the header-order metadata
// header that is not a valid header name.
type InvalidHeaderOrderValueError struct {
	Value string
}

func (e *InvalidHeaderOrderValueError) Error() string {
	return fmt.Sprintf("emulate: invalid header name %q in header order", e.Value)
}
