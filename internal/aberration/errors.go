package aberration

import (
	"errors"
	"fmt"
)

// ErrNoAberrations indicates a coefficient table with a header but no
// parseable terms.
var ErrNoAberrations = errors.New("aberration: no aberrations found")

// FormatError reports a malformed coefficient line. Line is the 1-based
// line number within the source, counting the header line.
type FormatError struct {
	Line int
	Text string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("aberration: error reading term from line %d: %q", e.Line, e.Text)
}
