package roster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/attendance/internal/constants"
)

// ErrInvalidName is returned for identity names that cannot be recorded.
var ErrInvalidName = errors.New("invalid identity name")

// ValidateName rejects names that are empty, contain line breaks or equal
// the reserved unknown-face label.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("%w: %q contains a line break", ErrInvalidName, name)
	}
	if name == constants.UnknownName {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	return nil
}
