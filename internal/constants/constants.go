// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Matching constants
const (
	// UnknownName is the label given to faces that match no roster identity
	UnknownName = "Unknown"

	// DefaultTolerance is the default maximum Euclidean distance for a positive match
	// Lower values = stricter matching
	DefaultTolerance = 0.5
)

// Frame processing constants
const (
	// DefaultFrameScale is the downscale factor applied to frames before detection
	DefaultFrameScale = 0.25

	// QuitKey is the key that stops the live loop
	QuitKey = 'q'

	// WindowTitle is the title of the live preview window
	WindowTitle = "Employee Verification"

	// MetricsFlushInterval is the number of frames between metrics textfile writes
	MetricsFlushInterval = 300
)

// Ledger constants
const (
	// DateLayout is the calendar day format stored in the ledger
	DateLayout = "2006-01-02"

	// TimeLayout is the time-of-day format stored in the ledger
	TimeLayout = "15:04:05"
)
