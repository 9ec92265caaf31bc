package tracking

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"
)

// SessionProvider is the read-only view of recorded sessions used by the tracker.
// Implementations must be safe for concurrent use.
type SessionProvider interface {
	// ChannelGroups lists the channel groups recorded in a session.
	ChannelGroups(ctx context.Context, sessionID string) ([]string, error)

	// Timestamp returns the recording start time of a session.
	Timestamp(ctx context.Context, sessionID string) (time.Time, error)

	// Depth returns the probe depth for a channel group in micrometres.
	// Returns an error wrapping ErrDepthUnavailable when none was recorded.
	Depth(ctx context.Context, sessionID, group string) (float64, error)

	// Units lists the unit labels sorted for a channel group.
	Units(ctx context.Context, sessionID, group string) ([]int, error)

	// Template returns the mean waveform of a unit, shaped (channels, samples).
	// Callers must not modify the returned matrix.
	Template(ctx context.Context, sessionID, group string, unit int) (*mat.Dense, error)
}
