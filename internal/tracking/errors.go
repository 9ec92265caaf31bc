package tracking

import "errors"

var (
	// ErrShapeMismatch is returned when two templates differ in channel or sample count.
	ErrShapeMismatch = errors.New("template shape mismatch")

	// ErrChannelGroupMismatch reports a channel group present in one session but not the other.
	ErrChannelGroupMismatch = errors.New("channel group mismatch")

	// ErrDepthUnavailable is returned by providers when no depth was recorded.
	ErrDepthUnavailable = errors.New("depth unavailable")

	// ErrMissingDepthMetadata marks an edge dropped because an endpoint has no depth.
	ErrMissingDepthMetadata = errors.New("missing depth metadata")

	// ErrEmptyInput marks a comparison skipped because one side has no units.
	ErrEmptyInput = errors.New("empty input")

	// ErrInvalidUnitLabel marks a group skipped because a provider returned a
	// negative unit label, which would collide with NoMatch.
	ErrInvalidUnitLabel = errors.New("invalid unit label")

	// ErrInvalidPruneKey is returned by Prune for an unknown edge attribute.
	ErrInvalidPruneKey = errors.New("invalid prune key")

	// ErrNegativeThreshold is returned by Prune for a negative threshold.
	ErrNegativeThreshold = errors.New("negative threshold")

	// ErrUnresolvedDuplicates is returned by Identify when a component still
	// contains two units of the same session.
	ErrUnresolvedDuplicates = errors.New("component contains duplicate sessions")
)
