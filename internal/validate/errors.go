package validate

import "errors"

var (
	// ErrInvalidWordIndex is returned when a word vector index is outside
	// [0, wordvector.Size).
	ErrInvalidWordIndex = errors.New("invalid word index")

	// ErrInvalidPeerKey is returned when a peer key does not match the
	// host:port shape.
	ErrInvalidPeerKey = errors.New("invalid peer key")

	// ErrInvalidProbability is returned when a lie probability is outside
	// [0, 1].
	ErrInvalidProbability = errors.New("invalid probability")
)
