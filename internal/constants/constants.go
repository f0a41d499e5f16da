// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Face matching constants
const (
	// DefaultDistanceThreshold is the default maximum distance for accepting a match.
	// The bound is exclusive: a distance equal to the threshold is Unknown.
	// Lower values = stricter matching
	DefaultDistanceThreshold = 0.45

	// DuplicateRegionIoU is the IoU above which a detected region is treated as a
	// duplicate of an earlier region in the same frame
	DuplicateRegionIoU = 0.6

	// MinRegionSize is the smallest width or height (pixels) of a usable face crop
	MinRegionSize = 2

	// HNSWMaxNeighbors is the M parameter of the gallery HNSW graph
	HNSWMaxNeighbors = 16

	// HNSWCandidates is the number of HNSW neighbours re-ranked by exact distance
	HNSWCandidates = 8
)

// Processing constants
const (
	// DefaultFrameSkip processes every second captured frame
	DefaultFrameSkip = 2

	// MaxObserveFailures is the number of consecutive frames whose recognition
	// failed (detector or encoder unreachable) after which the loop stops
	MaxObserveFailures = 10

	// MaxImageSize is the maximum dimension (width or height) of an image sent to the encoder
	MaxImageSize = 1920

	// JPEGQuality is used when encoding crops for the embedding service
	JPEGQuality = 90
)

// Storage constants
const (
	// TimestampLayout is the format of entry_time / exit_time (YYYY-MM-DD HH:MM:SS)
	TimestampLayout = "2006-01-02 15:04:05"

	// DefaultLogLimit is the default number of rows listed by `logs` and the status API
	DefaultLogLimit = 100
)
