package export

import (
	"fmt"
	"strings"
)

// StopPolicy decides when the recorder stops relative to the two instances
// reaching their ends.
type StopPolicy string

const (
	// StopOnFirstEnd stops as soon as either instance ends.
	StopOnFirstEnd StopPolicy = "first"
	// StopWhenBothEnd waits for both instances.
	StopWhenBothEnd StopPolicy = "both"
	// StopOnVideoEnd follows the video only.
	StopOnVideoEnd StopPolicy = "video"
)

// ParseStopPolicy accepts the configuration spelling of a policy.
func ParseStopPolicy(value string) (StopPolicy, error) {
	switch p := StopPolicy(strings.ToLower(strings.TrimSpace(value))); p {
	case "":
		return StopOnFirstEnd, nil
	case StopOnFirstEnd, StopWhenBothEnd, StopOnVideoEnd:
		return p, nil
	default:
		return "", fmt.Errorf("unknown stop policy %q", value)
	}
}

func (p StopPolicy) shouldStop(videoEnded, audioEnded bool) bool {
	switch p {
	case StopWhenBothEnd:
		return videoEnded && audioEnded
	case StopOnVideoEnd:
		return videoEnded
	default:
		return videoEnded || audioEnded
	}
}

// endTolerance is how far apart, in seconds, the two durations may be before a
// stop that precedes one of them counts as early.
const endTolerance = 0.25

// stopReason names what ended the recording.
func stopReason(videoEnded, audioEnded bool) string {
	switch {
	case videoEnded && audioEnded:
		return "both_ended"
	case videoEnded:
		return "video_ended"
	case audioEnded:
		return "audio_ended"
	default:
		return "stopped"
	}
}
