package playback

// State is the synchronizer lifecycle.
//
//	Unloaded -> MetadataReady -> {Paused <-> Playing} -> Ended
//	any load error -> Errored (terminal)
type State int

const (
	StateUnloaded State = iota
	StateMetadataReady
	StatePaused
	StatePlaying
	StateEnded
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateMetadataReady:
		return "metadata_ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	case StateEnded:
		return "ended"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// loaded reports whether transport controls apply in this state.
func (s State) loaded() bool {
	switch s {
	case StateMetadataReady, StatePaused, StatePlaying, StateEnded:
		return true
	default:
		return false
	}
}
