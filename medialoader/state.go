package medialoader

// Phase is the loader's display mode.
type Phase int

const (
	// PhaseIdle means no identity is requested and nothing is displayed.
	PhaseIdle Phase = iota
	// PhaseLoading means a fetch for the current identity is in flight.
	PhaseLoading
	// PhaseReady means the current identity's payload is installed and
	// addressable through State.Handle.
	PhaseReady
	// PhaseFailed means the current identity's fetch failed. A later
	// Request for the same identity retries from PhaseLoading.
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the projection the render surface consumes. Identity names the
// resource the state refers to; Handle is set only in PhaseReady.
type State struct {
	Phase    Phase
	Identity string
	Handle   string
}
