package domain

// PresentationState describes what the content area shows.
type PresentationState int

const (
	NoSelection PresentationState = iota
	SelectedAvailable
	SelectedUnavailable
)

func (p PresentationState) String() string {
	switch p {
	case SelectedAvailable:
		return "selected_available"
	case SelectedUnavailable:
		return "selected_unavailable"
	default:
		return "no_selection"
	}
}

func (p PresentationState) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// SandboxPolicy is the iframe sandbox applied to embedded modules.
// allow-same-origin is never granted: embedded content runs as an opaque origin
// and cannot reach the dashboard's storage or DOM.
const SandboxPolicy = "allow-scripts allow-forms allow-popups allow-downloads"
