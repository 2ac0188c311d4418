package workspace

import (
	"net/url"

	"github.com/wojkos/ai-platform-wraper/internal/domain"
)

// View is what the content area renders.
type View struct {
	State       domain.PresentationState `json:"state"`
	Module      *domain.Module           `json:"module,omitempty"`
	FrameURL    string                   `json:"frame_url,omitempty"`
	FrameOrigin string                   `json:"-"`
	Sandbox     string                   `json:"sandbox,omitempty"`
	Title       string                   `json:"title"`
}

// Embedded reports whether the view loads the module URL.
func (v View) Embedded() bool {
	return v.State == domain.SelectedAvailable
}

// Present maps the selection onto a View, resolving availability against the
// latest module list. A selected module that vanished from the list, turned
// unavailable, or has no usable http(s) URL is shown as unavailable.
func Present(selected *domain.Module, modules []domain.Module) View {
	if selected == nil {
		return View{State: domain.NoSelection, Title: "Dashboard"}
	}

	current, ok := domain.FindModule(modules, selected.ID)
	if !ok {
		current = *selected
		current.Available = false
	}

	view := View{
		State:  domain.SelectedUnavailable,
		Module: &current,
		Title:  current.Name,
	}
	if !current.Available {
		return view
	}

	origin, ok := frameOrigin(current.URL)
	if !ok {
		return view
	}

	view.State = domain.SelectedAvailable
	view.FrameURL = current.URL
	view.FrameOrigin = origin
	view.Sandbox = domain.SandboxPolicy
	return view
}

func frameOrigin(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	return u.Scheme + "://" + u.Host, true
}
