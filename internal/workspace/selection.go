package workspace

import "github.com/wojkos/ai-platform-wraper/internal/domain"

// Selection tracks the active module. It is not safe for concurrent use;
// the owning Workspace serialises access.
type Selection struct {
	current *domain.Module
}

// Select makes m the active module. Unavailable modules are rejected silently.
// It reports whether the selection changed.
func (s *Selection) Select(m domain.Module) bool {
	if !m.Available {
		return false
	}
	if s.current != nil && s.current.ID == m.ID {
		return false
	}
	s.current = &m
	return true
}

func (s *Selection) Current() (domain.Module, bool) {
	if s.current == nil {
		return domain.Module{}, false
	}
	return *s.current, true
}

func (s *Selection) Clear() {
	s.current = nil
}

// selectDefault picks the first available module if nothing is selected yet.
func (s *Selection) selectDefault(modules []domain.Module) {
	if s.current != nil {
		return
	}
	for _, m := range modules {
		if m.Available {
			s.Select(m)
			return
		}
	}
}
