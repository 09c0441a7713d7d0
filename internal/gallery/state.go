package gallery

import (
	"github.com/Brownie44l1/trapcam/internal/model"
	"github.com/Brownie44l1/trapcam/internal/pager"
)

// Slot is the rendered view of one image.
type Slot struct {
	ID         int              `json:"id"`
	Name       string           `json:"name"`
	Src        string           `json:"src"`
	Label      string           `json:"label"`
	Positive   bool             `json:"positive"`
	Pending    bool             `json:"pending"`
	Prediction model.Prediction `json:"prediction"`
}

// State is a snapshot of a session as the gallery page shows it.
type State struct {
	Session     string       `json:"session"`
	Folder      string       `json:"folder"`
	Total       int          `json:"total"`
	Loading     bool         `json:"loading"`
	Window      pager.Window `json:"window"`
	Page        int          `json:"page"`
	Slots       []Slot       `json:"slots"`
	HasPrevious bool         `json:"has_previous"`
	HasNext     bool         `json:"has_next"`
}

func (s *Session) stateLocked() State {
	st := State{
		Session:     s.ID,
		Folder:      s.folder,
		Total:       len(s.names),
		Loading:     s.loading,
		Window:      s.window,
		Page:        s.window.Page(),
		Slots:       make([]Slot, len(s.images)),
		HasPrevious: s.window.HasPrevious(),
		HasNext:     s.window.HasNext(len(s.names)),
	}
	for i, img := range s.images {
		p := s.preds[i]
		st.Slots[i] = Slot{
			ID:         img.ID,
			Name:       img.Name,
			Src:        img.Src,
			Label:      p.String(),
			Positive:   p.OK && p.Label == model.DefaultClasses[0],
			Pending:    img.Src != "" && !p.OK,
			Prediction: p,
		}
	}
	return st
}
