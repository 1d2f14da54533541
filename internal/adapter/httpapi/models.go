package httpapi

import (
	"net/http"
	"sort"

	"scribe-ai/internal/domain"
)

type modelsResponse struct {
	Models []domain.ModelInfo `json:"models"`
}

// handleModels lists every model the configured providers advertise.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	infos := make([]domain.ModelInfo, 0)
	if s.deps.Registry != nil {
		for _, name := range s.deps.Registry.List() {
			p, err := s.deps.Registry.Get(name)
			if err != nil {
				continue
			}
			if lister, ok := p.(domain.ModelLister); ok {
				infos = append(infos, lister.Models()...)
			}
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Provider != infos[j].Provider {
			return infos[i].Provider < infos[j].Provider
		}
		return infos[i].ID < infos[j].ID
	})
	writeJSON(w, http.StatusOK, modelsResponse{Models: infos})
}
