package web

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/deliveryingest/internal/core"
	"github.com/go-chi/chi/v5"
)

// IntegrationSummary is one entry of GET /api/integrations.
type IntegrationSummary struct {
	Name         string   `json:"name"`
	PlatformID   int      `json:"platformId"`
	SourceFormat string   `json:"sourceFormat"`
	Tables       []string `json:"tables"`
	Active       bool     `json:"active"`
	Columns      []string `json:"columns"`
}

func (s *Server) handleListIntegrations(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Integrations.ListIntegrations(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]IntegrationSummary, 0, len(list))
	for _, in := range list {
		out = append(out, IntegrationSummary{
			Name:         in.Name,
			PlatformID:   in.PlatformID,
			SourceFormat: core.FormatFor(in.SourceFormat).Name(),
			Tables:       in.Tables,
			Active:       in.IsActive,
			Columns:      in.FieldMapping.Columns(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"integrations": out})
}

// handleIntegrationTemplate downloads a header-only CSV for one integration.
func (s *Server) handleIntegrationTemplate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	integ, err := s.deps.Integrations.FindIntegrationByName(r.Context(), name)
	if errors.Is(err, core.ErrNotFound) {
		err = &core.ValidationError{Input: name, Err: core.ErrIntegrationNotFound}
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := core.WriteTemplate(&buf, integ); err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", core.TemplateFileName(integ)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
