package api

import (
	"log/slog"
	"net/http"

	"github.com/amcassist/amcassist/internal/observability"
)

// StarterPrompts are offered to users starting a new chat.
var StarterPrompts = []string{
	"Analyze ROAS by Campaign",
	"Show New-To-Brand metrics",
	"Path to Conversion analysis",
	"Show Time to Conversion",
	"List Advertisers",
}

func (s *server) handlePrompts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"prompts": StarterPrompts})
}

type advertiserItem struct {
	InstanceID int64  `json:"instance_id"`
	Name       string `json:"name"`
}

func (s *server) handleAdvertisers(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tenants == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "WAREHOUSE_NOT_CONFIGURED", "no warehouse is connected", true, nil)
		return
	}
	tenants, err := s.deps.Tenants.ListTenants(r.Context())
	if err != nil {
		s.logger.WarnContext(r.Context(), "list advertisers failed",
			observability.TraceAttr(r.Context()),
			slog.String("error", err.Error()),
		)
		writeError(r.Context(), w, http.StatusBadGateway, "WAREHOUSE_ERROR", "failed to list advertisers", true, map[string]any{"details": err.Error()})
		return
	}
	items := make([]advertiserItem, 0, len(tenants))
	for _, tenant := range tenants {
		items = append(items, advertiserItem{InstanceID: tenant.ID, Name: tenant.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"advertisers": items})
}
