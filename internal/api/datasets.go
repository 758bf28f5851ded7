package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/amcassist/amcassist/internal/catalog"
	"github.com/amcassist/amcassist/internal/explorer"
	"github.com/amcassist/amcassist/internal/observability"
	"github.com/amcassist/amcassist/internal/scope"
	"github.com/amcassist/amcassist/internal/warehouse"
)

type datasetItem struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Tenant      string           `json:"tenant"`
	Columns     []catalog.Column `json:"columns"`
}

func (s *server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	if s.deps.Explorer == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATASETS_NOT_CONFIGURED", "dataset explorer dependency is not configured", false, nil)
		return
	}
	tables := s.deps.Explorer.Datasets()
	items := make([]datasetItem, 0, len(tables))
	for _, table := range tables {
		items = append(items, datasetItem{
			Name:        table.Name,
			Description: table.Description,
			Tenant:      string(table.Tenant.Kind),
			Columns:     table.Columns,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": items})
}

// handleGetDataset returns rows of one table under an optional advertiser
// scope. An advertiser that cannot be resolved yields no rows.
func (s *server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	if s.deps.Explorer == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATASETS_NOT_CONFIGURED", "dataset explorer dependency is not configured", false, nil)
		return
	}
	query := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, map[string]any{"max": explorer.MaxLimit})
			return
		}
		limit = parsed
	}

	sc := scope.Global()
	var warnings []string
	if advertiser := strings.TrimSpace(query.Get("advertiser")); advertiser != "" {
		if s.deps.Resolver == nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "ADVERTISERS_NOT_CONFIGURED", "advertiser lookup is not configured", true, nil)
			return
		}
		resolved, err := s.deps.Resolver.Resolve(r.Context(), []string{advertiser})
		sc = resolved
		if err != nil {
			s.logger.WarnContext(r.Context(), "advertiser scope resolution failed",
				observability.TraceAttr(r.Context()),
				slog.String("advertiser", advertiser),
				slog.String("error", err.Error()),
			)
			warnings = append(warnings, "The advertiser could not be resolved; no rows are shown.")
		}
	}

	ds, err := s.deps.Explorer.Explore(r.Context(), r.PathValue("table"), sc, limit)
	switch {
	case errors.Is(err, explorer.ErrUnknownDataset):
		writeError(r.Context(), w, http.StatusNotFound, "DATASET_NOT_FOUND", "dataset not found", false, map[string]any{"table": r.PathValue("table")})
		return
	case errors.Is(err, warehouse.ErrUnavailable):
		writeError(r.Context(), w, http.StatusServiceUnavailable, "WAREHOUSE_NOT_CONFIGURED", "no warehouse is connected", true, nil)
		return
	case err != nil:
		s.logger.WarnContext(r.Context(), "dataset fetch failed",
			observability.TraceAttr(r.Context()),
			slog.String("table", r.PathValue("table")),
			slog.String("error", err.Error()),
		)
		writeError(r.Context(), w, http.StatusBadGateway, "WAREHOUSE_ERROR", "failed to load dataset", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dataset": ds, "warnings": warnings})
}
