package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/amcassist/amcassist/internal/chat"
	"github.com/amcassist/amcassist/internal/export"
	"github.com/amcassist/amcassist/internal/observability"
)

const exportURLHeader = "X-Export-URL"

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadChat(w, r)
	if !ok {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FORMAT", err.Error(), false, map[string]any{"formats": export.Formats()})
		return
	}

	turns, err := s.deps.Chats.ListTurns(r.Context(), c.ID)
	if err != nil {
		s.storeError(w, r, "failed to list turns", err)
		return
	}
	answer, question, found := findAnswer(turns, r.PathValue("turn"))
	if !found {
		writeError(r.Context(), w, http.StatusNotFound, "TURN_NOT_FOUND", "turn not found", false, nil)
		return
	}
	if answer.Envelope == nil {
		writeError(r.Context(), w, http.StatusConflict, "TURN_NOT_EXPORTABLE", "only assistant turns can be exported", false, nil)
		return
	}

	data, err := export.Render(export.FromEnvelope(question, *answer.Envelope), format)
	observability.ObserveExport(string(format), err)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "EXPORT_UNAVAILABLE", err.Error(), false, nil)
		return
	}

	if s.deps.Archiver != nil {
		archived, err := s.deps.Archiver.Archive(r.Context(), c.ID, answer.ID, format, data)
		if err != nil {
			s.logger.WarnContext(r.Context(), "export archive failed",
				observability.TraceAttr(r.Context()),
				slog.String("chat_id", c.ID),
				slog.String("turn_id", answer.ID),
				slog.String("error", err.Error()),
			)
		} else {
			w.Header().Set(exportURLHeader, archived.URL)
		}
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "amc-insights-"+answer.ID+"."+format.Extension()))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// findAnswer locates turnID and the user question that precedes it.
func findAnswer(turns []chat.Turn, turnID string) (chat.Turn, string, bool) {
	question := ""
	for _, t := range turns {
		if t.ID == turnID {
			return t, question, true
		}
		if t.Role == chat.RoleUser {
			question = t.Content
		}
	}
	return chat.Turn{}, "", false
}

type exportItem struct {
	chat.ExportRecord
	URL string `json:"url,omitempty"`
}

func (s *server) handleListExports(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadChat(w, r)
	if !ok {
		return
	}
	if s.deps.Archiver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "export archiving is disabled", false, nil)
		return
	}
	records, err := s.deps.Chats.ListExports(r.Context(), c.ID)
	if err != nil {
		s.storeError(w, r, "failed to list exports", err)
		return
	}
	items := make([]exportItem, 0, len(records))
	var linkErr error
	for _, rec := range records {
		item := exportItem{ExportRecord: rec}
		link, err := s.deps.Archiver.Link(r.Context(), rec)
		if err != nil {
			linkErr = errors.Join(linkErr, err)
		} else {
			item.URL = link
		}
		items = append(items, item)
	}
	if linkErr != nil {
		s.logger.WarnContext(r.Context(), "presign archived exports failed",
			observability.TraceAttr(r.Context()),
			slog.String("chat_id", c.ID),
			slog.String("error", linkErr.Error()),
		)
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat_id": c.ID, "exports": items})
}
