package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/amcassist/amcassist/internal/agent"
	"github.com/amcassist/amcassist/internal/chat"
	"github.com/amcassist/amcassist/internal/observability"
	"github.com/amcassist/amcassist/internal/scope"
)

const defaultWindowDays = 30

type createChatRequest struct {
	Title       string   `json:"title"`
	Advertisers []string `json:"advertisers"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
}

type renameChatRequest struct {
	Title string `json:"title"`
}

type postMessageRequest struct {
	Text string `json:"text"`
}

type chatDetail struct {
	chat.Chat
	Turns []chat.Turn `json:"turns"`
}

func (s *server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireChats(w, r)
	if !ok {
		return
	}
	var req createChatRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid create chat request body", false, map[string]any{"details": err.Error()})
		return
	}

	window, err := s.windowFrom(req)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_DATE_WINDOW", err.Error(), false, nil)
		return
	}

	sc := scope.Global()
	var warnings []string
	if len(req.Advertisers) > 0 {
		if s.deps.Resolver == nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "ADVERTISERS_NOT_CONFIGURED", "advertiser lookup is not configured", true, nil)
			return
		}
		resolved, err := s.deps.Resolver.Resolve(r.Context(), req.Advertisers)
		sc = resolved
		if err != nil {
			s.logger.WarnContext(r.Context(), "advertiser scope resolution failed",
				observability.TraceAttr(r.Context()),
				slog.String("advertiser", resolved.TenantName),
				slog.String("error", err.Error()),
			)
			warnings = append(warnings, "The advertiser could not be resolved; this chat will return no rows until it is recreated.")
		}
		if len(resolved.Ignored) > 0 {
			warnings = append(warnings, "Only the first selected advertiser is applied.")
		}
	}

	created, err := s.deps.Chats.CreateChat(r.Context(), chat.New(owner, req.Title, sc, window, s.now()))
	if err != nil {
		s.storeError(w, r, "failed to create chat", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"chat": created, "warnings": warnings})
}

// windowFrom defaults to the last 30 days. Inverted windows are rejected.
func (s *server) windowFrom(req createChatRequest) (scope.DateWindow, error) {
	if strings.TrimSpace(req.StartDate) == "" && strings.TrimSpace(req.EndDate) == "" {
		return scope.LastDays(s.now(), defaultWindowDays), nil
	}
	window, err := scope.ParseDateWindow(req.StartDate, req.EndDate)
	if err != nil {
		return scope.DateWindow{}, err
	}
	if window.Inverted() {
		return scope.DateWindow{}, errors.New("start_date must not be after end_date")
	}
	return window, nil
}

func (s *server) handleListChats(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireChats(w, r)
	if !ok {
		return
	}
	chats, err := s.deps.Chats.ListChats(r.Context(), owner)
	if err != nil {
		s.storeError(w, r, "failed to list chats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (s *server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadChat(w, r)
	if !ok {
		return
	}
	turns, err := s.deps.Chats.ListTurns(r.Context(), c.ID)
	if err != nil {
		s.storeError(w, r, "failed to list turns", err)
		return
	}
	writeJSON(w, http.StatusOK, chatDetail{Chat: c, Turns: turns})
}

func (s *server) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadChat(w, r)
	if !ok {
		return
	}
	var req renameChatRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid rename request body", false, map[string]any{"details": err.Error()})
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_TITLE", "title is required", false, nil)
		return
	}
	if err := s.deps.Chats.RenameChat(r.Context(), c.OwnerID, c.ID, title); err != nil {
		s.storeError(w, r, "failed to rename chat", err)
		return
	}
	c.Title = title
	writeJSON(w, http.StatusOK, map[string]any{"chat": c})
}

func (s *server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadChat(w, r)
	if !ok {
		return
	}
	var archived []chat.ExportRecord
	if s.deps.Archiver != nil {
		records, err := s.deps.Chats.ListExports(r.Context(), c.ID)
		if err != nil {
			s.storeError(w, r, "failed to list exports", err)
			return
		}
		archived = records
	}
	if err := s.deps.Chats.DeleteChat(r.Context(), c.OwnerID, c.ID); err != nil {
		s.storeError(w, r, "failed to delete chat", err)
		return
	}
	if len(archived) > 0 {
		if err := s.deps.Archiver.Purge(r.Context(), archived); err != nil {
			s.logger.WarnContext(r.Context(), "archived exports left behind",
				observability.TraceAttr(r.Context()),
				slog.String("chat_id", c.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleClearTurns(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadChat(w, r)
	if !ok {
		return
	}
	if err := s.deps.Chats.ClearTurns(r.Context(), c.ID); err != nil {
		s.storeError(w, r, "failed to clear turns", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePostMessage runs one turn. The question and the reply are stored
// together once the reply exists, so history always alternates.
func (s *server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadChat(w, r)
	if !ok {
		return
	}
	if s.deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant dependency is not configured", false, nil)
		return
	}
	var req postMessageRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid message request body", false, map[string]any{"details": err.Error()})
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "EMPTY_MESSAGE", "text is required", false, nil)
		return
	}

	turns, err := s.deps.Chats.ListTurns(r.Context(), c.ID)
	if err != nil {
		s.storeError(w, r, "failed to load history", err)
		return
	}
	question := chat.NewTurn(c.ID, chat.RoleUser, text, nil, s.now())

	session := agent.SessionContext{
		Scope:   c.Scope,
		Window:  c.Window,
		History: chat.History(turns, s.cfg.Agent.HistoryTurns),
	}
	env := s.deps.Assistant.Respond(r.Context(), session, text)

	stored, err := s.deps.Chats.AppendTurns(r.Context(), question, chat.NewTurn(c.ID, chat.RoleAssistant, env.Text, &env, s.now()))
	if err != nil {
		s.storeError(w, r, "failed to store turn", err)
		return
	}
	question, answer := stored[0], stored[1]

	if c.Title == chat.DefaultTitle && !hasUserTurn(turns) {
		title := chat.TitleFrom(text)
		if err := s.deps.Chats.RenameChat(r.Context(), c.OwnerID, c.ID, title); err != nil {
			s.logger.WarnContext(r.Context(), "chat auto-title failed",
				observability.TraceAttr(r.Context()),
				slog.String("chat_id", c.ID),
				slog.String("error", err.Error()),
			)
		} else {
			c.Title = title
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"chat_id":  c.ID,
		"title":    c.Title,
		"question": question,
		"answer":   answer,
	})
}

func hasUserTurn(turns []chat.Turn) bool {
	for _, t := range turns {
		if t.Role == chat.RoleUser {
			return true
		}
	}
	return false
}

func (s *server) requireChats(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.deps.Chats == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHATS_NOT_CONFIGURED", "chat store dependency is not configured", false, nil)
		return "", false
	}
	owner, ok := ownerFromRequest(r)
	if !ok {
		writeError(r.Context(), w, http.StatusUnauthorized, "IDENTITY_REQUIRED", "request identity is missing", false, nil)
		return "", false
	}
	return owner, true
}

func (s *server) loadChat(w http.ResponseWriter, r *http.Request) (chat.Chat, bool) {
	owner, ok := s.requireChats(w, r)
	if !ok {
		return chat.Chat{}, false
	}
	c, err := s.deps.Chats.GetChat(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		s.storeError(w, r, "failed to load chat", err)
		return chat.Chat{}, false
	}
	return c, true
}

func (s *server) storeError(w http.ResponseWriter, r *http.Request, message string, err error) {
	if errors.Is(err, chat.ErrNotFound) {
		writeError(r.Context(), w, http.StatusNotFound, "NOT_FOUND", "chat not found", false, nil)
		return
	}
	s.logger.ErrorContext(r.Context(), message,
		observability.TraceAttr(r.Context()),
		slog.String("error", err.Error()),
	)
	writeError(r.Context(), w, http.StatusInternalServerError, "CHAT_STORE_ERROR", message, true, map[string]any{"details": err.Error()})
}
