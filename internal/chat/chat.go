// Package chat models conversations: a locked scope and date window plus an
// ordered list of turns.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/amcassist/amcassist/internal/agent"
	"github.com/amcassist/amcassist/internal/scope"
	"github.com/amcassist/amcassist/internal/translator"
)

var ErrNotFound = errors.New("not found")

const DefaultTitle = "New Chat"

const titleMaxRunes = 48

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Chat struct {
	ID        string           `json:"chat_id"`
	OwnerID   string           `json:"owner_id"`
	Title     string           `json:"title"`
	Scope     scope.Scope      `json:"scope"`
	Window    scope.DateWindow `json:"window"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type Turn struct {
	ID      string `json:"turn_id"`
	ChatID  string `json:"chat_id"`
	Seq     int    `json:"seq"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Envelope is set on assistant turns.
	Envelope  *agent.Envelope `json:"envelope,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type ExportRecord struct {
	ChatID    string    `json:"chat_id"`
	TurnID    string    `json:"turn_id"`
	Format    string    `json:"format"`
	ObjectKey string    `json:"object_key"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists chats. Lookups scoped by owner return ErrNotFound for chats
// owned by someone else.
type Store interface {
	CreateChat(ctx context.Context, c Chat) (Chat, error)
	GetChat(ctx context.Context, ownerID, chatID string) (Chat, error)
	ListChats(ctx context.Context, ownerID string) ([]Chat, error)
	RenameChat(ctx context.Context, ownerID, chatID, title string) error
	DeleteChat(ctx context.Context, ownerID, chatID string) error

	AppendTurn(ctx context.Context, t Turn) (Turn, error)
	// AppendTurns stores the turns in order, all or none.
	AppendTurns(ctx context.Context, turns ...Turn) ([]Turn, error)
	ListTurns(ctx context.Context, chatID string) ([]Turn, error)
	GetTurn(ctx context.Context, chatID, turnID string) (Turn, error)
	ClearTurns(ctx context.Context, chatID string) error

	RecordExport(ctx context.Context, rec ExportRecord) error
	ListExports(ctx context.Context, chatID string) ([]ExportRecord, error)
}

// New returns a chat with a fresh id. An empty title becomes DefaultTitle.
func New(ownerID, title string, s scope.Scope, w scope.DateWindow, now time.Time) Chat {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	now = now.UTC()
	return Chat{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		Scope:     s,
		Window:    w,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func NewTurn(chatID string, role Role, content string, env *agent.Envelope, now time.Time) Turn {
	return Turn{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		Envelope:  env,
		CreatedAt: now.UTC(),
	}
}

// TitleFrom derives a chat title from its first question.
func TitleFrom(question string) string {
	title := strings.Join(strings.Fields(question), " ")
	if title == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(title) <= titleMaxRunes {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:titleMaxRunes-3])) + "..."
}

// History converts stored turns into translator context, keeping the last n.
func History(turns []Turn, n int) []translator.Turn {
	if n <= 0 {
		return nil
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]translator.Turn, 0, len(turns))
	for _, t := range turns {
		item := translator.Turn{Role: string(t.Role), Text: t.Content}
		if t.Envelope != nil {
			item.Table = t.Envelope.Table()
		}
		out = append(out, item)
	}
	return out
}
