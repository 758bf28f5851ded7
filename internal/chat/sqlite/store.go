// Package sqlite stores chats in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amcassist/amcassist/internal/agent"
	"github.com/amcassist/amcassist/internal/chat"
	"github.com/amcassist/amcassist/internal/scope"
)

// timeLayout sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Open opens dsn with foreign keys enforced.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("chat store dsn is required")
	}
	if !strings.Contains(dsn, "foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open chat store: %w", err)
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping chat store: %w", err)
	}
	return db, nil
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping chat store: %w", err)
	}
	return nil
}

func (s *Store) CreateChat(ctx context.Context, c chat.Chat) (chat.Chat, error) {
	scopeJSON, err := json.Marshal(c.Scope)
	if err != nil {
		return chat.Chat{}, fmt.Errorf("encode chat scope: %w", err)
	}
	start, end := windowColumns(c.Window)
	_, err = s.db.ExecContext(ctx, `
INSERT INTO chat (chat_id, owner_id, title, scope_json, window_start, window_end, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, c.Title, string(scopeJSON), start, end,
		c.CreatedAt.UTC().Format(timeLayout), c.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return chat.Chat{}, fmt.Errorf("create chat: %w", err)
	}
	return c, nil
}

const chatColumns = `chat_id, owner_id, title, scope_json, window_start, window_end, created_at, updated_at`

func (s *Store) GetChat(ctx context.Context, ownerID, chatID string) (chat.Chat, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+chatColumns+`
FROM chat
WHERE chat_id = ? AND owner_id = ?`, chatID, ownerID)
	c, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Chat{}, chat.ErrNotFound
		}
		return chat.Chat{}, fmt.Errorf("get chat: %w", err)
	}
	return c, nil
}

func (s *Store) ListChats(ctx context.Context, ownerID string) ([]chat.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+chatColumns+`
FROM chat
WHERE owner_id = ?
ORDER BY updated_at DESC, chat_id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	chats := make([]chat.Chat, 0)
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat row: %w", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat rows: %w", err)
	}
	return chats, nil
}

func (s *Store) RenameChat(ctx context.Context, ownerID, chatID, title string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE chat SET title = ?, updated_at = ?
WHERE chat_id = ? AND owner_id = ?`,
		title, s.now().UTC().Format(timeLayout), chatID, ownerID)
	if err != nil {
		return fmt.Errorf("rename chat: %w", err)
	}
	return expectRow(res, "rename chat")
}

func (s *Store) DeleteChat(ctx context.Context, ownerID, chatID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat WHERE chat_id = ? AND owner_id = ?`, chatID, ownerID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return expectRow(res, "delete chat")
}

// AppendTurn assigns the next sequence number within the chat and bumps the
// chat's updated_at.
func (s *Store) AppendTurn(ctx context.Context, t chat.Turn) (chat.Turn, error) {
	stored, err := s.AppendTurns(ctx, t)
	if err != nil {
		return chat.Turn{}, err
	}
	return stored[0], nil
}

// AppendTurns writes the turns in one transaction, numbering them after the
// chat's current last turn.
func (s *Store) AppendTurns(ctx context.Context, turns ...chat.Turn) ([]chat.Turn, error) {
	if len(turns) == 0 {
		return nil, nil
	}
	envelopes := make([]sql.NullString, len(turns))
	for i, t := range turns {
		if t.Envelope == nil {
			continue
		}
		body, err := json.Marshal(t.Envelope)
		if err != nil {
			return nil, fmt.Errorf("encode turn envelope: %w", err)
		}
		envelopes[i] = sql.NullString{String: string(body), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stored := make([]chat.Turn, 0, len(turns))
	for i, t := range turns {
		var seq int
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_turn WHERE chat_id = ?`, t.ChatID).Scan(&seq); err != nil {
			return nil, fmt.Errorf("next turn seq: %w", err)
		}
		createdAt := t.CreatedAt.UTC().Format(timeLayout)
		res, err := tx.ExecContext(ctx, `UPDATE chat SET updated_at = ? WHERE chat_id = ?`, createdAt, t.ChatID)
		if err != nil {
			return nil, fmt.Errorf("touch chat: %w", err)
		}
		if err := expectRow(res, "append turn"); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO chat_turn (turn_id, chat_id, seq, role, content, envelope_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.ChatID, seq, string(t.Role), t.Content, envelopes[i], createdAt); err != nil {
			return nil, fmt.Errorf("insert turn: %w", err)
		}
		t.Seq = seq
		stored = append(stored, t)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit turns: %w", err)
	}
	return stored, nil
}

const turnColumns = `turn_id, chat_id, seq, role, content, envelope_json, created_at`

func (s *Store) ListTurns(ctx context.Context, chatID string) ([]chat.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+turnColumns+`
FROM chat_turn
WHERE chat_id = ?
ORDER BY seq`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	turns := make([]chat.Turn, 0)
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return turns, nil
}

func (s *Store) GetTurn(ctx context.Context, chatID, turnID string) (chat.Turn, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+turnColumns+`
FROM chat_turn
WHERE chat_id = ? AND turn_id = ?`, chatID, turnID)
	t, err := scanTurn(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Turn{}, chat.ErrNotFound
		}
		return chat.Turn{}, fmt.Errorf("get turn: %w", err)
	}
	return t, nil
}

func (s *Store) ClearTurns(ctx context.Context, chatID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_turn WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("clear turns: %w", err)
	}
	return nil
}

func (s *Store) RecordExport(ctx context.Context, rec chat.ExportRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO export_archive (chat_id, turn_id, format, object_key, size_bytes, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (turn_id, format) DO UPDATE SET
	object_key = excluded.object_key,
	size_bytes = excluded.size_bytes,
	created_at = excluded.created_at`,
		rec.ChatID, rec.TurnID, rec.Format, rec.ObjectKey, rec.SizeBytes, rec.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("record export: %w", err)
	}
	return nil
}

func (s *Store) ListExports(ctx context.Context, chatID string) ([]chat.ExportRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT chat_id, turn_id, format, object_key, size_bytes, created_at
FROM export_archive
WHERE chat_id = ?
ORDER BY created_at, format`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]chat.ExportRecord, 0)
	for rows.Next() {
		var rec chat.ExportRecord
		var createdAt string
		if err := rows.Scan(&rec.ChatID, &rec.TurnID, &rec.Format, &rec.ObjectKey, &rec.SizeBytes, &createdAt); err != nil {
			return nil, fmt.Errorf("scan export row: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse export created_at: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate export rows: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(row scanner) (chat.Chat, error) {
	var (
		c                    chat.Chat
		scopeJSON            string
		windowStart          sql.NullString
		windowEnd            sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &scopeJSON, &windowStart, &windowEnd, &createdAt, &updatedAt); err != nil {
		return chat.Chat{}, err
	}
	if err := json.Unmarshal([]byte(scopeJSON), &c.Scope); err != nil {
		return chat.Chat{}, fmt.Errorf("decode chat scope: %w", err)
	}
	window, err := scope.ParseDateWindow(windowStart.String, windowEnd.String)
	if err != nil {
		return chat.Chat{}, fmt.Errorf("decode chat window: %w", err)
	}
	c.Window = window
	if c.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return chat.Chat{}, fmt.Errorf("parse chat created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return chat.Chat{}, fmt.Errorf("parse chat updated_at: %w", err)
	}
	return c, nil
}

func scanTurn(row scanner) (chat.Turn, error) {
	var (
		t            chat.Turn
		role         string
		envelopeJSON sql.NullString
		createdAt    string
	)
	if err := row.Scan(&t.ID, &t.ChatID, &t.Seq, &role, &t.Content, &envelopeJSON, &createdAt); err != nil {
		return chat.Turn{}, err
	}
	t.Role = chat.Role(role)
	if envelopeJSON.Valid {
		var env agent.Envelope
		if err := json.Unmarshal([]byte(envelopeJSON.String), &env); err != nil {
			return chat.Turn{}, fmt.Errorf("decode turn envelope: %w", err)
		}
		t.Envelope = &env
	}
	var err error
	if t.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return chat.Turn{}, fmt.Errorf("parse turn created_at: %w", err)
	}
	return t, nil
}

func windowColumns(w scope.DateWindow) (sql.NullString, sql.NullString) {
	var start, end sql.NullString
	if !w.Start.IsZero() {
		start = sql.NullString{String: w.Start.Format(time.DateOnly), Valid: true}
	}
	if !w.End.IsZero() {
		end = sql.NullString{String: w.End.Format(time.DateOnly), Valid: true}
	}
	return start, end
}

func expectRow(res sql.Result, action string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", action, err)
	}
	if n == 0 {
		return chat.ErrNotFound
	}
	return nil
}
