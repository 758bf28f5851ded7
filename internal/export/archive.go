package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amcassist/amcassist/internal/chat"
	"github.com/amcassist/amcassist/internal/observability"
	"github.com/amcassist/amcassist/internal/storage"
)

const DefaultLinkExpiry = 15 * time.Minute

type Recorder interface {
	RecordExport(ctx context.Context, rec chat.ExportRecord) error
}

// Archiver keeps a copy of every export in the object store and records it
// against the chat.
type Archiver struct {
	store      storage.ObjectStore
	records    Recorder
	linkExpiry time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewArchiver(store storage.ObjectStore, records Recorder, linkExpiry time.Duration, logger *slog.Logger) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if records == nil {
		return nil, fmt.Errorf("export recorder is required")
	}
	if linkExpiry <= 0 {
		linkExpiry = DefaultLinkExpiry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: store, records: records, linkExpiry: linkExpiry, logger: logger, now: time.Now}, nil
}

type Archived struct {
	Record chat.ExportRecord `json:"record"`
	URL    string            `json:"url"`
}

func (a *Archiver) Archive(ctx context.Context, chatID, turnID string, f Format, data []byte) (Archived, error) {
	key, err := storage.BuildExportPath(chatID, turnID, f.Extension())
	if err != nil {
		return Archived{}, err
	}
	info, err := a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType: f.ContentType(),
		Metadata:    map[string]string{"chat-id": chatID, "turn-id": turnID},
	})
	if err != nil {
		return Archived{}, fmt.Errorf("upload export: %w", err)
	}
	rec := chat.ExportRecord{
		ChatID:    chatID,
		TurnID:    turnID,
		Format:    string(f),
		ObjectKey: key,
		SizeBytes: int64(len(data)),
		CreatedAt: a.now().UTC(),
	}
	if err := a.records.RecordExport(ctx, rec); err != nil {
		return Archived{}, fmt.Errorf("record export: %w", err)
	}
	url, err := a.store.PresignGet(ctx, key, a.linkExpiry)
	if err != nil {
		return Archived{}, fmt.Errorf("presign export: %w", err)
	}

	a.logger.InfoContext(ctx, "export archived",
		observability.TraceAttr(ctx),
		slog.String("chat_id", chatID),
		slog.String("turn_id", turnID),
		slog.String("format", string(f)),
		slog.String("object_key", key),
		slog.String("etag", info.ETag),
	)
	return Archived{Record: rec, URL: url}, nil
}

// Link presigns a fresh download URL for an archived export.
func (a *Archiver) Link(ctx context.Context, rec chat.ExportRecord) (string, error) {
	return a.store.PresignGet(ctx, rec.ObjectKey, a.linkExpiry)
}

// Purge removes archived objects. It keeps going past failures and returns
// the first error.
func (a *Archiver) Purge(ctx context.Context, records []chat.ExportRecord) error {
	var first error
	for _, rec := range records {
		if err := a.store.Delete(ctx, rec.ObjectKey); err != nil {
			a.logger.WarnContext(ctx, "purge archived export failed",
				observability.TraceAttr(ctx),
				slog.String("object_key", rec.ObjectKey),
				slog.String("error", err.Error()),
			)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
