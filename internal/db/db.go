package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

// QARecord is one answered question.
type QARecord struct {
	bun.BaseModel `bun:"table:qa_history,alias:h" json:"-"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	SessionID     string    `bun:"session_id,notnull" json:"session_id"`
	DocumentID    string    `bun:"document_id,notnull" json:"document_id"`
	DocumentName  string    `bun:"document_name" json:"document_name"`
	Question      string    `bun:"question,notnull" json:"question"`
	Answer        string    `bun:"answer,notnull" json:"answer"`
	ContextIDs    []string  `bun:"context_ids,array" json:"context_ids"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the history database with the configured driver: bun's
// pgdriver or lib/pq registered as "postgres".
func ConnectDB(cfg config.HistoryConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "pgdriver", "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
	case "postgres":
		return sql.Open("postgres", cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: history driver %q", models.ErrInvalidConfig, cfg.Driver)
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*QARecord)(nil)).IfNotExists().Exec(ctx)
	return err
}

// HistoryStore records answers in Postgres.
type HistoryStore struct {
	db *bun.DB
}

func NewHistoryStore(db *bun.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// OpenHistory connects, creates the table if needed and returns the store.
func OpenHistory(ctx context.Context, cfg config.HistoryConfig) (*HistoryStore, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	db := NewDB(sqldb, cfg.Debug)
	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history table: %w", err)
	}
	return NewHistoryStore(db), nil
}

func recordFromAnswer(a *models.Answer) *QARecord {
	ids := make([]string, len(a.Context))
	for i, m := range a.Context {
		ids[i] = m.ID
	}
	return &QARecord{
		SessionID:    a.SessionID,
		DocumentID:   a.DocumentID,
		DocumentName: a.DocumentName,
		Question:     a.Question,
		Answer:       a.Content,
		ContextIDs:   ids,
		CreatedAt:    time.Now().UTC(),
	}
}

func (h *HistoryStore) RecordAnswer(ctx context.Context, a *models.Answer) error {
	_, err := h.db.NewInsert().Model(recordFromAnswer(a)).Exec(ctx)
	return err
}

func (h *HistoryStore) recentQuery(records *[]QARecord, sessionID string, limit int) *bun.SelectQuery {
	q := h.db.NewSelect().Model(records).OrderExpr("h.id DESC").Limit(limit)
	if sessionID != "" {
		q = q.Where("h.session_id = ?", sessionID)
	}
	return q
}

// Recent returns the latest answers, newest first. An empty sessionID
// returns answers from every session.
func (h *HistoryStore) Recent(ctx context.Context, sessionID string, limit int) ([]QARecord, error) {
	var records []QARecord
	err := h.recentQuery(&records, sessionID, limit).Scan(ctx)
	return records, err
}

func (h *HistoryStore) Close() error {
	return h.db.Close()
}
