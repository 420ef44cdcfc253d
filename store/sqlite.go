// ABOUTME: SQLite-backed archive of finalized messages keyed by ULID.
// ABOUTME: Rows keep the summary columns queryable and the full message as JSON.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/2389-research/stitch/llm"
)

// ErrNotFound is returned by Get when no record has the requested id.
var ErrNotFound = errors.New("message not found")

// Record is one archived message.
type Record struct {
	ID        ulid.ULID    `json:"id" yaml:"id"`
	CreatedAt time.Time    `json:"created_at" yaml:"created_at"`
	Source    string       `json:"source,omitempty" yaml:"source,omitempty"`
	Message   *llm.Message `json:"message" yaml:"message"`
}

// Store persists finalized messages. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists.
// Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			source TEXT NOT NULL,
			model TEXT NOT NULL,
			finish_reason TEXT NOT NULL,
			tool_calls INTEGER NOT NULL,
			prompt_tokens INTEGER NOT NULL,
			completion_tokens INTEGER NOT NULL,
			body TEXT NOT NULL
		);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save archives msg under a new ULID and returns the stored record.
func (s *Store) Save(ctx context.Context, msg *llm.Message, source string) (Record, error) {
	if msg == nil {
		return Record{}, errors.New("save: nil message")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return Record{}, fmt.Errorf("encode message: %w", err)
	}

	rec := Record{
		ID:        ulid.Make(),
		CreatedAt: time.Now().UTC(),
		Source:    source,
		Message:   msg,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, created_at, source, model, finish_reason, tool_calls,
			prompt_tokens, completion_tokens, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(),
		rec.CreatedAt.Format(time.RFC3339Nano),
		source,
		msg.Model,
		string(msg.FinishReason),
		len(msg.ToolCalls),
		msg.Usage.PromptTokens,
		msg.Usage.CompletionTokens,
		string(body),
	)
	if err != nil {
		return Record{}, fmt.Errorf("insert message: %w", err)
	}
	return rec, nil
}

// Get returns the record with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id ulid.ULID) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, source, body FROM messages WHERE id = ?`, id.String())
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// List returns up to limit records, newest first. A limit of zero or less
// returns every record.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, source, body FROM messages ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var idStr, created, body string
	var rec Record
	if err := sc.Scan(&idStr, &created, &rec.Source, &body); err != nil {
		return Record{}, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return Record{}, fmt.Errorf("parse id %q: %w", idStr, err)
	}
	rec.ID = id
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Record{}, fmt.Errorf("parse created_at for %s: %w", idStr, err)
	}
	rec.Message = &llm.Message{}
	if err := json.Unmarshal([]byte(body), rec.Message); err != nil {
		return Record{}, fmt.Errorf("decode message %s: %w", idStr, err)
	}
	return rec, nil
}
