package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned for unknown history ids.
var ErrNotFound = errors.New("history entry not found")

// FileList is stored as a JSON array.
type FileList []string

func (f FileList) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(f))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (f *FileList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*f = FileList{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into FileList", src)
	}
	return json.Unmarshal(data, (*[]string)(f))
}

// Record is one answered question.
type Record struct {
	ID        string    `db:"id" json:"id"`
	Question  string    `db:"question" json:"question"`
	Class     string    `db:"class" json:"class"`
	Files     FileList  `db:"files" json:"files"`
	Tokens    int       `db:"tokens" json:"tokens"`
	Answer    string    `db:"answer" json:"answer"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// History persists records in sqlite.
type History struct {
	db *sqlx.DB
}

// OpenHistory opens (and creates) the database at dsn. ":memory:" is
// accepted for throwaway stores.
func OpenHistory(dsn string) (*History, error) {
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	h := &History{db: db}
	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return h, nil
}

func (h *History) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS history (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			class TEXT NOT NULL,
			files TEXT NOT NULL DEFAULT '[]',
			tokens INTEGER NOT NULL DEFAULT 0,
			answer TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := h.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Save inserts rec, filling in the id and timestamp when empty.
func (h *History) Save(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Files == nil {
		rec.Files = FileList{}
	}

	_, err := h.db.NamedExecContext(ctx,
		`INSERT INTO history (id, question, class, files, tokens, answer, created_at)
		 VALUES (:id, :question, :class, :files, :tokens, :answer, :created_at)`, rec)
	if err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// List returns the newest records first. A limit of zero or less returns all.
func (h *History) List(ctx context.Context, limit int) ([]Record, error) {
	q := `SELECT id, question, class, files, tokens, answer, created_at
	      FROM history ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	records := []Record{}
	if err := h.db.SelectContext(ctx, &records, q, args...); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return records, nil
}

func (h *History) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := h.db.GetContext(ctx, &rec,
		`SELECT id, question, class, files, tokens, answer, created_at FROM history WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return &rec, nil
}

func (h *History) Delete(ctx context.Context, id string) error {
	res, err := h.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear deletes every record and returns the count removed.
func (h *History) Clear(ctx context.Context) (int64, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM history`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	return res.RowsAffected()
}

func (h *History) Count(ctx context.Context) (int, error) {
	var n int
	if err := h.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM history`); err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}

func (h *History) Close() error {
	return h.db.Close()
}
