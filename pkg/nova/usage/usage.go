// Package usage records token consumption per completion in a local SQLite
// database, so spend can be inspected without trusting provider dashboards.
package usage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS completions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_completions_model ON completions(model);
`

// Tracker persists per-completion token counts.
type Tracker struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the usage database at path.
func Open(path string, logger *slog.Logger) (*Tracker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating usage folder: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening usage database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing usage schema: %w", err)
	}
	return &Tracker{db: db, logger: logger.With("component", "usage")}, nil
}

// Close releases the database handle.
func (t *Tracker) Close() error { return t.db.Close() }

// Record stores the token counts of one completion. Failures are logged,
// not surfaced: usage accounting never blocks a reply.
func (t *Tracker) Record(model string, promptTokens, completionTokens int) {
	_, err := t.db.Exec(
		`INSERT INTO completions (recorded_at, model, prompt_tokens, completion_tokens) VALUES (?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339),
		model,
		promptTokens,
		completionTokens,
	)
	if err != nil {
		t.logger.Warn("recording usage", "model", model, "error", err)
	}
}

// ModelTotals is the aggregate spend for one model.
type ModelTotals struct {
	Model            string `json:"model"`
	Completions      int    `json:"completions"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// Totals aggregates token counts per model, largest spend first.
func (t *Tracker) Totals() ([]ModelTotals, error) {
	rows, err := t.db.Query(`
		SELECT model, COUNT(*), SUM(prompt_tokens), SUM(completion_tokens)
		FROM completions
		GROUP BY model
		ORDER BY SUM(prompt_tokens) + SUM(completion_tokens) DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying usage totals: %w", err)
	}
	defer rows.Close()

	var out []ModelTotals
	for rows.Next() {
		var m ModelTotals
		if err := rows.Scan(&m.Model, &m.Completions, &m.PromptTokens, &m.CompletionTokens); err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PruneBefore deletes rows recorded before the cutoff and reports how many
// went away.
func (t *Tracker) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := t.db.Exec(`DELETE FROM completions WHERE recorded_at < ?`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("pruning usage rows: %w", err)
	}
	return res.RowsAffected()
}
