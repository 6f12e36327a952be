package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	scope            TEXT NOT NULL,
	model            TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	started_at       TEXT NOT NULL,
	finished_at      TEXT,
	total_layers     INTEGER NOT NULL DEFAULT 0,
	layers_completed INTEGER NOT NULL DEFAULT 0,
	guides_updated   INTEGER NOT NULL DEFAULT 0,
	guides_unchanged INTEGER NOT NULL DEFAULT 0,
	guides_failed    INTEGER NOT NULL DEFAULT 0,
	duration_ms      INTEGER NOT NULL DEFAULT 0,
	meta_json        TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

CREATE TABLE IF NOT EXISTS run_guides (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	guide_path   TEXT NOT NULL,
	layer_index  INTEGER NOT NULL,
	status       TEXT NOT NULL,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	diff_summary TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	recorded_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_guides_run ON run_guides(run_id, layer_index);

CREATE TABLE IF NOT EXISTS layer_summaries (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	layer_index INTEGER NOT NULL,
	guide_path  TEXT NOT NULL,
	diff        TEXT NOT NULL,
	PRIMARY KEY (run_id, layer_index, guide_path)
);

CREATE TABLE IF NOT EXISTS guides (
	path        TEXT PRIMARY KEY,
	parent_path TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'active',
	last_hash   TEXT NOT NULL DEFAULT '',
	updated_at  TEXT NOT NULL
);
`

// SQLiteStore implements Store on a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path. ":memory:" keeps the
// database in process memory.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// a single connection serialises writers and keeps :memory: coherent
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run NewRun) (string, error) {
	id := uuid.NewString()
	meta, err := json.Marshal(nonNilMeta(run.Meta))
	if err != nil {
		return "", fmt.Errorf("store: encode meta: %w", err)
	}
	started := run.StartedAt
	if started.IsZero() {
		started = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, scope, model, status, started_at, total_layers, meta_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, run.Scope, run.Model, string(RunRunning), formatTime(started), run.TotalLayers, string(meta),
	)
	if err != nil {
		return "", fmt.Errorf("store: create run: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) AppendGuideOutcome(ctx context.Context, o GuideOutcome) error {
	recorded := o.RecordedAt
	if recorded.IsZero() {
		recorded = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_guides (run_id, guide_path, layer_index, status, duration_ms, diff_summary, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.GuidePath, o.LayerIndex, string(o.Status), o.Duration.Milliseconds(), o.DiffSummary, o.Error, formatTime(recorded),
	)
	if err != nil {
		return fmt.Errorf("store: append outcome for %s: %w", o.GuidePath, err)
	}
	return nil
}

func (s *SQLiteStore) SaveLayerSummary(ctx context.Context, runID string, layer int, summary LayerSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM layer_summaries WHERE run_id = ? AND layer_index = ?`, runID, layer); err != nil {
		return fmt.Errorf("store: clear layer summary: %w", err)
	}
	for path, diff := range summary {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO layer_summaries (run_id, layer_index, guide_path, diff) VALUES (?, ?, ?, ?)`,
			runID, layer, path, diff); err != nil {
			return fmt.Errorf("store: save layer summary: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET layers_completed = MAX(layers_completed, ?) WHERE id = ?`, layer+1, runID); err != nil {
		return fmt.Errorf("store: advance run: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) FinalizeRun(ctx context.Context, runID string, status RunStatus, c Counts, finishedAt time.Time) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	duration := finishedAt.Sub(run.StartedAt).Milliseconds()

	_, err = s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, total_layers = ?, layers_completed = ?,
		 guides_updated = ?, guides_unchanged = ?, guides_failed = ?, duration_ms = ?
		 WHERE id = ?`,
		string(status), formatTime(finishedAt), c.TotalLayers, c.LayersCompleted,
		c.Updated, c.Unchanged, c.Failed, duration, runID,
	)
	if err != nil {
		return fmt.Errorf("store: finalize run: %w", err)
	}
	return nil
}

const runColumns = `id, scope, model, status, started_at, finished_at, total_layers, layers_completed,
	guides_updated, guides_unchanged, guides_failed, duration_ms, meta_json`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, runID string) ([]GuideOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, guide_path, layer_index, status, duration_ms, diff_summary, error, recorded_at
		 FROM run_guides WHERE run_id = ? ORDER BY layer_index, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: list outcomes: %w", err)
	}
	defer rows.Close()

	var out []GuideOutcome
	for rows.Next() {
		var (
			o        GuideOutcome
			status   string
			ms       int64
			recorded string
		)
		if err := rows.Scan(&o.RunID, &o.GuidePath, &o.LayerIndex, &status, &ms, &o.DiffSummary, &o.Error, &recorded); err != nil {
			return nil, fmt.Errorf("store: scan outcome: %w", err)
		}
		o.Status = OutcomeStatus(status)
		o.Duration = time.Duration(ms) * time.Millisecond
		o.RecordedAt = parseTime(recorded)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LayerSummary(ctx context.Context, runID string, layer int) (LayerSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT guide_path, diff FROM layer_summaries WHERE run_id = ? AND layer_index = ?`, runID, layer)
	if err != nil {
		return nil, fmt.Errorf("store: layer summary: %w", err)
	}
	defer rows.Close()

	summary := LayerSummary{}
	for rows.Next() {
		var path, diff string
		if err := rows.Scan(&path, &diff); err != nil {
			return nil, fmt.Errorf("store: scan layer summary: %w", err)
		}
		summary[path] = diff
	}
	return summary, rows.Err()
}

func (s *SQLiteStore) UpsertGuide(ctx context.Context, g Guide) error {
	updated := g.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	if g.Status == "" {
		g.Status = "active"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guides (path, parent_path, status, last_hash, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET parent_path = excluded.parent_path, status = excluded.status,
		 last_hash = excluded.last_hash, updated_at = excluded.updated_at`,
		g.Path, g.ParentPath, g.Status, g.LastHash, formatTime(updated),
	)
	if err != nil {
		return fmt.Errorf("store: upsert guide %s: %w", g.Path, err)
	}
	return nil
}

func (s *SQLiteStore) ListGuides(ctx context.Context) ([]Guide, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, parent_path, status, last_hash, updated_at FROM guides ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("store: list guides: %w", err)
	}
	defer rows.Close()

	var out []Guide
	for rows.Next() {
		var g Guide
		var updated string
		if err := rows.Scan(&g.Path, &g.ParentPath, &g.Status, &g.LastHash, &updated); err != nil {
			return nil, fmt.Errorf("store: scan guide: %w", err)
		}
		g.UpdatedAt = parseTime(updated)
		out = append(out, g)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r        Run
		status   string
		started  string
		finished sql.NullString
		meta     string
	)
	err := sc.Scan(&r.ID, &r.Scope, &r.Model, &status, &started, &finished, &r.TotalLayers, &r.LayersCompleted,
		&r.GuidesUpdated, &r.GuidesUnchanged, &r.GuidesFailed, &r.DurationMS, &meta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan run: %w", err)
	}
	r.Status = RunStatus(status)
	r.StartedAt = parseTime(started)
	if finished.Valid && finished.String != "" {
		t := parseTime(finished.String)
		r.FinishedAt = &t
	}
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &r.Meta); err != nil {
			return nil, fmt.Errorf("store: decode meta: %w", err)
		}
	}
	return &r, nil
}

// fixed width so ORDER BY started_at sorts chronologically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nonNilMeta(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

var _ Store = (*SQLiteStore)(nil)
