package state

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ArtifactStatus records how an artifact came to be.
type ArtifactStatus string

const (
	StatusGenerated   ArtifactStatus = "generated"
	StatusPlaceholder ArtifactStatus = "placeholder"
	StatusAdopted     ArtifactStatus = "adopted"
	StatusReviewed    ArtifactStatus = "reviewed"
)

// ArtifactKind groups ledger entries.
type ArtifactKind string

const (
	KindOutline  ArtifactKind = "outline"
	KindSection  ArtifactKind = "section"
	KindDocument ArtifactKind = "document"
	KindReview   ArtifactKind = "review"
)

// Artifact keys for the single-instance artifacts.
const (
	KeyOutline  = "outline"
	KeyDocument = "document"
	KeyReview   = "review"
)

// SectionKey returns the ledger key of a section artifact.
func SectionKey(slug string) string {
	return "section:" + slug
}

// Artifact is one ledger entry.
type Artifact struct {
	Key         string         `json:"key"`
	Kind        ArtifactKind   `json:"kind"`
	Path        string         `json:"path"`
	Status      ArtifactStatus `json:"status"`
	ContentHash string         `json:"content_hash"`
	RunID       string         `json:"run_id"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Run is one invocation of the pipeline.
type Run struct {
	ID           string     `json:"id"`
	Source       string     `json:"source"`
	OutputDir    string     `json:"output_dir"`
	Model        string     `json:"model"`
	Strategy     string     `json:"strategy"`
	DryRun       bool       `json:"dry_run"`
	Force        bool       `json:"force"`
	State        string     `json:"state"`
	Error        string     `json:"error"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	OracleCalls  int        `json:"oracle_calls"`
	InputTokens  int64      `json:"input_tokens"`
	OutputTokens int64      `json:"output_tokens"`
}

// NewRun returns a run with a fresh id, started now, in state INIT.
func NewRun(source, outputDir string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Source:    source,
		OutputDir: outputDir,
		State:     "INIT",
		StartedAt: time.Now(),
	}
}

// HashContent returns the hex SHA-256 of content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// CreateRun inserts a new run.
func (db *DB) CreateRun(r *Run) error {
	_, err := db.Exec(`
		INSERT INTO runs (id, source, output_dir, model, strategy, dry_run, force, state, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Source, r.OutputDir, r.Model, r.Strategy, boolToInt(r.DryRun), boolToInt(r.Force),
		r.State, r.Error, formatTime(r.StartedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRunState records a state transition for a run.
func (db *DB) UpdateRunState(id, state string) error {
	result, err := db.Exec(`UPDATE runs SET state = ? WHERE id = ?`, state, id)
	if err != nil {
		return fmt.Errorf("update run state: %w", err)
	}
	return expectOneRow(result, "run", id)
}

// FinishRun stores the final state, error, usage and finish time of a run.
func (db *DB) FinishRun(r *Run) error {
	now := time.Now()
	r.FinishedAt = &now

	result, err := db.Exec(`
		UPDATE runs
		SET strategy = ?, state = ?, error = ?, finished_at = ?,
			oracle_calls = ?, input_tokens = ?, output_tokens = ?
		WHERE id = ?
	`, r.Strategy, r.State, r.Error, formatTime(now), r.OracleCalls, r.InputTokens, r.OutputTokens, r.ID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return expectOneRow(result, "run", r.ID)
}

const runColumns = `id, source, output_dir, model, strategy, dry_run, force, state, error,
	started_at, finished_at, oracle_calls, input_tokens, output_tokens`

// LastRun returns the most recently started run, or nil if there is none.
func (db *DB) LastRun() (*Run, error) {
	row := db.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT 1`)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// ListRuns returns up to limit runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	rows, err := db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r             Run
		dryRun, force int
		startedAt     string
		finishedAt    sql.NullString
	)
	err := s.Scan(&r.ID, &r.Source, &r.OutputDir, &r.Model, &r.Strategy, &dryRun, &force,
		&r.State, &r.Error, &startedAt, &finishedAt, &r.OracleCalls, &r.InputTokens, &r.OutputTokens)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	r.DryRun = dryRun != 0
	r.Force = force != 0
	if r.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	r.FinishedAt = parseNullableTime(finishedAt)
	return &r, nil
}

// PutArtifact inserts or replaces a ledger entry. UpdatedAt is set to now.
func (db *DB) PutArtifact(a *Artifact) error {
	a.UpdatedAt = time.Now()
	_, err := db.Exec(`
		INSERT INTO artifacts (key, kind, path, status, content_hash, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			kind = excluded.kind,
			path = excluded.path,
			status = excluded.status,
			content_hash = excluded.content_hash,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at
	`, a.Key, string(a.Kind), a.Path, string(a.Status), a.ContentHash, a.RunID, formatTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put artifact %s: %w", a.Key, err)
	}
	return nil
}

// GetArtifact returns the entry for key, or nil if there is none.
func (db *DB) GetArtifact(key string) (*Artifact, error) {
	row := db.QueryRow(`
		SELECT key, kind, path, status, content_hash, run_id, updated_at
		FROM artifacts WHERE key = ?
	`, key)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// DeleteArtifact removes the entry for key. Missing keys are not an error.
func (db *DB) DeleteArtifact(key string) error {
	if _, err := db.Exec(`DELETE FROM artifacts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete artifact %s: %w", key, err)
	}
	return nil
}

// ListArtifacts returns all entries of kind ordered by key.
func (db *DB) ListArtifacts(kind ArtifactKind) ([]Artifact, error) {
	rows, err := db.Query(`
		SELECT key, kind, path, status, content_hash, run_id, updated_at
		FROM artifacts WHERE kind = ? ORDER BY key
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanArtifact(s scanner) (*Artifact, error) {
	var (
		a                    Artifact
		kind, status, update string
	)
	if err := s.Scan(&a.Key, &kind, &a.Path, &status, &a.ContentHash, &a.RunID, &update); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan artifact: %w", err)
	}
	a.Kind = ArtifactKind(kind)
	a.Status = ArtifactStatus(status)

	var err error
	if a.UpdatedAt, err = parseTime(update); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func expectOneRow(result sql.Result, what, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s not found", what, id)
	}
	return nil
}
