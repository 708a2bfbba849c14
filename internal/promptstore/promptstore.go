// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

// Package promptstore persists the last initial prompt used per loop, so a
// restarted client can prefill the run dialog.
package promptstore

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tandem-dev/tandem/internal/session"
	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

// Compile-time interface check.
var _ session.PromptStore = (*Store)(nil)

// Store keeps loop prompts in a single SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the prompt database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, tanderr.Wrap(err, tanderr.CodeStoreDatabaseFailure, "opening prompt db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, tanderr.Wrap(err, tanderr.CodeStoreDatabaseFailure, "pinging prompt db")
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, tanderr.Wrap(err, tanderr.CodeStoreDatabaseFailure, "migrating prompt db")
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS loop_prompts (
	loop_id    TEXT PRIMARY KEY,
	prompt     TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`
	_, err := db.Exec(ddl)
	return err
}

// Prompt returns the saved prompt for the loop.
func (s *Store) Prompt(loopID string) (string, error) {
	var prompt string
	err := s.db.QueryRow(`SELECT prompt FROM loop_prompts WHERE loop_id = ?`, loopID).Scan(&prompt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", tanderr.New(tanderr.CodeStorePromptNotFound, "no prompt saved", tanderr.FieldLoopID(loopID))
	}
	if err != nil {
		return "", tanderr.Wrap(err, tanderr.CodeStoreDatabaseFailure, "reading prompt", tanderr.FieldLoopID(loopID))
	}
	return prompt, nil
}

// SavePrompt stores (or replaces) the prompt for the loop.
func (s *Store) SavePrompt(loopID, prompt string) error {
	_, err := s.db.Exec(`
INSERT INTO loop_prompts (loop_id, prompt, updated_at) VALUES (?, ?, ?)
ON CONFLICT(loop_id) DO UPDATE SET prompt = excluded.prompt, updated_at = excluded.updated_at`,
		loopID, prompt, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return tanderr.Wrap(err, tanderr.CodeStoreDatabaseFailure, "saving prompt", tanderr.FieldLoopID(loopID))
	}
	return nil
}

// DeletePrompt removes the saved prompt for the loop. Deleting a loop with no
// saved prompt is not an error.
func (s *Store) DeletePrompt(loopID string) error {
	_, err := s.db.Exec(`DELETE FROM loop_prompts WHERE loop_id = ?`, loopID)
	if err != nil {
		return tanderr.Wrap(err, tanderr.CodeStoreDatabaseFailure, "deleting prompt", tanderr.FieldLoopID(loopID))
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
