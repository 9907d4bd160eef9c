package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/hansard-crawler/internal/hansard"
)

// ReasonAlreadyProcessed marks a commit skipped because the file already has
// a session and force was not set.
const ReasonAlreadyProcessed = "already_processed"

// ProcessedPaths lists the file paths that already have a session.
func (s *Store) ProcessedPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file_path FROM sessions ORDER BY file_path`)
	if err != nil {
		return nil, fmt.Errorf("list processed paths: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan processed path: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list processed paths: %w", err)
	}
	return out, nil
}

// CommitDocument registers one extracted document and its statements in a
// single transaction. A repeated statement (same speaker and text within the
// session) is stored once and counted in DuplicatesSkipped. With Force set an
// existing session for the same path is replaced.
func (s *Store) CommitDocument(ctx context.Context, req hansard.CommitRequest) (hansard.CommitResult, error) {
	if req.FilePath == "" {
		return hansard.CommitResult{Status: hansard.CommitError, Reason: "missing_path"},
			fmt.Errorf("commit document: file path is required")
	}
	if req.Date.IsZero() {
		return hansard.CommitResult{Status: hansard.CommitError, Reason: "missing_date"},
			fmt.Errorf("commit document %s: date is required", req.FilePath)
	}
	period := req.Period
	if !period.Valid() {
		period = hansard.DefaultPeriod
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return hansard.CommitResult{Status: hansard.CommitError}, fmt.Errorf("begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM sessions WHERE file_path = ?`, req.FilePath).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return hansard.CommitResult{Status: hansard.CommitError}, fmt.Errorf("lookup session: %w", err)
	case !req.Force:
		return hansard.CommitResult{
			Status:    hansard.CommitSkipped,
			Reason:    ReasonAlreadyProcessed,
			SessionID: existing,
		}, nil
	default:
		if _, err := tx.ExecContext(ctx, `DELETE FROM statements WHERE session_id = ?`, existing); err != nil {
			return hansard.CommitResult{Status: hansard.CommitError}, fmt.Errorf("replace session statements: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, existing); err != nil {
			return hansard.CommitResult{Status: hansard.CommitError}, fmt.Errorf("replace session: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
INSERT INTO sessions (file_path, source_url, date, period_of_day, processed_at)
VALUES (?, ?, ?, ?, ?)`,
		req.FilePath,
		nullableString(req.SourceURL),
		req.Date.Format(hansard.DateLayout),
		string(period),
		s.now().Format(timestampLayout),
	)
	if err != nil {
		return hansard.CommitResult{Status: hansard.CommitError}, fmt.Errorf("insert session: %w", err)
	}
	sessionID, err := res.LastInsertId()
	if err != nil {
		return hansard.CommitResult{Status: hansard.CommitError}, fmt.Errorf("session id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO statements (session_id, speaker, text, page_number, bill_refs)
VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return hansard.CommitResult{Status: hansard.CommitError}, fmt.Errorf("prepare statements: %w", err)
	}
	defer stmt.Close()

	seen := make(map[[2]string]struct{}, len(req.Statements))
	duplicates := 0
	for _, st := range req.Statements {
		key := [2]string{st.Speaker, st.Text}
		if _, dup := seen[key]; dup {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
		refs, err := json.Marshal(billRefs(st.BillReferences))
		if err != nil {
			return hansard.CommitResult{Status: hansard.CommitError}, fmt.Errorf("marshal bill refs: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, sessionID, st.Speaker, st.Text, st.Page, string(refs)); err != nil {
			return hansard.CommitResult{Status: hansard.CommitError}, fmt.Errorf("insert statement: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE downloaded_pdfs SET session_id = ? WHERE file_path = ?`, sessionID, req.FilePath); err != nil {
		return hansard.CommitResult{Status: hansard.CommitError}, fmt.Errorf("link download: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return hansard.CommitResult{Status: hansard.CommitError}, fmt.Errorf("commit document: %w", err)
	}

	s.logger.Debug("document committed",
		zap.String("path", req.FilePath),
		zap.Int64("session_id", sessionID),
		zap.Int("statements", len(req.Statements)-duplicates),
		zap.Int("duplicates_skipped", duplicates),
	)
	return hansard.CommitResult{
		Status:            hansard.CommitSuccess,
		SessionID:         sessionID,
		DuplicatesSkipped: duplicates,
	}, nil
}

// StatementsForSession returns the stored statements of one session in
// insertion order.
func (s *Store) StatementsForSession(ctx context.Context, sessionID int64) ([]hansard.Statement, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT speaker, text, page_number, bill_refs FROM statements
WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	defer rows.Close()
	var out []hansard.Statement
	for rows.Next() {
		var (
			st   hansard.Statement
			page sql.NullInt64
			refs sql.NullString
		)
		if err := rows.Scan(&st.Speaker, &st.Text, &page, &refs); err != nil {
			return nil, fmt.Errorf("scan statement: %w", err)
		}
		st.Page = int(page.Int64)
		if refs.Valid && refs.String != "" {
			if err := json.Unmarshal([]byte(refs.String), &st.BillReferences); err != nil {
				return nil, fmt.Errorf("decode bill refs: %w", err)
			}
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	return out, nil
}

func billRefs(refs []string) []string {
	if refs == nil {
		return []string{}
	}
	return refs
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
