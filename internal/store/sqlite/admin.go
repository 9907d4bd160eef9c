package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/hansard-crawler/internal/hansard"
)

const backupLayout = "20060102_150405"

// Backup snapshots the database into dir as hansard_<YYYYMMDD_HHMMSS>.db and
// returns the written path. An existing snapshot is never overwritten.
func (s *Store) Backup(ctx context.Context, dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("backup: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	stem := "hansard_" + s.now().Format(backupLayout)
	target := filepath.Join(dir, stem+".db")
	for n := 2; ; n++ {
		_, err := os.Stat(target)
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("stat backup target: %w", err)
		}
		target = filepath.Join(dir, fmt.Sprintf("%s_%d.db", stem, n))
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, target); err != nil {
		return "", fmt.Errorf("backup database: %w", err)
	}
	s.logger.Info("database backed up", zap.String("path", target))
	return target, nil
}

// CleanIngested deletes sessions and statements. The download tracking table
// is kept; its session links are cleared.
func (s *Store) CleanIngested(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clean: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, q := range []string{
		`DELETE FROM statements`,
		`DELETE FROM sessions`,
		`UPDATE downloaded_pdfs SET session_id = NULL`,
	} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("clean ingested: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clean: %w", err)
	}
	s.logger.Info("ingested tables cleaned")
	return nil
}

// QualityReport runs the read-only aggregate checks. topN bounds both the
// speaker ranking and the listed duplicate groups.
func (s *Store) QualityReport(ctx context.Context, topN int) (hansard.QualityReport, error) {
	if topN <= 0 {
		topN = 10
	}
	report := hansard.QualityReport{GeneratedAt: s.now()}
	counts := []struct {
		dst   *int
		query string
	}{
		{&report.Sessions, `SELECT COUNT(*) FROM sessions`},
		{&report.Statements, `SELECT COUNT(*) FROM statements`},
		{&report.Speakers, `SELECT COUNT(DISTINCT speaker) FROM statements`},
		{&report.DuplicateGroups, `SELECT COUNT(*) FROM (
			SELECT 1 FROM statements GROUP BY speaker, session_id, text HAVING COUNT(*) > 1)`},
		{&report.EmptySessions, `SELECT COUNT(*) FROM sessions s
			WHERE NOT EXISTS (SELECT 1 FROM statements st WHERE st.session_id = s.id)`},
		{&report.UnlinkedDownloads, `SELECT COUNT(*) FROM downloaded_pdfs WHERE session_id IS NULL`},
	}
	for _, c := range counts {
		n, err := s.count(ctx, c.query)
		if err != nil {
			return report, fmt.Errorf("quality report: %w", err)
		}
		*c.dst = n
	}

	top, err := s.db.QueryContext(ctx, `
SELECT speaker, COUNT(*) AS n FROM statements
GROUP BY speaker ORDER BY n DESC, speaker ASC LIMIT ?`, topN)
	if err != nil {
		return report, fmt.Errorf("top speakers: %w", err)
	}
	for top.Next() {
		var sc hansard.SpeakerCount
		if err := top.Scan(&sc.Speaker, &sc.Statements); err != nil {
			_ = top.Close()
			return report, fmt.Errorf("scan top speaker: %w", err)
		}
		report.TopSpeakers = append(report.TopSpeakers, sc)
	}
	_ = top.Close()
	if err := top.Err(); err != nil {
		return report, fmt.Errorf("top speakers: %w", err)
	}

	dups, err := s.db.QueryContext(ctx, `
SELECT speaker, session_id, COUNT(*) AS n FROM statements
GROUP BY speaker, session_id, text HAVING n > 1
ORDER BY n DESC, speaker ASC, session_id ASC LIMIT ?`, topN)
	if err != nil {
		return report, fmt.Errorf("duplicate statements: %w", err)
	}
	defer dups.Close()
	for dups.Next() {
		var g hansard.DuplicateGroup
		if err := dups.Scan(&g.Speaker, &g.SessionID, &g.Count); err != nil {
			return report, fmt.Errorf("scan duplicate group: %w", err)
		}
		report.Duplicates = append(report.Duplicates, g)
	}
	if err := dups.Err(); err != nil {
		return report, fmt.Errorf("duplicate statements: %w", err)
	}
	return report, nil
}
