package store

import (
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/dhcgn/mailstore-extract/output"
)

var ErrHeaderMismatch = errors.New("csv header does not match the expected columns")

// LoadResult counts the rows of one batch after loading.
type LoadResult struct {
	BatchID               string
	Emails                int
	Attachments           int
	EmailsWithAttachments int
}

type table struct {
	staging string
	target  string
	columns []string
}

var (
	emailTable      = table{staging: "staging_emails", target: "emails", columns: output.EmailColumns}
	attachmentTable = table{staging: "staging_attachments", target: "attachments", columns: output.AttachmentColumns}

	integerColumns = map[string]bool{"date_epoch": true, "source_index": true, "file_size_bytes": true}
	booleanColumns = map[string]bool{"is_inline": true}
)

// LoadDir loads the CSV artifacts of an output directory. An empty batchID is
// taken from the directory's manifest. A missing attachments file is treated
// as a batch without attachments.
func (db *DB) LoadDir(ctx context.Context, dir, batchID string) (LoadResult, error) {
	if batchID == "" {
		m, err := output.ReadManifest(dir)
		if err != nil {
			return LoadResult{}, err
		}
		batchID = m.BatchID
	}
	if batchID == "" {
		return LoadResult{}, fmt.Errorf("batch id is empty")
	}

	emails, err := os.Open(filepath.Join(dir, output.EmailsCSV))
	if err != nil {
		return LoadResult{}, fmt.Errorf("open emails: %w", err)
	}
	defer emails.Close()

	var atts io.Reader
	f, err := os.Open(filepath.Join(dir, output.AttachmentsCSV))
	switch {
	case err == nil:
		defer f.Close()
		atts = f
	case errors.Is(err, os.ErrNotExist):
	default:
		return LoadResult{}, fmt.Errorf("open attachments: %w", err)
	}

	return db.LoadBatch(ctx, batchID, emails, atts)
}

// LoadBatch replaces the staged rows of batchID with the gzip CSV streams and
// upserts them into the core tables in one transaction. atts may be nil.
func (db *DB) LoadBatch(ctx context.Context, batchID string, emails, atts io.Reader) (LoadResult, error) {
	res := LoadResult{BatchID: batchID}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, t := range []table{emailTable, attachmentTable} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+t.staging+" WHERE batch_id = ?", batchID); err != nil {
			return res, fmt.Errorf("clear %s: %w", t.staging, err)
		}
	}

	if err := stage(ctx, tx, emailTable, batchID, emails); err != nil {
		return res, err
	}
	if atts != nil {
		if err := stage(ctx, tx, attachmentTable, batchID, atts); err != nil {
			return res, err
		}
	}

	for _, t := range []table{emailTable, attachmentTable} {
		if _, err := tx.ExecContext(ctx, upsertSQL(t), batchID); err != nil {
			return res, fmt.Errorf("upsert %s: %w", t.target, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE emails
		SET has_attachments = EXISTS (
			SELECT 1 FROM attachments a
			WHERE a.email_message_id = emails.id AND a.is_inline = 0
		)
		WHERE batch_id = ?`, batchID)
	if err != nil {
		return res, fmt.Errorf("update has_attachments: %w", err)
	}

	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM emails WHERE batch_id = ?", &res.Emails},
		{"SELECT COUNT(*) FROM attachments WHERE batch_id = ?", &res.Attachments},
		{"SELECT COUNT(*) FROM emails WHERE batch_id = ? AND has_attachments = 1", &res.EmailsWithAttachments},
	}
	for _, c := range counts {
		if err := tx.QueryRowContext(ctx, c.query, batchID).Scan(c.dst); err != nil {
			return res, fmt.Errorf("count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

func stage(ctx context.Context, tx *sql.Tx, t table, batchID string, r io.Reader) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("%s: %w", t.target, err)
	}
	defer gz.Close()

	cr := csv.NewReader(gz)
	cr.FieldsPerRecord = len(t.columns)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("%s header: %w", t.target, err)
	}
	if !slices.Equal(header, t.columns) {
		return fmt.Errorf("%s: %w", t.target, ErrHeaderMismatch)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(t.columns)), ",")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.staging, strings.Join(t.columns, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("prepare %s: %w", t.staging, err)
	}
	defer stmt.Close()

	batchCol := slices.Index(t.columns, "batch_id")
	args := make([]any, len(t.columns))
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", t.target, err)
		}
		if record[batchCol] != batchID {
			return fmt.Errorf("%s line %d: batch id %q does not match %q", t.target, line, record[batchCol], batchID)
		}
		for i, col := range t.columns {
			if args[i], err = convert(col, record[i]); err != nil {
				return fmt.Errorf("%s line %d: %w", t.target, line, err)
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s line %d: %w", t.staging, line, err)
		}
	}
}

// convert maps a CSV field to its column value. Empty fields are NULL.
func convert(col, value string) (any, error) {
	if value == "" {
		return nil, nil
	}
	switch {
	case integerColumns[col]:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		return n, nil
	case booleanColumns[col]:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		if b {
			return 1, nil
		}
		return 0, nil
	}
	return value, nil
}

func upsertSQL(t table) string {
	cols := strings.Join(t.columns, ", ")
	var set []string
	for _, c := range t.columns {
		if c != "id" {
			set = append(set, c+" = excluded."+c)
		}
	}
	set = append(set, "updated_at = CURRENT_TIMESTAMP")
	// The WHERE clause keeps SQLite from reading ON CONFLICT as a join constraint.
	return fmt.Sprintf(`INSERT INTO %s (%s)
		SELECT %s FROM %s WHERE batch_id = ?
		ON CONFLICT(id) DO UPDATE SET %s`,
		t.target, cols, cols, t.staging, strings.Join(set, ", "))
}
