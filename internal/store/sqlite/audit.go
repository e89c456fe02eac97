package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opsloom/codeterm/internal/store"
)

func (d *DB) InsertAuditRecord(ctx context.Context, r *store.AuditRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	params := normalizeJSON(r.ParamsRedacted, "{}")

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO audit_records
			(id, timestamp, user_email, repo_id, session_id, action, outcome, message, params_redacted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, formatTime(r.Timestamp), r.UserEmail, r.RepoID, r.SessionID,
		r.Action, r.Outcome, r.Message, params,
	)
	return err
}

func (d *DB) QueryAuditRecords(
	ctx context.Context, f store.AuditFilter,
) ([]store.AuditRecord, int, error) {
	where, args := buildAuditWhere(f)

	var total int
	countQ := "SELECT COUNT(*) FROM audit_records" + where
	if err := d.q.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	dataQ := `SELECT id, timestamp, user_email, repo_id, session_id, action, outcome, message, params_redacted
		FROM audit_records` + where + `
		ORDER BY timestamp DESC LIMIT ? OFFSET ?`
	dataArgs := append(append([]any{}, args...), limit, f.Offset)

	rows, err := d.q.QueryContext(ctx, dataQ, dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []store.AuditRecord
	for rows.Next() {
		r, err := scanAuditRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

func buildAuditWhere(f store.AuditFilter) (string, []any) {
	var conds []string
	var args []any
	if f.UserEmail != "" {
		conds = append(conds, "user_email = ?")
		args = append(args, f.UserEmail)
	}
	if f.RepoID != "" {
		conds = append(conds, "repo_id = ?")
		args = append(args, f.RepoID)
	}
	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, f.Action)
	}
	if !f.After.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, formatTime(f.After))
	}
	if !f.Before.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, formatTime(f.Before))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanAuditRow(row rowScanner) (*store.AuditRecord, error) {
	var r store.AuditRecord
	var ts, params string
	err := row.Scan(&r.ID, &ts, &r.UserEmail, &r.RepoID, &r.SessionID, &r.Action, &r.Outcome, &r.Message, &params)
	if err != nil {
		return nil, err
	}
	r.Timestamp = parseTime(ts)
	r.ParamsRedacted = []byte(params)
	return &r, nil
}
