package attendance

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"schoolattend/internal/student"
)

// PGRepository persists attendance data in Postgres.
type PGRepository struct {
	db *sql.DB
}

// NewPGRepository creates a repo.
func NewPGRepository(db *sql.DB) *PGRepository {
	return &PGRepository{db: db}
}

// InsertRecords inserts each record with its own statement outside a transaction,
// so one rejected row leaves the rest in place.
func (r *PGRepository) InsertRecords(ctx context.Context, recs []Record) (int, error) {
	var (
		inserted int
		firstErr error
	)
	for _, rec := range recs {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		var markedBy any
		if rec.MarkedBy != "" {
			markedBy = rec.MarkedBy
		}
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO attendance_records (id, student_ref, date, status, marked_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, rec.ID, rec.StudentRef, rec.Date, string(rec.Status), markedBy, rec.CreatedAt)
		if err != nil {
			if firstErr == nil {
				firstErr = pkgerrors.Wrapf(err, "insert attendance for %s", FormatDay(rec.Date))
			}
			continue
		}
		inserted++
	}
	return inserted, firstErr
}

func (r *PGRepository) StudentHistory(ctx context.Context, studentRef string) ([]HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.date, a.status, COALESCE(u.name, '')
		FROM attendance_records a
		LEFT JOIN users u ON u.id = a.marked_by
		WHERE a.student_ref = $1
		ORDER BY a.date DESC, a.seq DESC
	`, studentRef)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "student history")
	}
	defer rows.Close()

	history := make([]HistoryEntry, 0)
	for rows.Next() {
		var (
			day time.Time
			h   HistoryEntry
		)
		if err := rows.Scan(&day, &h.Status, &h.MarkedBy); err != nil {
			return nil, pkgerrors.Wrap(err, "scan history")
		}
		h.Date = FormatDay(day)
		history = append(history, h)
	}
	return history, rows.Err()
}

func (r *PGRepository) RosterSummary(ctx context.Context) ([]RosterEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.student_id, s.class,
			COUNT(a.id),
			COUNT(a.id) FILTER (WHERE a.status = 'present'),
			COUNT(a.id) FILTER (WHERE a.status = 'absent')
		FROM students s
		LEFT JOIN attendance_records a ON a.student_ref = s.id
		GROUP BY s.id, s.name, s.student_id, s.class
		ORDER BY s.student_id
	`)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "roster summary")
	}
	defer rows.Close()

	out := make([]RosterEntry, 0)
	for rows.Next() {
		var e RosterEntry
		if err := rows.Scan(&e.Student.ID, &e.Student.Name, &e.Student.StudentID, &e.Student.Class,
			&e.Summary.Total, &e.Summary.Present, &e.Summary.Absent); err != nil {
			return nil, pkgerrors.Wrap(err, "scan roster summary")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PGRepository) RecordsOn(ctx context.Context, day time.Time) ([]DayEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.student_id, s.class, a.status, COALESCE(u.name, ''), a.created_at
		FROM attendance_records a
		JOIN students s ON s.id = a.student_ref
		LEFT JOIN users u ON u.id = a.marked_by
		WHERE a.date = $1
		ORDER BY s.student_id, a.seq
	`, day)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "records on day")
	}
	defer rows.Close()

	out := make([]DayEntry, 0)
	for rows.Next() {
		var (
			e     DayEntry
			ident student.Identity
		)
		if err := rows.Scan(&ident.ID, &ident.Name, &ident.StudentID, &ident.Class, &e.Status, &e.MarkedBy, &e.RecordedAt); err != nil {
			return nil, pkgerrors.Wrap(err, "scan day entry")
		}
		e.Student = ident
		out = append(out, e)
	}
	return out, rows.Err()
}
