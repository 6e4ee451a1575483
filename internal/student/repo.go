package student

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pkgerrors "github.com/pkg/errors"
)

const constraintStudentID = "students_student_id_key"

// PGRepository persists students in Postgres.
type PGRepository struct {
	db *sql.DB
}

func NewPGRepository(db *sql.DB) *PGRepository {
	return &PGRepository{db: db}
}

const studentColumns = `id, name, student_id, class, created_at, updated_at`

func scanStudent(row interface{ Scan(...any) error }) (Student, error) {
	var s Student
	err := row.Scan(&s.ID, &s.Name, &s.StudentID, &s.Class, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *PGRepository) ListStudents(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+studentColumns+` FROM students ORDER BY student_id`)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list students")
	}
	defer rows.Close()
	out := make([]Student, 0)
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "scan student")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PGRepository) CreateStudent(ctx context.Context, s Student) (Student, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, name, student_id, class, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.Name, s.StudentID, s.Class, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return Student{}, translate(err, "create student")
	}
	return s, nil
}

func (r *PGRepository) GetStudentByID(ctx context.Context, id string) (Student, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Student{}, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
	return one(row, "get student")
}

func (r *PGRepository) GetStudentByStudentID(ctx context.Context, studentID string) (Student, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE student_id = $1`, studentID)
	return one(row, "get student by student id")
}

func (r *PGRepository) GetStudentsByStudentIDs(ctx context.Context, studentIDs []string) (map[string]Student, error) {
	found := make(map[string]Student, len(studentIDs))
	if len(studentIDs) == 0 {
		return found, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+studentColumns+` FROM students WHERE student_id = ANY($1)`, studentIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "lookup students")
	}
	defer rows.Close()
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "scan student")
		}
		found[s.StudentID] = s
	}
	return found, rows.Err()
}

func (r *PGRepository) UpdateStudent(ctx context.Context, s Student) (Student, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE students SET name = $2, student_id = $3, class = $4, updated_at = $5
		WHERE id = $1
		RETURNING `+studentColumns,
		s.ID, s.Name, s.StudentID, s.Class, s.UpdatedAt)
	return one(row, "update student")
}

func (r *PGRepository) DeleteStudent(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return pkgerrors.Wrap(err, "delete student")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.Wrap(err, "delete student")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func one(row *sql.Row, op string) (Student, error) {
	s, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, ErrNotFound
		}
		return Student{}, translate(err, op)
	}
	return s, nil
}

func translate(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraintStudentID {
		return ErrStudentIDExists
	}
	return pkgerrors.Wrap(err, op)
}
