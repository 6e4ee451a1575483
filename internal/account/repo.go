package account

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pkgerrors "github.com/pkg/errors"

	"schoolattend/internal/auth"
)

const (
	codeUniqueViolation = "23505"
	codeCheckViolation  = "23514"

	constraintEmail     = "users_email_key"
	constraintAdminSlot = "users_admin_slot_key"
	constraintSlotRole  = "users_admin_slot_role_check"
)

// PGRepository persists accounts in Postgres.
type PGRepository struct {
	db *sql.DB
}

func NewPGRepository(db *sql.DB) *PGRepository {
	return &PGRepository{db: db}
}

const userColumns = `id, name, email, password_hash, role, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *PGRepository) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = 'admin'`).Scan(&n)
	return n, pkgerrors.Wrap(err, "count admins")
}

// CreateUser inserts usr. Admins claim the lowest free admin slot; the slot column is
// unique and limited to MaxAdmins values, so concurrent registrations cannot exceed it.
func (r *PGRepository) CreateUser(ctx context.Context, usr User) (User, error) {
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, admin_slot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::text,
			CASE WHEN $5::text = 'admin' THEN (
				SELECT s FROM generate_series(1, $7::int) AS s
				WHERE s NOT IN (SELECT admin_slot FROM users WHERE admin_slot IS NOT NULL)
				ORDER BY s LIMIT 1
			) END,
			$6, $6)
	`, usr.ID, usr.Name, usr.Email, usr.PasswordHash, string(usr.Role), usr.CreatedAt, MaxAdmins)
	if err != nil {
		return User{}, translate(err, "create user")
	}
	return usr, nil
}

func (r *PGRepository) GetUserByID(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return r.one(row, "get user")
}

func (r *PGRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return r.one(row, "get user by email")
}

func (r *PGRepository) ListUsersByRole(ctx context.Context, role auth.Role) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY name, email`, string(role))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list users")
	}
	defer rows.Close()
	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "scan user")
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *PGRepository) UpdateUser(ctx context.Context, usr User) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE users SET name = $2, email = $3, password_hash = $4, updated_at = $5
		WHERE id = $1
		RETURNING `+userColumns,
		usr.ID, usr.Name, usr.Email, usr.PasswordHash, usr.UpdatedAt)
	return r.one(row, "update user")
}

func (r *PGRepository) DeleteUser(ctx context.Context, id string, role auth.Role) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1 AND role = $2`, id, string(role))
	if err != nil {
		return pkgerrors.Wrap(err, "delete user")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.Wrap(err, "delete user")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) one(row *sql.Row, op string) (User, error) {
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, translate(err, op)
	}
	return u, nil
}

func translate(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == constraintEmail:
			return ErrEmailExists
		case pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == constraintAdminSlot,
			pgErr.Code == codeCheckViolation && pgErr.ConstraintName == constraintSlotRole:
			return ErrAdminLimit
		}
	}
	return pkgerrors.Wrap(err, op)
}
