// Package memory keeps accounts, students and the attendance ledger in process memory.
// It backs tests and local runs without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"schoolattend/internal/account"
	"schoolattend/internal/attendance"
	"schoolattend/internal/auth"
	"schoolattend/internal/student"
)

// DB holds every table behind one lock, so cross-table reads see a consistent state.
type DB struct {
	mu       sync.RWMutex
	users    map[string]*account.User
	students map[string]*student.Student
	records  []attendance.Record

	// FailInsert, when set, rejects matching ledger rows. Used to exercise partial writes.
	FailInsert func(attendance.Record) error
}

func New() *DB {
	return &DB{
		users:    make(map[string]*account.User),
		students: make(map[string]*student.Student),
	}
}

// Accounts returns the account repository view.
func (db *DB) Accounts() account.Repository { return &accounts{db} }

// Students returns the student repository view.
func (db *DB) Students() student.Repository { return &students{db} }

// Ledger returns the attendance repository view.
func (db *DB) Ledger() attendance.Repository { return &ledger{db} }

// RecordCount returns the number of ledger rows.
func (db *DB) RecordCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.records)
}

// Records returns a copy of the ledger.
func (db *DB) Records() []attendance.Record {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]attendance.Record(nil), db.records...)
}

type accounts struct{ db *DB }

func (r *accounts) CountAdmins(_ context.Context) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.db.countAdmins(), nil
}

func (db *DB) countAdmins() int {
	n := 0
	for _, u := range db.users {
		if u.Role == auth.RoleAdmin {
			n++
		}
	}
	return n
}

func (r *accounts) CreateUser(_ context.Context, usr account.User) (account.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if usr.Role == auth.RoleAdmin && r.db.countAdmins() >= account.MaxAdmins {
		return account.User{}, account.ErrAdminLimit
	}
	for _, u := range r.db.users {
		if u.Email == usr.Email {
			return account.User{}, account.ErrEmailExists
		}
	}
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	r.db.users[usr.ID] = &usr
	return usr, nil
}

func (r *accounts) GetUserByID(_ context.Context, id string) (account.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if u, ok := r.db.users[id]; ok {
		return *u, nil
	}
	return account.User{}, account.ErrNotFound
}

func (r *accounts) GetUserByEmail(_ context.Context, email string) (account.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, u := range r.db.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return account.User{}, account.ErrNotFound
}

func (r *accounts) ListUsersByRole(_ context.Context, role auth.Role) ([]account.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]account.User, 0)
	for _, u := range r.db.users {
		if u.Role == role {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Email < out[j].Email
	})
	return out, nil
}

func (r *accounts) UpdateUser(_ context.Context, usr account.User) (account.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	orig, ok := r.db.users[usr.ID]
	if !ok {
		return account.User{}, account.ErrNotFound
	}
	for id, u := range r.db.users {
		if id != usr.ID && u.Email == usr.Email {
			return account.User{}, account.ErrEmailExists
		}
	}
	orig.Name = usr.Name
	orig.Email = usr.Email
	orig.PasswordHash = usr.PasswordHash
	orig.UpdatedAt = usr.UpdatedAt
	return *orig, nil
}

func (r *accounts) DeleteUser(_ context.Context, id string, role auth.Role) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok || u.Role != role {
		return account.ErrNotFound
	}
	delete(r.db.users, id)
	// marked_by is nulled like the postgres foreign key does
	for i := range r.db.records {
		if r.db.records[i].MarkedBy == id {
			r.db.records[i].MarkedBy = ""
		}
	}
	return nil
}

type students struct{ db *DB }

func (r *students) ListStudents(_ context.Context) ([]student.Student, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.db.sortedStudents(), nil
}

func (db *DB) sortedStudents() []student.Student {
	out := make([]student.Student, 0, len(db.students))
	for _, s := range db.students {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

func (r *students) CreateStudent(_ context.Context, s student.Student) (student.Student, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, o := range r.db.students {
		if o.StudentID == s.StudentID {
			return student.Student{}, student.ErrStudentIDExists
		}
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	r.db.students[s.ID] = &s
	return s, nil
}

func (r *students) GetStudentByID(_ context.Context, id string) (student.Student, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if s, ok := r.db.students[id]; ok {
		return *s, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (r *students) GetStudentByStudentID(_ context.Context, studentID string) (student.Student, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, s := range r.db.students {
		if s.StudentID == studentID {
			return *s, nil
		}
	}
	return student.Student{}, student.ErrNotFound
}

func (r *students) GetStudentsByStudentIDs(_ context.Context, studentIDs []string) (map[string]student.Student, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	want := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		want[id] = true
	}
	found := make(map[string]student.Student, len(studentIDs))
	for _, s := range r.db.students {
		if want[s.StudentID] {
			found[s.StudentID] = *s
		}
	}
	return found, nil
}

func (r *students) UpdateStudent(_ context.Context, s student.Student) (student.Student, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	orig, ok := r.db.students[s.ID]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	for id, o := range r.db.students {
		if id != s.ID && o.StudentID == s.StudentID {
			return student.Student{}, student.ErrStudentIDExists
		}
	}
	orig.Name = s.Name
	orig.StudentID = s.StudentID
	orig.Class = s.Class
	orig.UpdatedAt = s.UpdatedAt
	return *orig, nil
}

func (r *students) DeleteStudent(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.students[id]; !ok {
		return student.ErrNotFound
	}
	delete(r.db.students, id)
	return nil
}

type ledger struct{ db *DB }

func (r *ledger) InsertRecords(_ context.Context, recs []attendance.Record) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var (
		inserted int
		firstErr error
	)
	for _, rec := range recs {
		if r.db.FailInsert != nil {
			if err := r.db.FailInsert(rec); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		r.db.records = append(r.db.records, rec)
		inserted++
	}
	return inserted, firstErr
}

func (r *ledger) StudentHistory(_ context.Context, studentRef string) ([]attendance.HistoryEntry, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	type row struct {
		rec attendance.Record
		seq int
	}
	var rows []row
	for i, rec := range r.db.records {
		if rec.StudentRef == studentRef {
			rows = append(rows, row{rec: rec, seq: i})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].rec.Date.Equal(rows[j].rec.Date) {
			return rows[i].rec.Date.After(rows[j].rec.Date)
		}
		return rows[i].seq > rows[j].seq
	})

	history := make([]attendance.HistoryEntry, 0, len(rows))
	for _, rw := range rows {
		history = append(history, attendance.HistoryEntry{
			Date:     attendance.FormatDay(rw.rec.Date),
			Status:   rw.rec.Status,
			MarkedBy: r.db.userName(rw.rec.MarkedBy),
		})
	}
	return history, nil
}

func (r *ledger) RosterSummary(_ context.Context) ([]attendance.RosterEntry, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	counts := make(map[string]*attendance.Summary, len(r.db.students))
	for _, rec := range r.db.records {
		c, ok := counts[rec.StudentRef]
		if !ok {
			c = &attendance.Summary{}
			counts[rec.StudentRef] = c
		}
		c.Total++
		switch rec.Status {
		case attendance.Present:
			c.Present++
		case attendance.Absent:
			c.Absent++
		}
	}

	out := make([]attendance.RosterEntry, 0, len(r.db.students))
	for _, s := range r.db.sortedStudents() {
		e := attendance.RosterEntry{Student: s.Identity()}
		if c, ok := counts[s.ID]; ok {
			e.Summary = *c
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *ledger) RecordsOn(_ context.Context, day time.Time) ([]attendance.DayEntry, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]attendance.DayEntry, 0)
	for _, rec := range r.db.records {
		if !rec.Date.Equal(day) {
			continue
		}
		s, ok := r.db.students[rec.StudentRef]
		if !ok {
			continue
		}
		out = append(out, attendance.DayEntry{
			Student:    s.Identity(),
			Status:     rec.Status,
			MarkedBy:   r.db.userName(rec.MarkedBy),
			RecordedAt: rec.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Student.StudentID < out[j].Student.StudentID })
	return out, nil
}

func (db *DB) userName(id string) string {
	if u, ok := db.users[id]; ok {
		return u.Name
	}
	return ""
}
