package student

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"schoolattend/internal/apperr"
)

const (
	msgNotFound = "Student not found"
	msgIDExists = "Student ID already exists"
)

// Repository persists the student directory.
type Repository interface {
	ListStudents(ctx context.Context) ([]Student, error)
	CreateStudent(ctx context.Context, s Student) (Student, error)
	GetStudentByID(ctx context.Context, id string) (Student, error)
	GetStudentByStudentID(ctx context.Context, studentID string) (Student, error)
	// GetStudentsByStudentIDs returns the students found, keyed by student id.
	GetStudentsByStudentIDs(ctx context.Context, studentIDs []string) (map[string]Student, error)
	UpdateStudent(ctx context.Context, s Student) (Student, error)
	DeleteStudent(ctx context.Context, id string) error
}

// ChangeNotifier is told when the directory changes.
type ChangeNotifier interface {
	DirectoryChanged(ctx context.Context)
}

type Service struct {
	repo     Repository
	notifier ChangeNotifier
	log      *zap.Logger
}

func NewService(repo Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, log: log}
}

// OnChange registers n to be notified after every directory mutation.
func (s *Service) OnChange(n ChangeNotifier) {
	s.notifier = n
}

func (s *Service) List(ctx context.Context) ([]Student, error) {
	return s.repo.ListStudents(ctx)
}

func (s *Service) GetByStudentID(ctx context.Context, studentID string) (Student, error) {
	st, err := s.repo.GetStudentByStudentID(ctx, strings.TrimSpace(studentID))
	if errors.Is(err, ErrNotFound) {
		return Student{}, apperr.Missing(msgNotFound)
	}
	return st, err
}

// Lookup resolves student ids in one round trip. Missing ids are absent from the map.
func (s *Service) Lookup(ctx context.Context, studentIDs []string) (map[string]Student, error) {
	return s.repo.GetStudentsByStudentIDs(ctx, studentIDs)
}

func (s *Service) Create(ctx context.Context, in Input) (Student, error) {
	in, err := clean(in)
	if err != nil {
		return Student{}, err
	}
	_, err = s.repo.GetStudentByStudentID(ctx, in.StudentID)
	if err == nil {
		return Student{}, apperr.Duplicate(msgIDExists)
	}
	if !errors.Is(err, ErrNotFound) {
		return Student{}, err
	}

	now := time.Now().UTC()
	st, err := s.repo.CreateStudent(ctx, Student{
		Name:      in.Name,
		StudentID: in.StudentID,
		Class:     in.Class,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if errors.Is(err, ErrStudentIDExists) {
		return Student{}, apperr.Duplicate(msgIDExists)
	}
	if err != nil {
		return Student{}, err
	}
	s.log.Info("student created", zap.String("student_id", st.StudentID))
	s.changed(ctx)
	return st, nil
}

func (s *Service) Update(ctx context.Context, id string, in Input) (Student, error) {
	in, err := clean(in)
	if err != nil {
		return Student{}, err
	}
	st, err := s.repo.GetStudentByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Student{}, apperr.Missing(msgNotFound)
	}
	if err != nil {
		return Student{}, err
	}
	if in.StudentID != st.StudentID {
		other, err := s.repo.GetStudentByStudentID(ctx, in.StudentID)
		if err == nil && other.ID != st.ID {
			return Student{}, apperr.Duplicate(msgIDExists)
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Student{}, err
		}
	}

	st.Name = in.Name
	st.StudentID = in.StudentID
	st.Class = in.Class
	st.UpdatedAt = time.Now().UTC()
	updated, err := s.repo.UpdateStudent(ctx, st)
	switch {
	case errors.Is(err, ErrStudentIDExists):
		return Student{}, apperr.Duplicate(msgIDExists)
	case errors.Is(err, ErrNotFound):
		return Student{}, apperr.Missing(msgNotFound)
	case err != nil:
		return Student{}, err
	}
	s.changed(ctx)
	return updated, nil
}

// Delete removes the directory entry. Attendance records of the student are kept.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.repo.DeleteStudent(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return apperr.Missing(msgNotFound)
	}
	if err != nil {
		return err
	}
	s.log.Info("student deleted", zap.String("id", id))
	s.changed(ctx)
	return nil
}

func (s *Service) changed(ctx context.Context) {
	if s.notifier != nil {
		s.notifier.DirectoryChanged(ctx)
	}
}

func clean(in Input) (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.StudentID = strings.TrimSpace(in.StudentID)
	in.Class = strings.TrimSpace(in.Class)
	if in.Name == "" || in.StudentID == "" || in.Class == "" {
		return Input{}, apperr.Invalid("Name, student ID and class are required")
	}
	return in, nil
}
