package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"schoolattend/internal/apperr"
	"schoolattend/internal/auth"
	"schoolattend/internal/cache"
	"schoolattend/internal/metrics"
)

const (
	msgAdminOnly       = "Only admin registration is allowed"
	msgInvalidLogin    = "Invalid credentials"
	msgEmailExists     = "Email already exists"
	msgTeacherNotFound = "Teacher not found"
)

var msgAdminLimit = fmt.Sprintf("Maximum number of admin accounts (%d) reached", MaxAdmins)

// Repository persists user accounts. CreateUser enforces the admin limit and email
// uniqueness itself, returning ErrAdminLimit or ErrEmailExists.
type Repository interface {
	CountAdmins(ctx context.Context) (int, error)
	CreateUser(ctx context.Context, usr User) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsersByRole(ctx context.Context, role auth.Role) ([]User, error)
	UpdateUser(ctx context.Context, usr User) (User, error)
	DeleteUser(ctx context.Context, id string, role auth.Role) error
}

// TokenConfig controls issued bearer tokens.
type TokenConfig struct {
	Issuer     string
	SigningKey string
	TTL        time.Duration
}

// Service manages admin and teacher accounts.
type Service struct {
	repo     Repository
	cache    cache.Store
	cacheTTL time.Duration
	tokens   TokenConfig
	log      *zap.Logger
}

func NewService(repo Repository, store cache.Store, cacheTTL time.Duration, tokens TokenConfig, log *zap.Logger) *Service {
	if store == nil {
		store = cache.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, cache: store, cacheTTL: cacheTTL, tokens: tokens, log: log}
}

// CheckRegistrationRole rejects roles that open registration cannot create.
func CheckRegistrationRole(role auth.Role) error {
	if role != auth.RoleAdmin {
		return apperr.Denied(msgAdminOnly)
	}
	return nil
}

// Register creates an admin account through open registration.
func (s *Service) Register(ctx context.Context, nu NewUser) (Session, error) {
	if err := CheckRegistrationRole(nu.Role); err != nil {
		return Session{}, err
	}
	count, err := s.repo.CountAdmins(ctx)
	if err != nil {
		return Session{}, err
	}
	if count >= MaxAdmins {
		return Session{}, apperr.Denied(msgAdminLimit)
	}
	usr, err := s.create(ctx, nu.Name, nu.Email, nu.Password, auth.RoleAdmin)
	if err != nil {
		return Session{}, err
	}
	s.log.Info("admin registered", zap.String("user_id", usr.ID), zap.Int("admins", count+1))
	return s.session(usr)
}

// Login verifies credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	usr, err := s.repo.GetUserByEmail(ctx, cleanEmail(email))
	if errors.Is(err, ErrNotFound) {
		return Session{}, apperr.Unauthorized(msgInvalidLogin)
	}
	if err != nil {
		return Session{}, err
	}
	if !usr.CheckPassword(password) {
		return Session{}, apperr.Unauthorized(msgInvalidLogin)
	}
	return s.session(usr)
}

// Resolve loads the principal for a token subject.
func (s *Service) Resolve(ctx context.Context, id string) (auth.Principal, error) {
	key := userKey(id)
	var p auth.Principal
	hit, err := s.cache.Get(ctx, key, &p)
	if err != nil {
		s.log.Warn("user cache get failed", zap.String("user_id", id), zap.Error(err))
	}
	metrics.CacheResult("user", hit)
	if hit {
		return p, nil
	}

	usr, err := s.repo.GetUserByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return auth.Principal{}, apperr.Missing("User not found")
	}
	if err != nil {
		return auth.Principal{}, err
	}
	p = usr.Principal()
	if err := s.cache.Set(ctx, key, p, s.cacheTTL); err != nil {
		s.log.Warn("user cache set failed", zap.String("user_id", id), zap.Error(err))
	}
	return p, nil
}

// Get returns the account with id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	usr, err := s.repo.GetUserByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return User{}, apperr.Missing("User not found")
	}
	return usr, err
}

func (s *Service) CheckAdmin(ctx context.Context) (AdminStatus, error) {
	count, err := s.repo.CountAdmins(ctx)
	if err != nil {
		return AdminStatus{}, err
	}
	return AdminStatus{Exists: count > 0, Count: count, MaxReached: count >= MaxAdmins}, nil
}

func (s *Service) ListTeachers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsersByRole(ctx, auth.RoleTeacher)
}

func (s *Service) CreateTeacher(ctx context.Context, in TeacherInput) (User, error) {
	if in.Password == "" {
		return User{}, apperr.Invalid("Password is required")
	}
	usr, err := s.create(ctx, in.Name, in.Email, in.Password, auth.RoleTeacher)
	if err != nil {
		return User{}, err
	}
	s.log.Info("teacher created", zap.String("user_id", usr.ID))
	return usr, nil
}

// UpdateTeacher replaces name and email. An empty password keeps the current one.
func (s *Service) UpdateTeacher(ctx context.Context, id string, in TeacherInput) (User, error) {
	usr, err := s.teacher(ctx, id)
	if err != nil {
		return User{}, err
	}
	email := cleanEmail(in.Email)
	if email != usr.Email {
		if err := s.checkEmailFree(ctx, email); err != nil {
			return User{}, err
		}
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || email == "" {
		return User{}, apperr.Invalid("Name and email are required")
	}
	usr.Name = name
	usr.Email = email
	usr.UpdatedAt = time.Now().UTC()
	if in.Password != "" {
		if err := usr.SetPassword(in.Password); err != nil {
			return User{}, err
		}
	}

	updated, err := s.repo.UpdateUser(ctx, usr)
	switch {
	case errors.Is(err, ErrEmailExists):
		return User{}, apperr.Duplicate(msgEmailExists)
	case errors.Is(err, ErrNotFound):
		return User{}, apperr.Missing(msgTeacherNotFound)
	case err != nil:
		return User{}, err
	}
	s.forget(ctx, id)
	return updated, nil
}

func (s *Service) DeleteTeacher(ctx context.Context, id string) error {
	err := s.repo.DeleteUser(ctx, id, auth.RoleTeacher)
	if errors.Is(err, ErrNotFound) {
		return apperr.Missing(msgTeacherNotFound)
	}
	if err != nil {
		return err
	}
	s.forget(ctx, id)
	s.log.Info("teacher deleted", zap.String("user_id", id))
	return nil
}

func (s *Service) teacher(ctx context.Context, id string) (User, error) {
	usr, err := s.repo.GetUserByID(ctx, id)
	if errors.Is(err, ErrNotFound) || (err == nil && usr.Role != auth.RoleTeacher) {
		return User{}, apperr.Missing(msgTeacherNotFound)
	}
	return usr, err
}

func (s *Service) create(ctx context.Context, name, email, password string, role auth.Role) (User, error) {
	name = strings.TrimSpace(name)
	email = cleanEmail(email)
	if name == "" || email == "" || password == "" {
		return User{}, apperr.Invalid("Name, email and password are required")
	}
	if err := s.checkEmailFree(ctx, email); err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	usr := User{Name: name, Email: email, Role: role, CreatedAt: now, UpdatedAt: now}
	if err := usr.SetPassword(password); err != nil {
		return User{}, err
	}
	created, err := s.repo.CreateUser(ctx, usr)
	switch {
	case errors.Is(err, ErrAdminLimit):
		return User{}, apperr.Denied(msgAdminLimit)
	case errors.Is(err, ErrEmailExists):
		return User{}, apperr.Duplicate(msgEmailExists)
	}
	return created, err
}

func (s *Service) checkEmailFree(ctx context.Context, email string) error {
	_, err := s.repo.GetUserByEmail(ctx, email)
	if err == nil {
		return apperr.Duplicate(msgEmailExists)
	}
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (s *Service) session(usr User) (Session, error) {
	tok, err := auth.Issue(usr.ID, usr.Role, s.tokens.Issuer, s.tokens.SigningKey, s.tokens.TTL)
	if err != nil {
		return Session{}, err
	}
	return Session{User: usr, Token: tok.Value}, nil
}

func (s *Service) forget(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, userKey(id)); err != nil {
		s.log.Warn("user cache delete failed", zap.String("user_id", id), zap.Error(err))
	}
}

func userKey(id string) string { return "user:" + id }
