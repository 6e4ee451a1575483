package account

import (
	"errors"
	"strings"
	"time"

	"schoolattend/internal/auth"
)

// MaxAdmins is the number of admin accounts the system allows.
const MaxAdmins = 2

var (
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")
	ErrAdminLimit  = errors.New("admin account limit reached")
)

// User is an admin or teacher account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         auth.Role `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u *User) SetPassword(pw string) error {
	hash, err := auth.HashPassword(pw)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u User) CheckPassword(pw string) bool {
	return u.PasswordHash != "" && auth.CheckPassword(u.PasswordHash, pw)
}

func (u User) Principal() auth.Principal {
	return auth.Principal{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

type NewUser struct {
	Name     string    `json:"name" binding:"required"`
	Email    string    `json:"email" binding:"required,email"`
	Password string    `json:"password" binding:"required"`
	Role     auth.Role `json:"role"`
}

type TeacherInput struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password"`
}

// Session is returned by registration and login.
type Session struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// AdminStatus reports how many admin slots are in use.
type AdminStatus struct {
	Exists     bool `json:"exists"`
	Count      int  `json:"count"`
	MaxReached bool `json:"maxReached"`
}

func cleanEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
