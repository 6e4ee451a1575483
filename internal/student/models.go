package student

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("student not found")
	ErrStudentIDExists = errors.New("a student with this student id already exists")
)

// Student is a directory entry. Students carry no email address.
type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StudentID string    `json:"studentId"`
	Class     string    `json:"class"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Input is the writable part of a student. Unknown payload fields are dropped by binding.
type Input struct {
	Name      string `json:"name" binding:"required"`
	StudentID string `json:"studentId" binding:"required"`
	Class     string `json:"class" binding:"required"`
}

// Identity is the projection embedded in attendance reports.
type Identity struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	StudentID string `json:"studentId"`
	Class     string `json:"class"`
}

func (s Student) Identity() Identity {
	return Identity{ID: s.ID, Name: s.Name, StudentID: s.StudentID, Class: s.Class}
}
