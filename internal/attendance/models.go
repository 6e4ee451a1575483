package attendance

import (
	"fmt"
	"strings"
	"time"

	"schoolattend/internal/student"
)

const (
	dayLayout = "2006-01-02"

	// EventSubmitted is published after a batch is written.
	EventSubmitted = "attendance.submitted"
)

// Status is the mark given to a student for a day.
type Status string

const (
	Present Status = "present"
	Absent  Status = "absent"
)

func (s Status) Valid() bool {
	return s == Present || s == Absent
}

// Record is one ledger row. Records are never updated or deleted.
type Record struct {
	ID         string
	StudentRef string
	Date       time.Time
	Status     Status
	MarkedBy   string
	CreatedAt  time.Time
}

// ParseDate accepts YYYY-MM-DD or RFC3339 and returns the UTC calendar day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	if t, err := time.Parse(dayLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func FormatDay(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// Entry is one (studentId, status) pair of a submission.
type Entry struct {
	StudentID string `json:"studentId"`
	Status    Status `json:"status"`
}

// SubmitRequest is a daily batch.
type SubmitRequest struct {
	Date    string  `json:"date" binding:"required"`
	Entries []Entry `json:"attendanceData" binding:"required"`
}

type SubmitResult struct {
	Inserted int `json:"inserted"`
}

// SubmittedEvent is the body of EventSubmitted messages.
type SubmittedEvent struct {
	Date     string `json:"date"`
	Count    int    `json:"count"`
	MarkedBy string `json:"markedBy"`
}

// Summary counts a student's records.
type Summary struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Absent  int `json:"absent"`
}

// HistoryEntry is a record as shown in a student report.
type HistoryEntry struct {
	Date     string `json:"date"`
	Status   Status `json:"status"`
	MarkedBy string `json:"markedBy"`
}

type Report struct {
	Student    student.Identity `json:"student"`
	Attendance []HistoryEntry   `json:"attendance"`
	Summary    Summary          `json:"summary"`
}

// RosterEntry is one row of the roster summary.
type RosterEntry struct {
	Student student.Identity `json:"student"`
	Summary Summary          `json:"summary"`
}

// DayEntry is a record of a single day joined with its student.
type DayEntry struct {
	Student    student.Identity `json:"student"`
	Status     Status           `json:"status"`
	MarkedBy   string           `json:"markedBy"`
	RecordedAt time.Time        `json:"recordedAt"`
}

// Summarize counts the statuses of history.
func Summarize(history []HistoryEntry) Summary {
	s := Summary{Total: len(history)}
	for _, h := range history {
		switch h.Status {
		case Present:
			s.Present++
		case Absent:
			s.Absent++
		}
	}
	return s
}
