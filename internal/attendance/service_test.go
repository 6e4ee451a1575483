package attendance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolattend/internal/account"
	"schoolattend/internal/apperr"
	"schoolattend/internal/attendance"
	"schoolattend/internal/auth"
	"schoolattend/internal/cache"
	"schoolattend/internal/queue"
	"schoolattend/internal/store/memory"
	"schoolattend/internal/student"
)

type fixture struct {
	db       *memory.DB
	students *student.Service
	svc      *attendance.Service
	events   *queue.InMemory
	cache    *cache.Memory
	teacher  auth.Principal
}

func newFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	db := memory.New()
	f := &fixture{
		db:       db,
		students: student.NewService(db.Students(), nil),
		events:   queue.NewInMemory(16),
		cache:    cache.NewMemory(),
	}
	f.svc = attendance.NewService(db.Ledger(), f.students, f.events, f.cache, time.Minute, nil)
	f.students.OnChange(f.svc)

	tch, err := db.Accounts().CreateUser(ctx, account.User{Name: "Tom Teacher", Email: "tom@school.test", Role: auth.RoleTeacher})
	require.NoError(t, err)
	f.teacher = tch.Principal()

	for _, id := range ids {
		_, err := f.students.Create(ctx, student.Input{Name: "Student " + id, StudentID: id, Class: "CS101"})
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) submit(t *testing.T, date string, entries ...attendance.Entry) attendance.SubmitResult {
	t.Helper()
	res, err := f.svc.Submit(context.Background(), f.teacher, attendance.SubmitRequest{Date: date, Entries: entries})
	require.NoError(t, err)
	return res
}

func present(id string) attendance.Entry { return attendance.Entry{StudentID: id, Status: attendance.Present} }
func absent(id string) attendance.Entry  { return attendance.Entry{StudentID: id, Status: attendance.Absent} }

func TestSubmitUnknownStudentWritesNothing(t *testing.T) {
	f := newFixture(t, "S001", "S002")

	_, err := f.svc.Submit(context.Background(), f.teacher, attendance.SubmitRequest{
		Date:    "2024-01-10",
		Entries: []attendance.Entry{present("S001"), absent("S999"), present("S002")},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	assert.Equal(t, "Student with ID S999 not found", err.Error())
	assert.Zero(t, f.db.RecordCount())
}

func TestSubmitWritesOneRecordPerEntry(t *testing.T) {
	f := newFixture(t, "S001", "S002", "S003")

	res := f.submit(t, "2024-01-10", present("S001"), absent("S002"), present("S003"))
	assert.Equal(t, 3, res.Inserted)

	recs := f.db.Records()
	require.Len(t, recs, 3)
	for _, r := range recs {
		assert.Equal(t, f.teacher.ID, r.MarkedBy)
		assert.Equal(t, "2024-01-10", attendance.FormatDay(r.Date))
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, "S001")
	tests := []struct {
		name string
		req  attendance.SubmitRequest
	}{
		{"bad date", attendance.SubmitRequest{Date: "10/01/2024", Entries: []attendance.Entry{present("S001")}}},
		{"no entries", attendance.SubmitRequest{Date: "2024-01-10"}},
		{"bad status", attendance.SubmitRequest{Date: "2024-01-10", Entries: []attendance.Entry{{StudentID: "S001", Status: "late"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), f.teacher, tc.req)
			assert.Equal(t, apperr.Validation, apperr.KindOf(err))
		})
	}
	assert.Zero(t, f.db.RecordCount())
}

func TestStudentReport(t *testing.T) {
	f := newFixture(t, "S001")
	f.submit(t, "2024-01-10", present("S001"))
	f.submit(t, "2024-01-11T09:30:00Z", absent("S001"))

	rep, err := f.svc.StudentReport(context.Background(), "S001")
	require.NoError(t, err)
	assert.Empty(t, rep.Student.ID)
	assert.Equal(t, "S001", rep.Student.StudentID)
	assert.Equal(t, attendance.Summary{Total: 2, Present: 1, Absent: 1}, rep.Summary)
	require.Len(t, rep.Attendance, 2)
	assert.Equal(t, attendance.HistoryEntry{Date: "2024-01-11", Status: attendance.Absent, MarkedBy: "Tom Teacher"}, rep.Attendance[0])
	assert.Equal(t, "2024-01-10", rep.Attendance[1].Date)
}

func TestDuplicateMarksKeepHistory(t *testing.T) {
	f := newFixture(t, "S001")
	f.submit(t, "2024-01-10", present("S001"))
	f.submit(t, "2024-01-10", absent("S001"))

	rep, err := f.svc.StudentReport(context.Background(), "S001")
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Summary.Total)
	assert.Equal(t, rep.Summary.Total, rep.Summary.Present+rep.Summary.Absent)
	assert.Equal(t, attendance.Absent, rep.Attendance[0].Status, "latest mark first")
}

func TestDuplicateMarksInOneBatchKeepInsertOrder(t *testing.T) {
	f := newFixture(t, "S001")
	f.submit(t, "2024-01-10", present("S001"), absent("S001"), present("S001"), absent("S001"))

	rep, err := f.svc.StudentReport(context.Background(), "S001")
	require.NoError(t, err)
	require.Len(t, rep.Attendance, 4)
	want := []attendance.Status{attendance.Absent, attendance.Present, attendance.Absent, attendance.Present}
	for i, h := range rep.Attendance {
		assert.Equal(t, want[i], h.Status, i)
	}
}

func TestReportOfDeletedStudent(t *testing.T) {
	f := newFixture(t, "S001")
	f.submit(t, "2024-01-10", present("S001"))
	st, err := f.students.GetByStudentID(context.Background(), "S001")
	require.NoError(t, err)
	require.NoError(t, f.students.Delete(context.Background(), st.ID))

	_, err = f.svc.StudentReport(context.Background(), "S001")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	assert.Equal(t, 1, f.db.RecordCount(), "records outlive the student")
}

func TestReportAfterTeacherDeleted(t *testing.T) {
	f := newFixture(t, "S001")
	f.submit(t, "2024-01-10", present("S001"))
	require.NoError(t, f.db.Accounts().DeleteUser(context.Background(), f.teacher.ID, auth.RoleTeacher))

	rep, err := f.svc.StudentReport(context.Background(), "S001")
	require.NoError(t, err)
	assert.Empty(t, rep.Attendance[0].MarkedBy)
}

func TestSubmitPartialWrite(t *testing.T) {
	f := newFixture(t, "S001", "S002", "S003")
	s2, err := f.students.GetByStudentID(context.Background(), "S002")
	require.NoError(t, err)
	f.db.FailInsert = func(r attendance.Record) error {
		if r.StudentRef == s2.ID {
			return errors.New("write conflict")
		}
		return nil
	}

	res, err := f.svc.Submit(context.Background(), f.teacher, attendance.SubmitRequest{
		Date:    "2024-01-10",
		Entries: []attendance.Entry{present("S001"), present("S002"), present("S003")},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 2, f.db.RecordCount())
}

func TestRosterSummary(t *testing.T) {
	f := newFixture(t, "S001", "S002")
	ctx := context.Background()
	f.submit(t, "2024-01-10", present("S001"), absent("S002"))
	f.submit(t, "2024-01-11", present("S001"))

	rows, err := f.svc.RosterSummary(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "S001", rows[0].Student.StudentID)
	assert.Equal(t, attendance.Summary{Total: 2, Present: 2}, rows[0].Summary)
	assert.Equal(t, attendance.Summary{Total: 1, Absent: 1}, rows[1].Summary)

	// served from cache until the next submission
	f.db.FailInsert = nil
	_, err = f.db.Ledger().InsertRecords(ctx, []attendance.Record{{StudentRef: f.db.Records()[0].StudentRef, Date: time.Now(), Status: attendance.Present}})
	require.NoError(t, err)
	cached, err := f.svc.RosterSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cached[0].Summary.Total)

	f.submit(t, "2024-01-12", present("S002"))
	fresh, err := f.svc.RosterSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, fresh[0].Summary.Total)
	assert.Equal(t, 2, fresh[1].Summary.Total)
}

func TestRosterSummaryInvalidatedByDirectoryChange(t *testing.T) {
	f := newFixture(t, "S001")
	ctx := context.Background()
	rows, err := f.svc.RosterSummary(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = f.students.Create(ctx, student.Input{Name: "New", StudentID: "S002", Class: "CS101"})
	require.NoError(t, err)
	rows, err = f.svc.RosterSummary(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSubmitPublishesEvent(t *testing.T) {
	f := newFixture(t, "S001")
	f.submit(t, "2024-01-10", present("S001"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msgs, err := f.events.Consume(ctx)
	require.NoError(t, err)
	msg := <-msgs
	assert.Equal(t, attendance.EventSubmitted, msg.Type)
	var evt attendance.SubmittedEvent
	require.NoError(t, msg.Decode(&evt))
	assert.Equal(t, attendance.SubmittedEvent{Date: "2024-01-10", Count: 1, MarkedBy: f.teacher.ID}, evt)
}

func TestDateSheet(t *testing.T) {
	f := newFixture(t, "S001", "S002")
	f.submit(t, "2024-01-10", absent("S002"), present("S001"))
	f.submit(t, "2024-01-11", present("S001"))

	rows, err := f.svc.DateSheet(context.Background(), "2024-01-10")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "S001", rows[0].Student.StudentID)
	assert.Equal(t, attendance.Absent, rows[1].Status)

	_, err = f.svc.DateSheet(context.Background(), "yesterday")
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestParseDate(t *testing.T) {
	d, err := attendance.ParseDate("2024-01-10T23:30:00-05:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-11", attendance.FormatDay(d))

	_, err = attendance.ParseDate("")
	assert.Error(t, err)
}

func TestSingleMarkScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.students.Create(ctx, student.Input{Name: "Jane Doe", StudentID: "S001", Class: "CS101"})
	require.NoError(t, err)

	f.submit(t, "2024-01-10", present("S001"))

	rep, err := f.svc.StudentReport(ctx, "S001")
	require.NoError(t, err)
	assert.Equal(t, student.Identity{Name: "Jane Doe", StudentID: "S001", Class: "CS101"}, rep.Student)
	assert.Equal(t, attendance.Summary{Total: 1, Present: 1}, rep.Summary)
	require.Len(t, rep.Attendance, 1)
	assert.Equal(t, "2024-01-10", rep.Attendance[0].Date)
}

// pausingLedger holds RosterSummary after the rows are computed until release is closed.
type pausingLedger struct {
	attendance.Repository
	computed chan struct{}
	release  chan struct{}
}

func (l *pausingLedger) RosterSummary(ctx context.Context) ([]attendance.RosterEntry, error) {
	rows, err := l.Repository.RosterSummary(ctx)
	if l.computed != nil {
		close(l.computed)
		l.computed = nil
		<-l.release
	}
	return rows, err
}

func TestRosterSummaryNotStaleAfterConcurrentSubmit(t *testing.T) {
	f := newFixture(t, "S001")
	ctx := context.Background()
	ledger := &pausingLedger{Repository: f.db.Ledger(), computed: make(chan struct{}), release: make(chan struct{})}
	svc := attendance.NewService(ledger, f.students, nil, f.cache, time.Minute, nil)
	computed := ledger.computed

	done := make(chan []attendance.RosterEntry, 1)
	go func() {
		rows, err := svc.RosterSummary(ctx)
		assert.NoError(t, err)
		done <- rows
	}()

	<-computed
	_, err := svc.Submit(ctx, f.teacher, attendance.SubmitRequest{Date: "2024-01-10", Entries: []attendance.Entry{present("S001")}})
	require.NoError(t, err)
	close(ledger.release)

	stale := <-done
	assert.Zero(t, stale[0].Summary.Total, "the in-flight read predates the submit")

	rows, err := svc.RosterSummary(ctx)
	require.NoError(t, err)
	rep, err := svc.StudentReport(ctx, "S001")
	require.NoError(t, err)
	assert.Equal(t, rep.Summary, rows[0].Summary)
	assert.Equal(t, 1, rows[0].Summary.Total)
}

func TestRosterSummaryNotStaleAfterConcurrentDirectoryChange(t *testing.T) {
	f := newFixture(t, "S001")
	ctx := context.Background()
	ledger := &pausingLedger{Repository: f.db.Ledger(), computed: make(chan struct{}), release: make(chan struct{})}
	svc := attendance.NewService(ledger, f.students, nil, f.cache, time.Minute, nil)
	f.students.OnChange(svc)
	computed := ledger.computed

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.RosterSummary(ctx)
		assert.NoError(t, err)
	}()

	<-computed
	_, err := f.students.Create(ctx, student.Input{Name: "New", StudentID: "S002", Class: "CS101"})
	require.NoError(t, err)
	close(ledger.release)
	<-done

	rows, err := svc.RosterSummary(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
