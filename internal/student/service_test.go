package student_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolattend/internal/apperr"
	"schoolattend/internal/store/memory"
	"schoolattend/internal/student"
)

type notifier struct{ calls int }

func (n *notifier) DirectoryChanged(context.Context) { n.calls++ }

func newService() (*student.Service, *notifier) {
	svc := student.NewService(memory.New().Students(), nil)
	n := &notifier{}
	svc.OnChange(n)
	return svc, n
}

func TestStudentJSONHasNoEmail(t *testing.T) {
	svc, _ := newService()
	st, err := svc.Create(context.Background(), student.Input{Name: "Jane", StudentID: "S001", Class: "CS101"})
	require.NoError(t, err)

	raw, err := json.Marshal(st)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.NotContains(t, fields, "email")
	assert.Equal(t, "S001", fields["studentId"])
}

func TestDuplicateStudentID(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	_, err := svc.Create(ctx, student.Input{Name: "Jane", StudentID: "S001", Class: "CS101"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, student.Input{Name: "John", StudentID: " S001 ", Class: "CS102"})
	require.Error(t, err)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	assert.Equal(t, "Student ID already exists", err.Error())
}

func TestUpdateStudent(t *testing.T) {
	svc, n := newService()
	ctx := context.Background()
	a, err := svc.Create(ctx, student.Input{Name: "Jane", StudentID: "S001", Class: "CS101"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, student.Input{Name: "John", StudentID: "S002", Class: "CS101"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, a.ID, student.Input{Name: "Jane", StudentID: "S002", Class: "CS101"})
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	up, err := svc.Update(ctx, a.ID, student.Input{Name: "Jane D", StudentID: "S001", Class: "CS201"})
	require.NoError(t, err)
	assert.Equal(t, "CS201", up.Class)

	_, err = svc.Update(ctx, "missing", student.Input{Name: "x", StudentID: "S009", Class: "x"})
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	assert.Equal(t, 3, n.calls)
}

func TestDeleteStudent(t *testing.T) {
	svc, n := newService()
	ctx := context.Background()
	st, err := svc.Create(ctx, student.Input{Name: "Jane", StudentID: "S001", Class: "CS101"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, st.ID))
	_, err = svc.GetByStudentID(ctx, "S001")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	assert.Equal(t, "Student not found", err.Error())

	err = svc.Delete(ctx, st.ID)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	assert.Equal(t, 2, n.calls)
}

func TestCreateRequiresFields(t *testing.T) {
	svc, n := newService()
	_, err := svc.Create(context.Background(), student.Input{Name: " ", StudentID: "S001", Class: "CS101"})
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	assert.Zero(t, n.calls)
}

func TestLookup(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	for _, id := range []string{"S001", "S002"} {
		_, err := svc.Create(ctx, student.Input{Name: id, StudentID: id, Class: "CS101"})
		require.NoError(t, err)
	}
	found, err := svc.Lookup(ctx, []string{"S001", "S003", "S002"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Contains(t, found, "S001")
	assert.NotContains(t, found, "S003")
}
