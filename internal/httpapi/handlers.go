package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"schoolattend/internal/account"
	"schoolattend/internal/attendance"
	"schoolattend/internal/auth"
	"schoolattend/internal/export"
	"schoolattend/internal/student"
)

// register answers a non-admin role with 403 before the rest of the body is validated.
func (a *API) register(c *gin.Context) {
	var head struct {
		Role auth.Role `json:"role"`
	}
	if err := c.ShouldBindBodyWith(&head, binding.JSON); err != nil {
		a.badRequest(c, err)
		return
	}
	if err := account.CheckRegistrationRole(head.Role); err != nil {
		a.fail(c, err)
		return
	}
	var req account.NewUser
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		a.badRequest(c, err)
		return
	}
	sess, err := a.accounts.Register(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (a *API) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	sess, err := a.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (a *API) me(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	usr, err := a.accounts.Get(c.Request.Context(), p.ID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, usr)
}

func (a *API) checkAdmin(c *gin.Context) {
	status, err := a.accounts.CheckAdmin(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (a *API) listTeachers(c *gin.Context) {
	teachers, err := a.accounts.ListTeachers(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, teachers)
}

func (a *API) createTeacher(c *gin.Context) {
	var req account.TeacherInput
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	usr, err := a.accounts.CreateTeacher(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, usr)
}

func (a *API) updateTeacher(c *gin.Context) {
	var req account.TeacherInput
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	usr, err := a.accounts.UpdateTeacher(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, usr)
}

func (a *API) deleteTeacher(c *gin.Context) {
	if err := a.accounts.DeleteTeacher(c.Request.Context(), c.Param("id")); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Teacher deleted successfully"})
}

func (a *API) listStudents(c *gin.Context) {
	students, err := a.students.List(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, students)
}

func (a *API) createStudent(c *gin.Context) {
	var req student.Input
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	st, err := a.students.Create(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (a *API) updateStudent(c *gin.Context) {
	var req student.Input
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	st, err := a.students.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (a *API) deleteStudent(c *gin.Context) {
	if err := a.students.Delete(c.Request.Context(), c.Param("id")); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Student deleted successfully"})
}

func (a *API) submitAttendance(c *gin.Context) {
	var req attendance.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	p, _ := auth.PrincipalFrom(c)
	res, err := a.attendance.Submit(c.Request.Context(), p, req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Attendance submitted successfully", "inserted": res.Inserted})
}

func (a *API) studentReport(c *gin.Context) {
	rep, err := a.attendance.StudentReport(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (a *API) rosterSummary(c *gin.Context) {
	rows, err := a.attendance.RosterSummary(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (a *API) dateSheet(c *gin.Context) {
	rows, err := a.attendance.DateSheet(c.Request.Context(), c.Param("date"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (a *API) exportRosterSummary(c *gin.Context) {
	rows, err := a.attendance.RosterSummary(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	f, err := export.RosterSummary(rows)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.sendWorkbook(c, f, "attendance-summary.xlsx")
}

func (a *API) exportStudentReport(c *gin.Context) {
	rep, err := a.attendance.StudentReport(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		a.fail(c, err)
		return
	}
	f, err := export.StudentReport(rep)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.sendWorkbook(c, f, fmt.Sprintf("attendance-%s.xlsx", rep.Student.StudentID))
}

func (a *API) sendWorkbook(c *gin.Context, f *excelize.File, name string) {
	defer func() {
		if err := f.Close(); err != nil {
			a.log.Warn("close workbook", zap.Error(err))
		}
	}()
	buf, err := f.WriteToBuffer()
	if err != nil {
		a.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}
