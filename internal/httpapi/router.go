package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schoolattend/internal/account"
	"schoolattend/internal/attendance"
	"schoolattend/internal/auth"
	"schoolattend/internal/httpmiddleware"
	"schoolattend/internal/metrics"
	"schoolattend/internal/student"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Accounts    *account.Service
	Students    *student.Service
	Attendance  *attendance.Service
	Gate        *auth.Gate
	Log         *zap.Logger
	CORSOrigins []string
	// RateLimit applies to every route; LoginLimit additionally to login and registration.
	RateLimit  *httpmiddleware.TokenBucket
	LoginLimit *httpmiddleware.TokenBucket
	Health     map[string]HealthCheck
	// LogLevel serves and changes the running log level; nil leaves the route unmounted.
	LogLevel http.Handler
}

// API holds the handlers.
type API struct {
	accounts   *account.Service
	students   *student.Service
	attendance *attendance.Service
	log        *zap.Logger
}

// NewRouter wires middleware and routes.
func NewRouter(d Deps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	a := &API{accounts: d.Accounts, students: d.Students, attendance: d.Attendance, log: log}
	gate := d.Gate

	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, rec any) {
		log.Error("panic recovered", zap.Any("panic", rec), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}))
	r.Use(accessLog(log))
	r.Use(requestMetrics())
	r.Use(corsMiddleware(d.CORSOrigins))
	r.Use(securityHeaders())
	if d.RateLimit != nil {
		r.Use(d.RateLimit.GinMiddleware())
	}

	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/healthz", healthz(d.Health))

	authn := gate.Authenticate()

	ag := r.Group("/auth")
	{
		credentials := []gin.HandlerFunc{}
		if d.LoginLimit != nil {
			credentials = append(credentials, d.LoginLimit.GinMiddleware())
		}
		ag.POST("/register", append(credentials, a.register)...)
		ag.POST("/login", append(credentials, a.login)...)
		ag.GET("/me", authn, a.me)
		ag.GET("/check-admin", a.checkAdmin)

		teachers := ag.Group("/teachers", authn, gate.Require(auth.ManageAccounts))
		teachers.GET("", a.listTeachers)
		teachers.POST("", a.createTeacher)
		teachers.PUT("/:id", a.updateTeacher)
		teachers.DELETE("/:id", a.deleteTeacher)
	}

	sg := r.Group("/students", authn)
	{
		sg.GET("", gate.Require(auth.ViewStudents), a.listStudents)
		sg.POST("", gate.Require(auth.ManageStudents), a.createStudent)
		sg.PUT("/:id", gate.Require(auth.ManageStudents), a.updateStudent)
		sg.DELETE("/:id", gate.Require(auth.ManageStudents), a.deleteStudent)
	}

	atg := r.Group("/attendance", authn)
	{
		atg.POST("/submit", gate.Require(auth.SubmitAttendance), a.submitAttendance)
		reports := atg.Group("", gate.Require(auth.ViewReports))
		reports.GET("/student/:studentId", a.studentReport)
		reports.GET("/student/:studentId/export", a.exportStudentReport)
		reports.GET("/summary", a.rosterSummary)
		reports.GET("/summary/export", a.exportRosterSummary)
		reports.GET("/date/:date", a.dateSheet)
	}

	if d.LogLevel != nil {
		admin := r.Group("/admin", authn, gate.Require(auth.ManageAccounts))
		admin.GET("/log-level", gin.WrapH(d.LogLevel))
		admin.PUT("/log-level", gin.WrapH(d.LogLevel))
	}

	return r
}

func healthz(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		for name, check := range checks {
			ok := check(c.Request.Context())
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	}
}
