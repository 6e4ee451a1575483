package auth

// Role is an access tier.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleTeacher
}

// Capability names an operation class guarded at the HTTP boundary.
type Capability string

const (
	ManageAccounts   Capability = "accounts:manage"
	ManageStudents   Capability = "students:manage"
	ViewStudents     Capability = "students:view"
	SubmitAttendance Capability = "attendance:submit"
	ViewReports      Capability = "reports:view"
)

var capabilities = map[Role]map[Capability]bool{
	RoleAdmin: {
		ManageAccounts: true,
		ManageStudents: true,
		ViewStudents:   true,
		ViewReports:    true,
	},
	RoleTeacher: {
		ViewStudents:     true,
		SubmitAttendance: true,
		ViewReports:      true,
	},
}

// Can reports whether role r holds capability c.
func (r Role) Can(c Capability) bool {
	return capabilities[r][c]
}
