package portal

import "github.com/campusdesk/portal/core/directory"

// Role describes one portal role: its directory table and the dashboard
// route granted once membership is confirmed. Login and signup share one
// workflow parameterized over Role instead of duplicating control flow.
type Role struct {
	Name      string
	Table     directory.Table
	Dashboard string
}

var (
	Student = Role{Name: "student", Table: directory.Students, Dashboard: "/student-dashboard"}
	Teacher = Role{Name: "teacher", Table: directory.Teachers, Dashboard: "/teacher-dashboard"}
)

// Roles lists all portal roles. The sets are not mutually exclusive: the
// same account may hold a record in both directories.
func Roles() []Role {
	return []Role{Student, Teacher}
}

func RoleByName(name string) (Role, bool) {
	for _, role := range Roles() {
		if role.Name == name {
			return role, true
		}
	}
	return Role{}, false
}
