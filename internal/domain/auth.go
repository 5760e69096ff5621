package domain

// Role scopes what an authenticated caller may do.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleOperator Role = "OPERATOR"
	RoleWorker   Role = "WORKER"
	RoleAuditor  Role = "AUDITOR"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleWorker, RoleAuditor:
		return true
	}
	return false
}
