package leave

// =============================================================================
// AUTHORIZATION GATE - Pure role and relationship checks
// =============================================================================
//
// Every role check in the system goes through these functions so that the
// UI gating and the engine enforcement cannot drift apart.
//
//   role         submit for self   decide                     adjust balances
//   systemadmin  yes               anyone but self            yes
//   admin        yes               anyone but self            yes
//   supervisor   yes               own team, not self         no
//   agent        yes               no                         no

// Gate has no state; the zero value is ready to use.
type Gate struct{}

// CanSubmit allows an employee to request leave only for themselves.
// Admins cannot file leave on someone else's behalf through this path.
func (Gate) CanSubmit(actor Employee, employeeID EmployeeID) bool {
	return actor.ID != "" && actor.ID == employeeID
}

// CanDecide reports whether actor may approve or reject req. req.Team must
// hold the requester's current team; the coordinator fills it from the
// directory before asking.
func (Gate) CanDecide(actor Employee, req LeaveRequest) bool {
	if actor.ID == "" || actor.ID == req.EmployeeID {
		return false
	}
	switch actor.Role {
	case RoleSystemAdmin, RoleAdmin:
		return true
	case RoleSupervisor:
		return actor.Team != "" && actor.Team == req.Team
	default:
		return false
	}
}

// CanAdjust gates administrative balance credits.
func (Gate) CanAdjust(actor Employee) bool {
	return actor.ID != "" && actor.Role.IsAdministrative()
}

// CanViewBalances allows self, administrators, and supervisors of the
// employee's team.
func (Gate) CanViewBalances(actor Employee, employee Employee) bool {
	switch {
	case actor.ID == "":
		return false
	case actor.ID == employee.ID:
		return true
	case actor.Role.IsAdministrative():
		return true
	case actor.Role == RoleSupervisor:
		return actor.Team != "" && actor.Team == employee.Team
	default:
		return false
	}
}

// CanManageEmployees gates writes to the directory.
func (Gate) CanManageEmployees(actor Employee) bool {
	return actor.ID != "" && actor.Role.IsAdministrative()
}
