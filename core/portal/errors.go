package portal

import (
	"errors"
	"fmt"
)

// ErrAccountNotCreated is returned when the store reports sign-up success
// but its payload carries no created user. Distinct from an explicit store
// error.
var ErrAccountNotCreated = errors.New("failed to create user account")

// AccessDeniedError means the session authenticated fine but the account
// holds no record in the role's directory. The session itself is kept;
// only dashboard access is denied.
type AccessDeniedError struct {
	Role string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: this account is not registered as a %s", e.Role)
}

// RoleCheckError means the role-directory lookup itself failed; nothing is
// known about membership.
type RoleCheckError struct {
	Role string
	Err  error
}

func (e *RoleCheckError) Error() string {
	return fmt.Sprintf("failed to verify %s status", e.Role)
}

func (e *RoleCheckError) Unwrap() error { return e.Err }

// RecordInsertError means the account was created but the role record
// insert failed, leaving the account orphaned. Reported distinctly from
// auth errors; reconciliation happens out of band.
type RecordInsertError struct {
	Role string
	Err  error
}

func (e *RecordInsertError) Error() string {
	return fmt.Sprintf("account created but saving the %s record failed: %v", e.Role, e.Err)
}

func (e *RecordInsertError) Unwrap() error { return e.Err }
