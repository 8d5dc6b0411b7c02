package errors

import "fmt"

var (
	ErrInvalidName        = fmt.Errorf("room name is empty")
	ErrRoomNotFound       = fmt.Errorf("room not found")
	ErrForbidden          = fmt.Errorf("only the room creator may do this")
	ErrEmptyMessage       = fmt.Errorf("message is empty")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
)

// NameTakenError is returned when a room name is already in use.
// Candidate carries a suffixed alternative the caller may confirm and
// retry with, or abandon.
type NameTakenError struct {
	Name      string
	Candidate string
}

func (e *NameTakenError) Error() string {
	return fmt.Sprintf("room name %q already taken (candidate %q)", e.Name, e.Candidate)
}
