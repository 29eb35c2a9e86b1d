package account

import "errors"

var (
	ErrNotFound           = errors.New("account: not found")
	ErrUsernameTaken      = errors.New("account: username already taken")
	ErrInvalidCredentials = errors.New("account: invalid credentials")
	ErrHWIDMismatch       = errors.New("account: hardware identity mismatch")
	ErrSelfDelete         = errors.New("account: cannot delete the active principal")
	ErrInvalidInput       = errors.New("account: invalid input")
)
