package neighborhood

import "errors"

var (
	ErrNotFound = errors.New("neighborhood not found")
	ErrInactive = errors.New("neighborhood is not served")
)
