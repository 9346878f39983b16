package establishment

import "errors"

var ErrNotFound = errors.New("establishment not found")
