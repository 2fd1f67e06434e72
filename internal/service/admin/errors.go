package admin

import "errors"

var ErrEventConflict = errors.New("conflict creating event")
