package incident

import "github.com/rotisserie/eris"

// ErrSchema marks an incomplete or inconsistent column mapping.
var ErrSchema = eris.New("column mapping does not match the table")
