package cascade

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/iota-uz/competency-hub/modules/hrm/domain/orglevel"
)

var (
	ErrLevelLocked = errors.New("cascade: level is locked for this role")
	ErrBusy        = errors.New("cascade: a load is in progress")
	ErrClosed      = errors.New("cascade: resolver is closed")

	errStale = errors.New("cascade: stale response")
)

// FetchError reports a failed option read for one level.
type FetchError struct {
	Level    orglevel.Level
	ParentID *int64
	Err      error
}

func (e *FetchError) Error() string {
	if e.ParentID == nil {
		return fmt.Sprintf("cascade: fetch %s options: %v", e.Level.Key(), e.Err)
	}
	return fmt.Sprintf("cascade: fetch %s options for parent %d: %v", e.Level.Key(), *e.ParentID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
