package server

import (
	"errors"
	"net/http"

	"github.com/kaura24/regaudit/internal/hitl"
	"github.com/kaura24/regaudit/internal/lock"
	"github.com/kaura24/regaudit/internal/pipeline"
	"github.com/kaura24/regaudit/internal/store"
)

// httpStatus maps domain errors onto response codes. Lock contention and
// re-entrant execution surface as 409 so clients can retry after the holder
// finishes.
func httpStatus(err error) int {
	var (
		held          *lock.ErrLockHeld
		executing     *lock.ErrAlreadyExecuting
		notExecutable *pipeline.ErrRunNotExecutable
		unresolved    *pipeline.ErrPacketUnresolved
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &held), errors.As(err, &executing):
		return http.StatusConflict
	case errors.As(err, &notExecutable):
		return http.StatusConflict
	case errors.Is(err, hitl.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.As(err, &unresolved):
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}
