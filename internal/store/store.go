// Package store holds completed result sets and serves them, read-only, to
// the status display.
package store

import (
	"context"
	"errors"

	"github.com/testherd/testherd/internal/core"
)

// ErrNotFound reports that no result set exists for the requested commit, or
// that nothing has completed yet when asking for the latest.
var ErrNotFound = errors.New("result set not found")

// ResultStore keeps the most recent result set per commit. "Latest" is the
// set whose commit has the highest arrival sequence, not the one that arrived
// last on the wall clock, so a slow retry of an older commit can never clobber
// the latest view; a rebuild of the same commit overwrites unconditionally.
type ResultStore interface {
	Put(ctx context.Context, rs *core.ResultSet) error
	Get(ctx context.Context, commitID string) (*core.ResultSet, error)
	Latest(ctx context.Context) (*core.ResultSet, error)
}
