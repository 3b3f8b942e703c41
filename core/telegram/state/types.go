package state

import "errors"

// ErrStaleSession is returned by Commit when the session changed after it was read.
var ErrStaleSession = errors.New("state: stale session version")

// Snapshot is a point-in-time copy of a user's session.
type Snapshot[T any] struct {
	UserID  int64
	Version uint64
	Value   T
}

// Manager is the contract the dispatcher relies on.
type Manager[T any] interface {
	GetOrCreate(userID int64) Snapshot[T]
	Get(userID int64) (Snapshot[T], bool)
	Commit(userID int64, version uint64, value T) error
}
